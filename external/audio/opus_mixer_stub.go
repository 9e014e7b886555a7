//go:build !opus

package audio

import (
	"log/slog"

	"github.com/foxseedlab/kikitori/internal/audio"
)

// noopMixer stands in when the binary is built without libopus. Voice sessions stay silent.
type noopMixer struct{}

func NewOpusMixer() audio.Mixer {
	slog.Warn("built without the opus tag; discord voice audio will not be decoded")
	return &noopMixer{}
}

func (m *noopMixer) WriteOpusPacket(_ string, _ []byte) {}

func (m *noopMixer) ReadMixedPCM(_ []byte) (int, error) {
	return 0, nil
}

func (m *noopMixer) Close() {}
