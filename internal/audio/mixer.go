package audio

import (
	"encoding/binary"
	"time"
)

// Discord voice is 48 kHz Opus in 20 ms frames. Mixed output is 16-bit little-endian mono PCM.
const (
	SampleRateHz  = 48000
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRateHz * int(FrameDuration/time.Millisecond) / 1000
	FrameBytes    = FrameSamples * 2
)

type Mixer interface {
	WriteOpusPacket(userID string, opus []byte)
	ReadMixedPCM(buf []byte) (int, error)
	Close()
}

type MixerFactory func() Mixer

// Downmix averages interleaved stereo samples into mono.
func Downmix(stereo []int16) []int16 {
	mono := make([]int16, len(stereo)/2)
	for i := range mono {
		mono[i] = int16((int32(stereo[2*i]) + int32(stereo[2*i+1])) / 2)
	}
	return mono
}

// MixInto adds frame onto mixed sample by sample, saturating at the int16 range.
func MixInto(mixed, frame []int16) {
	for i := 0; i < len(frame) && i < len(mixed); i++ {
		mixed[i] = clampPCM(int32(mixed[i]) + int32(frame[i]))
	}
}

// EncodePCM writes as many samples as fit in buf and returns the byte count.
func EncodePCM(buf []byte, samples []int16) int {
	n := min(len(buf)/2, len(samples))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(samples[i]))
	}
	return n * 2
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
