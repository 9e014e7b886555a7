package transcriber

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	MinSampleRateHz = 8000
	MaxSampleRateHz = 48000
)

// AudioChunk is one ordered fragment of audio in the session's encoding.
type AudioChunk []byte

type MediaEncoding string

const (
	MediaEncodingPCM     MediaEncoding = "pcm"
	MediaEncodingOggOpus MediaEncoding = "ogg-opus"
	MediaEncodingFLAC    MediaEncoding = "flac"
)

func (e MediaEncoding) Valid() bool {
	switch e {
	case MediaEncodingPCM, MediaEncodingOggOpus, MediaEncodingFLAC:
		return true
	default:
		return false
	}
}

type SessionConfig struct {
	LanguageCode  string
	MediaEncoding MediaEncoding
	SampleRateHz  int
}

func (c SessionConfig) Validate() error {
	if strings.TrimSpace(c.LanguageCode) == "" {
		return fmt.Errorf("language code is required")
	}
	if !c.MediaEncoding.Valid() {
		return fmt.Errorf("unsupported media encoding %q", c.MediaEncoding)
	}
	if c.SampleRateHz < MinSampleRateHz || c.SampleRateHz > MaxSampleRateHz {
		return fmt.Errorf("sample rate must be between %d and %d Hz, got %d", MinSampleRateHz, MaxSampleRateHz, c.SampleRateHz)
	}
	return nil
}

type Alternative struct {
	Text       string
	Confidence *float64
}

type EventKind int

const (
	EventPartial EventKind = iota
	EventFinal
)

func (k EventKind) String() string {
	if k == EventFinal {
		return "final"
	}
	return "partial"
}

// TranscriptEvent is one result received from the remote service. Alternatives are ranked,
// best first.
type TranscriptEvent struct {
	Kind         EventKind
	ResultID     string
	StartTime    time.Duration
	EndTime      time.Duration
	Alternatives []Alternative
}

func (e TranscriptEvent) IsFinal() bool {
	return e.Kind == EventFinal
}

// Transcript is a finalized result that will not be revised.
type Transcript struct {
	ResultID   string
	Text       string
	Confidence *float64
	StartTime  time.Duration
	EndTime    time.Duration
}

// Stream is one bidirectional streaming session owned by a single consumer. Send and
// CloseSend are called from one goroutine while Events is drained from another.
type Stream interface {
	Send(ctx context.Context, chunk AudioChunk) error
	// CloseSend tells the remote side no more audio will follow.
	CloseSend(ctx context.Context) error
	// Events is closed when the remote side finishes or the stream fails; Err reports which.
	Events() <-chan TranscriptEvent
	Err() error
	Close() error
}

type Transcriber interface {
	StartStreaming(ctx context.Context, cfg SessionConfig) (Stream, error)
}
