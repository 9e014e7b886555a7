package transcriber

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/foxseedlab/kikitori/external/awsclient"
	"github.com/foxseedlab/kikitori/internal/transcriber"
)

const (
	transcribeServiceName = "transcribe"
	eventBufferSize       = 32
)

// transcribeEventStream is the part of *transcribestreaming.StartStreamTranscriptionEventStream
// the adapter relies on.
type transcribeEventStream interface {
	Send(ctx context.Context, event types.AudioStream) error
	Events() <-chan types.TranscriptResultStream
	Close() error
	Err() error
}

type AmazonTranscriber struct {
	open func(ctx context.Context, input *transcribestreaming.StartStreamTranscriptionInput) (transcribeEventStream, error)
}

func NewAmazonTranscriber(client *transcribestreaming.Client) transcriber.Transcriber {
	return &AmazonTranscriber{
		open: func(ctx context.Context, input *transcribestreaming.StartStreamTranscriptionInput) (transcribeEventStream, error) {
			out, err := client.StartStreamTranscription(ctx, input)
			if err != nil {
				return nil, err
			}
			return out.GetStream(), nil
		},
	}
}

func (t *AmazonTranscriber) StartStreaming(ctx context.Context, cfg transcriber.SessionConfig) (transcriber.Stream, error) {
	slog.Info("starting amazon transcribe streaming", "language", cfg.LanguageCode, "encoding", cfg.MediaEncoding, "sample_rate_hz", cfg.SampleRateHz)
	es, err := t.open(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(cfg.LanguageCode),
		MediaEncoding:        types.MediaEncoding(cfg.MediaEncoding),
		MediaSampleRateHertz: aws.Int32(int32(cfg.SampleRateHz)),
	})
	if err != nil {
		return nil, awsclient.Classify(transcribeServiceName, "StartStreamTranscription", err)
	}

	s := &amazonStream{
		es:     es,
		events: make(chan transcriber.TranscriptEvent, eventBufferSize),
		done:   make(chan struct{}),
	}
	go s.receive()
	return s, nil
}

type amazonStream struct {
	es     transcribeEventStream
	events chan transcriber.TranscriptEvent
	done   chan struct{}

	closeSendOnce sync.Once
	closeSendErr  error
	closeOnce     sync.Once
	closeErr      error
}

func (s *amazonStream) Send(ctx context.Context, chunk transcriber.AudioChunk) error {
	err := s.es.Send(ctx, &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: chunk},
	})
	return awsclient.Classify(transcribeServiceName, "Send", err)
}

func (s *amazonStream) CloseSend(ctx context.Context) error {
	s.closeSendOnce.Do(func() {
		// An empty audio event is the service's end-of-audio marker.
		err := s.es.Send(ctx, &types.AudioStreamMemberAudioEvent{
			Value: types.AudioEvent{AudioChunk: []byte{}},
		})
		s.closeSendErr = awsclient.Classify(transcribeServiceName, "CloseSend", err)
	})
	return s.closeSendErr
}

func (s *amazonStream) Events() <-chan transcriber.TranscriptEvent {
	return s.events
}

func (s *amazonStream) Err() error {
	return awsclient.Classify(transcribeServiceName, "Receive", s.es.Err())
}

func (s *amazonStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.es.Close()
	})
	return s.closeErr
}

func (s *amazonStream) receive() {
	defer close(s.events)
	for raw := range s.es.Events() {
		for _, ev := range decodeTranscriptEvent(raw) {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
	slog.Debug("amazon transcribe receive loop stopped")
}

func decodeTranscriptEvent(raw types.TranscriptResultStream) []transcriber.TranscriptEvent {
	switch v := raw.(type) {
	case *types.TranscriptResultStreamMemberTranscriptEvent:
		if v.Value.Transcript == nil {
			return nil
		}
		return decodeResults(v.Value.Transcript.Results)
	case *types.UnknownUnionMember:
		slog.Debug("ignoring unknown transcribe event", "tag", v.Tag)
		return nil
	default:
		return nil
	}
}

func decodeResults(results []types.Result) []transcriber.TranscriptEvent {
	out := make([]transcriber.TranscriptEvent, 0, len(results))
	for _, r := range results {
		kind := transcriber.EventFinal
		if r.IsPartial {
			kind = transcriber.EventPartial
		}
		alts := make([]transcriber.Alternative, 0, len(r.Alternatives))
		for _, a := range r.Alternatives {
			alts = append(alts, transcriber.Alternative{
				Text:       aws.ToString(a.Transcript),
				Confidence: meanItemConfidence(a.Items),
			})
		}
		out = append(out, transcriber.TranscriptEvent{
			Kind:         kind,
			ResultID:     aws.ToString(r.ResultId),
			StartTime:    secondsToDuration(r.StartTime),
			EndTime:      secondsToDuration(r.EndTime),
			Alternatives: alts,
		})
	}
	return out
}

func meanItemConfidence(items []types.Item) *float64 {
	var sum float64
	n := 0
	for _, it := range items {
		if it.Confidence == nil {
			continue
		}
		sum += *it.Confidence
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
