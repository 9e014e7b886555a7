package transcriber

import (
	"context"
	"fmt"
	"iter"
)

// StreamError ends a transcript sequence. Op is the direction that failed: start, send or receive.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("transcript stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// FinalTranscript picks the best alternative of a final event. Partial events and events
// without alternatives yield false.
func FinalTranscript(ev TranscriptEvent) (Transcript, bool) {
	if !ev.IsFinal() || len(ev.Alternatives) == 0 {
		return Transcript{}, false
	}
	best := ev.Alternatives[0]
	return Transcript{
		ResultID:   ev.ResultID,
		Text:       best.Text,
		Confidence: best.Confidence,
		StartTime:  ev.StartTime,
		EndTime:    ev.EndTime,
	}, true
}

// Consume streams audio to t and yields finalized transcripts in arrival order.
//
// Audio is sent from a separate goroutine while events are read here, so results flow before
// the input is exhausted. Closing audio ends the outbound direction and the sequence finishes
// once the remote side closes. A failure in either direction yields a single *StreamError and
// ends the sequence. Cancelling ctx, or breaking out of the loop, ends it without an error; in
// every case the stream is closed and the sender goroutine has exited before the iterator
// returns.
func Consume(ctx context.Context, t Transcriber, cfg SessionConfig, audio <-chan AudioChunk) iter.Seq2[Transcript, error] {
	return func(yield func(Transcript, error) bool) {
		if err := cfg.Validate(); err != nil {
			yield(Transcript{}, &StreamError{Op: "start", Err: err})
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := t.StartStreaming(ctx, cfg)
		if err != nil {
			if ctx.Err() == nil {
				yield(Transcript{}, &StreamError{Op: "start", Err: err})
			}
			return
		}

		sendErrc := make(chan error, 1)
		sendExited := make(chan struct{})
		go func() {
			defer close(sendExited)
			sendErrc <- pumpAudio(ctx, stream, audio)
		}()
		defer func() {
			cancel()
			_ = stream.Close()
			<-sendExited
		}()

		events := stream.Events()
		pending := sendErrc
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-pending:
				pending = nil
				if err != nil && ctx.Err() == nil {
					yield(Transcript{}, &StreamError{Op: "send", Err: err})
					return
				}
			case ev, ok := <-events:
				if !ok {
					if err := stream.Err(); err != nil && ctx.Err() == nil {
						yield(Transcript{}, &StreamError{Op: "receive", Err: err})
					}
					return
				}
				tr, final := FinalTranscript(ev)
				if !final {
					continue
				}
				if !yield(tr, nil) {
					return
				}
			}
		}
	}
}

func pumpAudio(ctx context.Context, stream Stream, audio <-chan AudioChunk) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-audio:
			if !ok {
				return stream.CloseSend(ctx)
			}
			if len(chunk) == 0 {
				continue
			}
			if err := stream.Send(ctx, chunk); err != nil {
				return err
			}
		}
	}
}
