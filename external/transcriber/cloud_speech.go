package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	speechServiceName     = "cloud_speech"
	audioChannelCount     = 1
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (t *CloudSpeechTranscriber) StartStreaming(ctx context.Context, cfg transcriber.SessionConfig) (transcriber.Stream, error) {
	slog.Info("starting cloud speech streaming", "location", t.location, "language", cfg.LanguageCode, "model", t.model, "sample_rate_hz", cfg.SampleRateHz)
	if cfg.MediaEncoding != transcriber.MediaEncodingPCM {
		return nil, serviceerr.RemoteService(speechServiceName, "StreamingRecognize", fmt.Errorf("only pcm audio is supported, got %q", cfg.MediaEncoding))
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, classifyGRPC("NewClient", err)
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location)
	open := func() (speechpb.Speech_StreamingRecognizeClient, error) {
		s, err := client.StreamingRecognize(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Send(t.configRequest(recognizer, cfg)); err != nil {
			_ = s.CloseSend()
			return nil, err
		}
		return s, nil
	}

	s, err := newSpeechStream(open, client.Close)
	if err != nil {
		_ = client.Close()
		return nil, classifyGRPC("StreamingRecognize", err)
	}
	slog.Info("cloud speech stream initialized", "recognizer", recognizer)
	return s, nil
}

func (t *CloudSpeechTranscriber) configRequest(recognizer string, cfg transcriber.SessionConfig) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		Recognizer: recognizer,
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         t.model,
					LanguageCodes: []string{cfg.LanguageCode},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   int32(cfg.SampleRateHz),
							AudioChannelCount: audioChannelCount,
						},
					},
					Features: &speechpb.RecognitionFeatures{},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: true},
			},
		},
	}
}

// speechStream hides the service's per-stream duration limit: when a send fails with a
// reconnectable abort, a fresh gRPC stream replaces the old one and feeds the same Events
// channel.
type speechStream struct {
	mu          sync.Mutex
	stream      speechpb.Speech_StreamingRecognizeClient
	generation  int
	closedSend  bool
	closed      bool
	newStreamFn func() (speechpb.Speech_StreamingRecognizeClient, error)
	closeFn     func() error

	emitMu   sync.RWMutex
	finished bool
	err      error
	events   chan transcriber.TranscriptEvent
	done     chan struct{}
}

// newSpeechStream opens the first gRPC stream with open and keeps open for reconnects.
func newSpeechStream(open func() (speechpb.Speech_StreamingRecognizeClient, error), closeFn func() error) (*speechStream, error) {
	first, err := open()
	if err != nil {
		return nil, err
	}
	s := &speechStream{
		stream:      first,
		newStreamFn: open,
		closeFn:     closeFn,
		events:      make(chan transcriber.TranscriptEvent, eventBufferSize),
		done:        make(chan struct{}),
	}
	s.startReceiver(first, 0)
	return s, nil
}

func (s *speechStream) Send(_ context.Context, chunk transcriber.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.closedSend {
		return io.ErrClosedPipe
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{
			Audio: chunk,
		},
	}
	if err := s.stream.Send(req); err != nil {
		if !isReconnectableStreamError(err) {
			return classifyGRPC("Send", err)
		}
		slog.Warn("transcriber send failed with reconnectable error; reconnecting", "error", err)
		if err := s.reconnectLocked(); err != nil {
			return classifyGRPC("Reconnect", err)
		}
		return classifyGRPC("Send", s.stream.Send(req))
	}
	return nil
}

func (s *speechStream) CloseSend(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closedSend || s.closed {
		return nil
	}
	s.closedSend = true
	return classifyGRPC("CloseSend", s.stream.CloseSend())
}

func (s *speechStream) Events() <-chan transcriber.TranscriptEvent {
	return s.events
}

func (s *speechStream) Err() error {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	return s.err
}

func (s *speechStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	if !s.closedSend {
		_ = s.stream.CloseSend()
	}
	s.mu.Unlock()

	err := s.closeFn()
	s.finish(nil)
	return err
}

func (s *speechStream) reconnectLocked() error {
	_ = s.stream.CloseSend()
	next, err := s.newStreamFn()
	if err != nil {
		slog.Error("failed to reconnect transcriber stream", "error", err)
		return err
	}
	s.stream = next
	s.generation++
	s.startReceiver(next, s.generation)
	slog.Info("transcriber stream reconnected", "generation", s.generation)
	return nil
}

func (s *speechStream) isCurrent(generation int) (current, sendClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == generation, s.closedSend
}

func (s *speechStream) startReceiver(stream speechpb.Speech_StreamingRecognizeClient, generation int) {
	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				s.handleRecvError(err, generation)
				return
			}
			for _, ev := range decodeSpeechResponse(resp) {
				if !s.emit(ev) {
					return
				}
			}
		}
	}()
}

func (s *speechStream) handleRecvError(err error, generation int) {
	current, sendClosed := s.isCurrent(generation)
	if !current {
		return
	}
	if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
		slog.Info("transcriber receive loop stopped", "reason", err.Error())
		s.finish(nil)
		return
	}
	if isReconnectableStreamError(err) && !sendClosed {
		slog.Warn("transcriber receive loop ended with reconnectable abort", "error", err)
		return
	}
	s.finish(classifyGRPC("Receive", err))
}

func (s *speechStream) emit(ev transcriber.TranscriptEvent) bool {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.finished {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *speechStream) finish(err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
}

func decodeSpeechResponse(resp *speechpb.StreamingRecognizeResponse) []transcriber.TranscriptEvent {
	results := resp.GetResults()
	out := make([]transcriber.TranscriptEvent, 0, len(results))
	for _, result := range results {
		kind := transcriber.EventPartial
		if result.GetIsFinal() {
			kind = transcriber.EventFinal
		}
		alts := make([]transcriber.Alternative, 0, len(result.GetAlternatives()))
		for _, a := range result.GetAlternatives() {
			alt := transcriber.Alternative{Text: a.GetTranscript()}
			if c := a.GetConfidence(); c > 0 {
				conf := float64(c)
				alt.Confidence = &conf
			}
			alts = append(alts, alt)
		}
		out = append(out, transcriber.TranscriptEvent{
			Kind:         kind,
			EndTime:      result.GetResultEndOffset().AsDuration(),
			Alternatives: alts,
		})
	}
	return out
}

func isReconnectableStreamError(err error) bool {
	if err == io.EOF || strings.Contains(strings.ToLower(err.Error()), "eof") {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}

func classifyGRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return serviceerr.Transport(speechServiceName, op, err)
	}
	switch st.Code() {
	case codes.Canceled:
		return err
	case codes.Unavailable, codes.DeadlineExceeded:
		return serviceerr.Transport(speechServiceName, op, err)
	default:
		return serviceerr.RemoteService(speechServiceName, op, err)
	}
}
