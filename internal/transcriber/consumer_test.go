package transcriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	mu         sync.Mutex
	sent       []AudioChunk
	closedSend bool
	closed     bool
	err        error
	sendErr    error
	events     chan TranscriptEvent
	closeOnce  sync.Once

	onSend      func(s *fakeStream, n int)
	onCloseSend func(s *fakeStream)
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan TranscriptEvent, 16)}
}

func (s *fakeStream) Send(_ context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return err
	}
	s.sent = append(s.sent, chunk)
	n := len(s.sent)
	hook := s.onSend
	s.mu.Unlock()
	if hook != nil {
		hook(s, n)
	}
	return nil
}

func (s *fakeStream) CloseSend(_ context.Context) error {
	s.mu.Lock()
	s.closedSend = true
	hook := s.onCloseSend
	s.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return nil
}

func (s *fakeStream) Events() <-chan TranscriptEvent { return s.events }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.finish(nil)
	return nil
}

func (s *fakeStream) finish(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	})
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeTranscriber struct {
	stream *fakeStream
	err    error
	gotCfg SessionConfig
}

func (t *fakeTranscriber) StartStreaming(_ context.Context, cfg SessionConfig) (Stream, error) {
	t.gotCfg = cfg
	if t.err != nil {
		return nil, t.err
	}
	return t.stream, nil
}

var testConfig = SessionConfig{LanguageCode: "en-US", MediaEncoding: MediaEncodingPCM, SampleRateHz: 16000}

func partial(text string) TranscriptEvent {
	return TranscriptEvent{Kind: EventPartial, Alternatives: []Alternative{{Text: text}}}
}

func final(text string) TranscriptEvent {
	return TranscriptEvent{Kind: EventFinal, Alternatives: []Alternative{{Text: text}}}
}

type consumeResult struct {
	texts []string
	err   error
}

func collect(t *testing.T, ctx context.Context, tr Transcriber, audio <-chan AudioChunk) consumeResult {
	t.Helper()
	done := make(chan consumeResult, 1)
	go func() {
		var res consumeResult
		for tr, err := range Consume(ctx, tr, testConfig, audio) {
			if err != nil {
				res.err = err
				break
			}
			res.texts = append(res.texts, tr.Text)
		}
		done <- res
	}()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not terminate")
		return consumeResult{}
	}
}

func audioOf(chunks ...string) <-chan AudioChunk {
	ch := make(chan AudioChunk, len(chunks))
	for _, c := range chunks {
		ch <- AudioChunk(c)
	}
	close(ch)
	return ch
}

func TestConsume_OnlyFinalTextIsSurfaced(t *testing.T) {
	stream := newFakeStream()
	stream.onCloseSend = func(s *fakeStream) {
		s.events <- partial("hel")
		s.events <- partial("hello")
		s.events <- final("hello world")
		s.finish(nil)
	}

	res := collect(t, context.Background(), &fakeTranscriber{stream: stream}, audioOf("chunk1", "chunk2"))

	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if len(res.texts) != 1 || res.texts[0] != "hello world" {
		t.Fatalf("unexpected output: %+v", res.texts)
	}
	if len(stream.sent) != 2 || string(stream.sent[0]) != "chunk1" || string(stream.sent[1]) != "chunk2" {
		t.Fatalf("audio not sent in order: %q", stream.sent)
	}
	if !stream.closedSend {
		t.Fatal("expected CloseSend after input was exhausted")
	}
	if !stream.isClosed() {
		t.Fatal("expected stream to be closed")
	}
}

func TestConsume_KeepsArrivalOrderAndDropsEmptyAlternatives(t *testing.T) {
	stream := newFakeStream()
	stream.onCloseSend = func(s *fakeStream) {
		s.events <- final("first")
		s.events <- TranscriptEvent{Kind: EventFinal}
		s.events <- partial("sec")
		s.events <- TranscriptEvent{Kind: EventFinal, Alternatives: []Alternative{{Text: "second"}, {Text: "2nd"}}}
		s.events <- final("")
		s.finish(nil)
	}

	res := collect(t, context.Background(), &fakeTranscriber{stream: stream}, audioOf("a"))

	want := []string{"first", "second", ""}
	if len(res.texts) != len(want) {
		t.Fatalf("unexpected output: %q", res.texts)
	}
	for i := range want {
		if res.texts[i] != want[i] {
			t.Fatalf("unexpected output at %d: %q", i, res.texts)
		}
	}
}

func TestConsume_ResultsFlowBeforeInputIsExhausted(t *testing.T) {
	stream := newFakeStream()
	stream.onSend = func(s *fakeStream, n int) {
		if n == 1 {
			s.events <- final("early")
		}
	}
	stream.onCloseSend = func(s *fakeStream) { s.finish(nil) }

	audio := make(chan AudioChunk)
	gotEarly := make(chan struct{})
	go func() {
		audio <- AudioChunk("chunk1")
		<-gotEarly
		close(audio)
	}()

	done := make(chan []string, 1)
	go func() {
		var texts []string
		for tr, err := range Consume(context.Background(), &fakeTranscriber{stream: stream}, testConfig, audio) {
			if err != nil {
				break
			}
			texts = append(texts, tr.Text)
			if tr.Text == "early" {
				close(gotEarly)
			}
		}
		done <- texts
	}()

	select {
	case texts := <-done:
		if len(texts) != 1 || texts[0] != "early" {
			t.Fatalf("unexpected output: %q", texts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("output was blocked behind input")
	}
}

func TestConsume_RemoteDropSurfacesStreamError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	stream := newFakeStream()
	stream.onSend = func(s *fakeStream, n int) {
		if n == 1 {
			s.events <- final("before drop")
		}
		if n == 2 {
			s.finish(cause)
		}
	}

	audio := make(chan AudioChunk, 2)
	audio <- AudioChunk("chunk1")
	audio <- AudioChunk("chunk2")

	res := collect(t, context.Background(), &fakeTranscriber{stream: stream}, audio)

	var streamErr *StreamError
	if !errors.As(res.err, &streamErr) {
		t.Fatalf("expected StreamError, got %v", res.err)
	}
	if streamErr.Op != "receive" || !errors.Is(res.err, cause) {
		t.Fatalf("unexpected stream error: %v", streamErr)
	}
	if len(res.texts) != 1 || res.texts[0] != "before drop" {
		t.Fatalf("unexpected output before drop: %q", res.texts)
	}
	if !stream.isClosed() {
		t.Fatal("expected stream to be released")
	}
}

func TestConsume_SendFailureSurfacesStreamError(t *testing.T) {
	cause := errors.New("broken pipe")
	stream := newFakeStream()
	stream.sendErr = cause

	res := collect(t, context.Background(), &fakeTranscriber{stream: stream}, audioOf("chunk1"))

	var streamErr *StreamError
	if !errors.As(res.err, &streamErr) || streamErr.Op != "send" || !errors.Is(res.err, cause) {
		t.Fatalf("unexpected error: %v", res.err)
	}
}

func TestConsume_StartFailureSurfacesStreamError(t *testing.T) {
	cause := errors.New("BadRequestException")
	res := collect(t, context.Background(), &fakeTranscriber{err: cause}, audioOf())

	var streamErr *StreamError
	if !errors.As(res.err, &streamErr) || streamErr.Op != "start" || !errors.Is(res.err, cause) {
		t.Fatalf("unexpected error: %v", res.err)
	}
}

func TestConsume_InvalidConfigIsRejectedBeforeConnecting(t *testing.T) {
	tr := &fakeTranscriber{stream: newFakeStream()}
	var got error
	for _, err := range Consume(context.Background(), tr, SessionConfig{LanguageCode: "en-US", MediaEncoding: "mp3", SampleRateHz: 16000}, audioOf()) {
		got = err
	}
	var streamErr *StreamError
	if !errors.As(got, &streamErr) || streamErr.Op != "start" {
		t.Fatalf("unexpected error: %v", got)
	}
	if tr.gotCfg.LanguageCode != "" {
		t.Fatal("did not expect StartStreaming to be called")
	}
}

func TestConsume_CancelTerminatesWithoutError(t *testing.T) {
	stream := newFakeStream()
	ctx, cancel := context.WithCancel(context.Background())
	audio := make(chan AudioChunk)

	go func() {
		audio <- AudioChunk("chunk1")
		cancel()
	}()

	res := collect(t, ctx, &fakeTranscriber{stream: stream}, audio)

	if res.err != nil {
		t.Fatalf("expected silent termination on cancel, got %v", res.err)
	}
	if !stream.isClosed() {
		t.Fatal("expected stream to be closed after cancel")
	}
}

func TestConsume_BreakReleasesStream(t *testing.T) {
	stream := newFakeStream()
	stream.events <- final("one")
	stream.events <- final("two")
	audio := make(chan AudioChunk)

	for tr, err := range Consume(context.Background(), &fakeTranscriber{stream: stream}, testConfig, audio) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.Text == "one" {
			break
		}
	}

	if !stream.isClosed() {
		t.Fatal("expected stream to be closed after break")
	}
}

func TestFinalTranscript(t *testing.T) {
	conf := 0.87
	ev := TranscriptEvent{
		Kind:         EventFinal,
		ResultID:     "r-1",
		StartTime:    time.Second,
		EndTime:      2 * time.Second,
		Alternatives: []Alternative{{Text: "best", Confidence: &conf}, {Text: "worse"}},
	}
	tr, ok := FinalTranscript(ev)
	if !ok {
		t.Fatal("expected final transcript")
	}
	if tr.Text != "best" || tr.ResultID != "r-1" || tr.Confidence == nil || *tr.Confidence != conf || tr.EndTime != 2*time.Second {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
	if _, ok := FinalTranscript(partial("x")); ok {
		t.Fatal("partial events must not produce transcripts")
	}
}
