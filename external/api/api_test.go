package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	extrepo "github.com/foxseedlab/kikitori/external/repository"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/document"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/serviceerr"
	"github.com/foxseedlab/kikitori/internal/summary"
	"github.com/golang-jwt/jwt/v5"
)

type stubExtractor struct {
	text string
	err  error
	got  document.ObjectRef
}

func (s *stubExtractor) ExtractText(_ context.Context, ref document.ObjectRef) (string, error) {
	s.got = ref
	return s.text, s.err
}

type stubClassifier struct {
	result  sentiment.Result
	err     error
	gotLang string
}

func (s *stubClassifier) Classify(_ context.Context, _ string, lang string) (sentiment.Result, error) {
	s.gotLang = lang
	return s.result, s.err
}

type stubGenerator struct {
	text string
	err  error
	got  summary.Request
}

func (s *stubGenerator) Generate(_ context.Context, req summary.Request) (string, error) {
	s.got = req
	return s.text, s.err
}

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (e *recordingEnqueuer) EnqueueSummarize(_ context.Context, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, sessionID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		TranscribeLanguageCode:  "en-US",
		TranscribeMediaEncoding: "pcm",
		TranscribeSampleRateHz:  16000,
		BedrockModelID:          "anthropic.claude-3-haiku-20240307-v1:0",
		SummaryMaxTokens:        512,
		SummaryTemperature:      0.2,
		SentimentLanguageCode:   "en",
		SentimentAlertThreshold: 0.9,
	}
}

type testEnv struct {
	repo       *extrepo.MemoryRepository
	extractor  *stubExtractor
	classifier *stubClassifier
	generator  *stubGenerator
	enqueuer   *recordingEnqueuer
	runner     *fakeRunner
	redisErr   error
	handler    http.Handler
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:       extrepo.NewMemoryRepository(),
		extractor:  &stubExtractor{},
		classifier: &stubClassifier{},
		generator:  &stubGenerator{},
		enqueuer:   &recordingEnqueuer{},
		runner:     &fakeRunner{},
	}
	env.handler = NewRouter(cfg, Deps{
		Repository: env.repo,
		RedisPing:  func(context.Context) error { return env.redisErr },
		Documents:  env.extractor,
		Classifier: env.classifier,
		Generator:  env.generator,
		Enqueuer:   env.enqueuer,
		Sessions:   env.runner,
	}).Setup()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_ReportsUnhealthyDependency(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.redisErr = errors.New("connection refused")

	rec := env.do(t, http.MethodGet, "/readyz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeResponse(t, rec, &body)
	if body.Status != "unhealthy" || body.Checks["database"] != "ok" || body.Checks["redis"] == "ok" {
		t.Fatalf("unexpected readiness body: %+v", body)
	}
}

func TestAuth_RequiresValidBearerToken(t *testing.T) {
	cfg := testConfig()
	cfg.APIJWTSecret = "test-secret"
	env := newTestEnv(t, cfg)
	env.classifier.result = sentiment.Result{Label: sentiment.LabelNeutral}
	body := map[string]string{"text": "hello"}

	if rec := env.do(t, http.MethodPost, "/api/v1/sentiment", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	sign := func(secret string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		s, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return s
	}

	bad := http.Header{"Authorization": {"Bearer " + sign("other-secret")}}
	if rec := env.do(t, http.MethodPost, "/api/v1/sentiment", body, bad); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with foreign token, got %d", rec.Code)
	}

	good := http.Header{"Authorization": {"Bearer " + sign("test-secret")}}
	if rec := env.do(t, http.MethodPost, "/api/v1/sentiment", body, good); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected health checks to stay public, got %d", rec.Code)
	}
}

func TestExtractText(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.extractor.text = "line one\nline two"

	rec := env.do(t, http.MethodPost, "/api/v1/documents/text", map[string]string{"bucket": "docs", "key": "scan.png"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeResponse(t, rec, &body)
	if body["text"] != "line one\nline two" {
		t.Fatalf("unexpected text: %q", body["text"])
	}
	if env.extractor.got != (document.ObjectRef{Bucket: "docs", Key: "scan.png"}) {
		t.Fatalf("unexpected object ref: %+v", env.extractor.got)
	}
}

func TestExtractText_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, testConfig())

	if rec := env.do(t, http.MethodPost, "/api/v1/documents/text", "{not json", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/documents/text", map[string]string{"bucket": "docs"}, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing key, got %d", rec.Code)
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"remote", serviceerr.RemoteService("textract", "DetectDocumentText", errors.New("throttled")), http.StatusBadGateway},
		{"transport", serviceerr.Transport("textract", "DetectDocumentText", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{"decode", serviceerr.Decode("textract", "DetectDocumentText", errors.New("no blocks")), http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			env.extractor.err = tc.err
			rec := env.do(t, http.MethodPost, "/api/v1/documents/text", map[string]string{"bucket": "docs", "key": "scan.png"}, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			var body map[string]string
			decodeResponse(t, rec, &body)
			if body["error"] == "" {
				t.Fatal("expected error message in body")
			}
		})
	}
}

func TestSentiment_ReportsAlertAndDefaultsLanguage(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.classifier.result = sentiment.Result{
		Label:  sentiment.LabelNegative,
		Scores: sentiment.Scores{Negative: 0.95, Neutral: 0.05},
	}

	rec := env.do(t, http.MethodPost, "/api/v1/sentiment", map[string]string{"text": "this is awful"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body sentimentResponse
	decodeResponse(t, rec, &body)
	if body.Label != sentiment.LabelNegative || !body.Alert || body.Scores.Negative != 0.95 {
		t.Fatalf("unexpected response: %+v", body)
	}
	if env.classifier.gotLang != "en" {
		t.Fatalf("expected default language, got %q", env.classifier.gotLang)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/sentiment", map[string]string{"text": "hola", "language_code": "es"}, nil)
	if rec.Code != http.StatusOK || env.classifier.gotLang != "es" {
		t.Fatalf("expected explicit language to be used, got %d %q", rec.Code, env.classifier.gotLang)
	}
}

func TestSentiment_Errors(t *testing.T) {
	env := newTestEnv(t, testConfig())

	if rec := env.do(t, http.MethodPost, "/api/v1/sentiment", map[string]string{"text": "   "}, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank text, got %d", rec.Code)
	}

	env.classifier.err = serviceerr.RemoteService("comprehend", "DetectSentiment", errors.New("text size limit exceeded"))
	if rec := env.do(t, http.MethodPost, "/api/v1/sentiment", map[string]string{"text": "hello"}, nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for classifier failure, got %d", rec.Code)
	}
}

func TestCompletions_AppliesDefaultsAndOverrides(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.generator.text = "Hi there"

	rec := env.do(t, http.MethodPost, "/api/v1/completions", map[string]any{
		"system":   "be brief",
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body completionResponse
	decodeResponse(t, rec, &body)
	if body.Text != "Hi there" || body.ModelID != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Fatalf("unexpected response: %+v", body)
	}
	if env.generator.got.Options.MaxTokens != 512 || env.generator.got.System != "be brief" {
		t.Fatalf("expected configured defaults, got %+v", env.generator.got)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/completions", map[string]any{
		"model_id":    "custom-model",
		"messages":    []map[string]string{{"role": "user", "content": "hello"}},
		"max_tokens":  64,
		"temperature": 0,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := env.generator.got
	if got.ModelID != "custom-model" || got.Options.MaxTokens != 64 || got.Options.Temperature != 0 {
		t.Fatalf("expected request overrides, got %+v", got)
	}
}

func TestCompletions_RejectsEmptyMessages(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(t, http.MethodPost, "/api/v1/completions", map[string]any{"messages": []any{}}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func seedSession(t *testing.T, repo *extrepo.MemoryRepository, complete bool) *repository.Session {
	t.Helper()
	ctx := context.Background()
	s, err := repo.CreateSession(ctx, repository.CreateSessionInput{
		Source:       repository.SessionSourceWebSocket,
		LanguageCode: "en-US",
		SampleRateHz: 16000,
		StartedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := repo.InsertSegment(ctx, repository.InsertSegmentInput{SessionID: s.ID, SegmentIndex: 0, Content: "hello", StartMs: 100, EndMs: 900}); err != nil {
		t.Fatalf("failed to insert segment: %v", err)
	}
	if complete {
		if err := repo.CompleteSession(ctx, repository.CompleteSessionInput{
			SessionID:  s.ID,
			Status:     repository.SessionStatusCompleted,
			StopReason: "input_closed",
			EndedAt:    s.StartedAt.Add(time.Minute),
		}); err != nil {
			t.Fatalf("failed to complete session: %v", err)
		}
	}
	return s
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	s := seedSession(t, env.repo, true)
	if err := env.repo.SaveSummary(context.Background(), repository.SaveSummaryInput{SessionID: s.ID, ModelID: "m", Summary: "greeting"}); err != nil {
		t.Fatalf("failed to save summary: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body sessionResponse
	decodeResponse(t, rec, &body)
	if body.ID != s.ID || body.Status != "completed" || body.StopReason != "input_closed" || body.EndedAt == nil {
		t.Fatalf("unexpected session: %+v", body)
	}
	if len(body.Segments) != 1 || body.Segments[0].Text != "hello" || body.Segments[0].EndMs != 900 {
		t.Fatalf("unexpected segments: %+v", body.Segments)
	}
	if body.Summary == nil || body.Summary.Summary != "greeting" {
		t.Fatalf("unexpected summary: %+v", body.Summary)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/sessions/missing", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestSummarizeSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	done := seedSession(t, env.repo, true)
	running := seedSession(t, env.repo, false)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+done.ID+"/summary", nil, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.enqueuer.ids) != 1 || env.enqueuer.ids[0] != done.ID {
		t.Fatalf("unexpected enqueued ids: %v", env.enqueuer.ids)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+running.ID+"/summary", nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for running session, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/sessions/missing/summary", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	env.enqueuer.err = errors.New("redis down")
	if rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+done.ID+"/summary", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when enqueue fails, got %d", rec.Code)
	}
}
