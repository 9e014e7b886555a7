package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/kikitori/internal/webhook"
)

const (
	headerEvent     = "X-Kikitori-Event"
	headerSignature = "X-Kikitori-Signature"
	deliverTimeout  = 10 * time.Second
)

type HTTPSender struct {
	webhookURL string
	secret     []byte
	client     *http.Client
}

func NewHTTPSender(webhookURL, secret string) webhook.Sender {
	return &HTTPSender{
		webhookURL: webhookURL,
		secret:     []byte(secret),
		client:     &http.Client{Timeout: deliverTimeout},
	}
}

func (s *HTTPSender) Deliver(ctx context.Context, event webhook.Event, payload any) error {
	if s.webhookURL == "" {
		return nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, string(event))
	if len(s.secret) > 0 {
		req.Header.Set(headerSignature, "sha256="+Sign(s.secret, b))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s webhook: %w", event, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	slog.Debug("webhook delivered", "event", event, "status", resp.StatusCode)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, as sent in the signature header.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
