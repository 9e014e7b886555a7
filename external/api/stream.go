package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const audioBufferSize = 64

type StreamHandler struct {
	runner       SessionRunner
	defaults     transcriber.SessionConfig
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

type streamControl struct {
	Type string `json:"type"`
}

type streamMessage struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id,omitempty"`
	Index      *int     `json:"index,omitempty"`
	Text       string   `json:"text,omitempty"`
	ResultID   string   `json:"result_id,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	StartMs    *int64   `json:"start_ms,omitempty"`
	EndMs      *int64   `json:"end_ms,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Stream accepts binary audio frames and replies with one message per finalized transcript.
// A text frame {"type":"end"} or a close from the client ends the audio input; remaining
// results are flushed before the server closes the connection.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.sessionConfig(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := slog.With("connection_id", connID)
	logger.Info("transcription stream opened", "language_code", cfg.LanguageCode, "sample_rate_hz", cfg.SampleRateHz, "media_encoding", cfg.MediaEncoding)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	audio := make(chan transcriber.AudioChunk, audioBufferSize)
	var closeOnce sync.Once
	closeInput := func() { closeOnce.Do(func() { close(audio) }) }
	go h.readAudio(ctx, conn, audio, closeInput, logger)

	send := func(msg streamMessage) {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("failed to write stream message", "error", err, "type", msg.Type)
		}
	}

	runErr := h.runner.Run(ctx, session.StartRequest{
		Source: repository.SessionSourceWebSocket,
		Config: cfg,
	}, audio, session.Hooks{
		OnStart: func(s *repository.Session) {
			logger.Info("transcription session started", "session_id", s.ID)
			send(streamMessage{Type: "session", SessionID: s.ID})
		},
		OnTranscript: func(seg repository.TranscriptSegment) {
			idx, startMs, endMs := seg.SegmentIndex, seg.StartMs, seg.EndMs
			send(streamMessage{
				Type:       "transcript",
				Index:      &idx,
				Text:       seg.Content,
				ResultID:   seg.ResultID,
				Confidence: seg.Confidence,
				StartMs:    &startMs,
				EndMs:      &endMs,
			})
		},
	})

	closeCode := websocket.CloseNormalClosure
	switch {
	case runErr == nil:
		logger.Info("transcription stream closed")
	case errors.Is(runErr, context.Canceled):
		logger.Info("transcription stream canceled")
	default:
		logger.Warn("transcription stream ended with error", "error", runErr)
		send(streamMessage{Type: "error", Message: runErr.Error()})
		closeCode = websocket.CloseInternalServerErr
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, ""), time.Now().Add(h.writeTimeout))
}

// readAudio forwards binary frames until the client signals the end of input. It keeps
// reading afterwards so control frames are still processed.
func (h *StreamHandler) readAudio(ctx context.Context, conn *websocket.Conn, audio chan<- transcriber.AudioChunk, closeInput func(), logger *slog.Logger) {
	defer closeInput()
	ended := false
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !ended {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if ended {
			continue
		}
		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			select {
			case audio <- transcriber.AudioChunk(data):
			case <-ctx.Done():
				return
			}
		case websocket.TextMessage:
			var ctrl streamControl
			if err := json.Unmarshal(data, &ctrl); err != nil {
				logger.Debug("ignored malformed control frame", "error", err)
				continue
			}
			if ctrl.Type == "end" {
				ended = true
				closeInput()
			}
		}
	}
}

func (h *StreamHandler) sessionConfig(r *http.Request) (transcriber.SessionConfig, error) {
	cfg := h.defaults
	q := r.URL.Query()
	if v := q.Get("language_code"); v != "" {
		cfg.LanguageCode = v
	}
	if v := q.Get("media_encoding"); v != "" {
		cfg.MediaEncoding = transcriber.MediaEncoding(v)
	}
	if v := q.Get("sample_rate_hz"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.New("sample_rate_hz must be an integer")
		}
		cfg.SampleRateHz = n
	}
	return cfg, cfg.Validate()
}
