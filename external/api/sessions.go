package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/kikitori/internal/queue"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/go-chi/chi/v5"
)

type SessionHandler struct {
	repo     repository.Repository
	enqueuer queue.Enqueuer
}

type sessionResponse struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	GuildID      string            `json:"guild_id,omitempty"`
	ChannelID    string            `json:"channel_id,omitempty"`
	LanguageCode string            `json:"language_code"`
	SampleRateHz int               `json:"sample_rate_hz"`
	Status       string            `json:"status"`
	StopReason   string            `json:"stop_reason,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
	Segments     []segmentResponse `json:"segments"`
	Summary      *summaryResponse  `json:"summary,omitempty"`
}

type segmentResponse struct {
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	ResultID   string    `json:"result_id,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	StartMs    int64     `json:"start_ms"`
	EndMs      int64     `json:"end_ms"`
	SpokenAt   time.Time `json:"spoken_at"`
}

type summaryResponse struct {
	ModelID   string    `json:"model_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	s, err := h.repo.GetSession(ctx, id)
	if err != nil {
		slog.Error("failed to load session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	segments, err := h.repo.ListSegmentsBySessionID(ctx, id)
	if err != nil {
		slog.Error("failed to list segments", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load segments")
		return
	}
	sum, err := h.repo.GetSummary(ctx, id)
	if err != nil {
		slog.Error("failed to load summary", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	resp := sessionResponse{
		ID:           s.ID,
		Source:       string(s.Source),
		GuildID:      s.GuildID,
		ChannelID:    s.ChannelID,
		LanguageCode: s.LanguageCode,
		SampleRateHz: s.SampleRateHz,
		Status:       string(s.Status),
		StopReason:   s.StopReason,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		Segments:     make([]segmentResponse, 0, len(segments)),
	}
	for _, seg := range segments {
		resp.Segments = append(resp.Segments, segmentResponse{
			Index:      seg.SegmentIndex,
			Text:       seg.Content,
			ResultID:   seg.ResultID,
			Confidence: seg.Confidence,
			StartMs:    seg.StartMs,
			EndMs:      seg.EndMs,
			SpokenAt:   seg.SpokenAt,
		})
	}
	if sum != nil {
		resp.Summary = &summaryResponse{ModelID: sum.ModelID, Summary: sum.Summary, CreatedAt: sum.CreatedAt}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("failed to load session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if s.Status == repository.SessionStatusRunning {
		writeError(w, http.StatusConflict, "session is still running")
		return
	}
	if err := h.enqueuer.EnqueueSummarize(r.Context(), id); err != nil {
		slog.Error("failed to enqueue summary", "error", err, "session_id", id)
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue summary")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued", "session_id": id})
}
