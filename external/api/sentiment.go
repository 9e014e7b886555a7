package api

import (
	"net/http"
	"strings"

	"github.com/foxseedlab/kikitori/internal/sentiment"
)

type SentimentHandler struct {
	classifier   sentiment.Classifier
	policy       sentiment.AlertPolicy
	languageCode string
}

type sentimentRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

type sentimentResponse struct {
	Label  sentiment.Label  `json:"label"`
	Scores sentiment.Scores `json:"scores"`
	Alert  bool             `json:"alert"`
}

func (h *SentimentHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusUnprocessableEntity, "text is required")
		return
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = h.languageCode
	}
	result, err := h.classifier.Classify(r.Context(), req.Text, lang)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sentimentResponse{
		Label:  result.Label,
		Scores: result.Scores,
		Alert:  h.policy.IsAlertable(result),
	})
}
