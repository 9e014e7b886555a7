package api

import (
	"net/http"

	"github.com/foxseedlab/kikitori/internal/summary"
)

type CompletionHandler struct {
	generator summary.Generator
	modelID   string
	opts      summary.InferenceOptions
}

type completionRequest struct {
	ModelID     string            `json:"model_id"`
	System      string            `json:"system"`
	Messages    []summary.Message `json:"messages"`
	MaxTokens   *int              `json:"max_tokens"`
	Temperature *float64          `json:"temperature"`
}

type completionResponse struct {
	ModelID string `json:"model_id"`
	Text    string `json:"text"`
}

func (h *CompletionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var body completionRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := summary.Request{
		ModelID:  h.modelID,
		System:   body.System,
		Messages: body.Messages,
		Options:  h.opts,
	}
	if body.ModelID != "" {
		req.ModelID = body.ModelID
	}
	if body.MaxTokens != nil {
		req.Options.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		req.Options.Temperature = *body.Temperature
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	text, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{ModelID: req.ModelID, Text: text})
}
