package api

import (
	"net/http"

	"github.com/foxseedlab/kikitori/internal/document"
)

type DocumentHandler struct {
	extractor TextExtractor
}

type extractTextRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (h *DocumentHandler) ExtractText(w http.ResponseWriter, r *http.Request) {
	var req extractTextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := document.ObjectRef{Bucket: req.Bucket, Key: req.Key}
	if err := ref.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	text, err := h.extractor.ExtractText(r.Context(), ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
