package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/RichardoC/orion/internal/relay"
	"go.uber.org/zap"
)

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	FileContent    string `json:"fileContent,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	IsImage        bool   `json:"isImage,omitempty"`
}

// sseWriter frames each event as a server-sent "data:" line and flushes it.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) Emit(ev relay.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (h *Handler) ChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		errorJSON(w, http.StatusInternalServerError, "Streaming not supported.")
		return
	}

	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "Message is required.")
		return
	}

	chat := relay.Request{
		UserID:         userIDFrom(r.Context()),
		Message:        req.Message,
		ConversationID: req.ConversationID,
	}
	if req.FileContent != "" {
		name := req.FileName
		if name == "" {
			name = "attachment"
		}
		chat.File = &relay.Attachment{Name: name, Content: req.FileContent, IsImage: req.IsImage}
	}

	turn, err := h.relay.Begin(r.Context(), chat)
	switch {
	case errors.Is(err, relay.ErrEmptyMessage):
		errorJSON(w, http.StatusBadRequest, "Message is required.")
		return
	case errors.Is(err, relay.ErrAccessDenied):
		errorJSON(w, http.StatusForbidden, "Access denied.")
		return
	case errors.Is(err, relay.ErrTurnInProgress):
		errorJSON(w, http.StatusConflict, "A reply is already in progress for this conversation.")
		return
	case err != nil:
		h.logger.Error("Failed to start chat turn", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "Stream failed.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := turn.Run(r.Context(), &sseWriter{w: w, flusher: flusher}); err != nil {
		h.logger.Debug("Chat stream ended early", zap.Error(err))
	}
}
