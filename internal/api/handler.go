// Package api exposes the chat service over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/RichardoC/orion/internal/auth"
	"github.com/RichardoC/orion/internal/db"
	"github.com/RichardoC/orion/internal/extract"
	"github.com/RichardoC/orion/internal/models"
	"github.com/RichardoC/orion/internal/relay"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	store     db.Store
	auth      *auth.Service
	relay     *relay.Relay
	extractor *extract.Extractor
	logger    *zap.Logger
}

func NewHandler(store db.Store, authService *auth.Service, chatRelay *relay.Relay, extractor *extract.Extractor, logger *zap.Logger) *Handler {
	return &Handler{
		store:     store,
		auth:      authService,
		relay:     chatRelay,
		extractor: extractor,
		logger:    logger,
	}
}

type ConversationListResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
}

type ConversationResponse struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"createdAt"`
	Messages  []models.Message `json:"messages"`
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	conversations, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list conversations",
			zap.Error(err),
			zap.String("userID", userID))
		errorJSON(w, http.StatusInternalServerError, "Failed to load conversations.")
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("userID", userID))
	writeJSON(w, http.StatusOK, ConversationListResponse{Conversations: conversations})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r, "Failed to load conversation.")
	if !ok {
		return
	}

	messages, err := h.store.GetMessages(r.Context(), conv.ID)
	if err != nil {
		h.logger.Error("Failed to get messages", zap.Error(err), zap.String("conversationID", conv.ID))
		errorJSON(w, http.StatusInternalServerError, "Failed to load conversation.")
		return
	}

	writeJSON(w, http.StatusOK, ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		Messages:  messages,
	})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r, "Failed to delete conversation.")
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(r.Context(), conv.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		h.logger.Error("Failed to delete conversation", zap.Error(err), zap.String("conversationID", conv.ID))
		errorJSON(w, http.StatusInternalServerError, "Failed to delete conversation.")
		return
	}

	h.logger.Info("Deleted conversation", zap.String("conversationID", conv.ID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation deleted."})
}

// ownedConversation resolves the {id} route parameter for the caller,
// writing a 404 or 403 itself when that fails.
func (h *Handler) ownedConversation(w http.ResponseWriter, r *http.Request, failure string) (*models.Conversation, bool) {
	id := chi.URLParam(r, "id")
	conv, err := db.OwnedConversation(r.Context(), h.store, id, userIDFrom(r.Context()))
	switch {
	case errors.Is(err, db.ErrNotFound):
		errorJSON(w, http.StatusNotFound, "Conversation not found.")
		return nil, false
	case errors.Is(err, db.ErrForbidden):
		errorJSON(w, http.StatusForbidden, "Access denied.")
		return nil, false
	case err != nil:
		h.logger.Error("Failed to get conversation", zap.Error(err), zap.String("conversationID", id))
		errorJSON(w, http.StatusInternalServerError, failure)
		return nil, false
	}
	return conv, true
}
