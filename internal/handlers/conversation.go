package handlers

import (
	"encoding/json"
	"net/http"

	"daily-album-backend/internal/middleware"
	"daily-album-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ConversationHandler handles conversation-related HTTP requests
type ConversationHandler struct {
	convService *services.ConversationService
	notify      *services.NotifyService
	hub         *services.WSHub
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(convService *services.ConversationService, notify *services.NotifyService, hub *services.WSHub) *ConversationHandler {
	return &ConversationHandler{
		convService: convService,
		notify:      notify,
		hub:         hub,
	}
}

type createConversationRequest struct {
	PartnerID string `json:"partner_id"`
}

// Create handles POST /api/v1/conversations. Creating a conversation that
// already exists for the pair returns the existing one, and only a genuinely
// new conversation notifies the partner.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conv, created, err := h.convService.Create(ctx, userID, req.PartnerID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("partner_id", req.PartnerID).
			Msg("Failed to create conversation")
		respondClassified(w, err)
		return
	}

	if created {
		log.Info().
			Str("conversation_id", conv.ID).
			Str("created_by", userID).
			Msg("Conversation created")

		inviter := h.convService.InviterLabel(ctx, userID)
		h.notify.NotifyChatInvite(ctx, req.PartnerID, inviter, conv.ID)
		if err := h.hub.NotifyConversationCreated(req.PartnerID, conv); err != nil {
			log.Debug().Err(err).Str("user_id", req.PartnerID).Msg("Partner not connected for conversation event")
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	convs, err := h.convService.ListForUser(ctx, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

// Get handles GET /api/v1/conversations/{conversationId}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	convID := chi.URLParam(r, "conversationId")

	conv, err := h.convService.Get(ctx, convID, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{conversationId}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	convID := chi.URLParam(r, "conversationId")

	conv, err := h.convService.Get(ctx, convID, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	if err := h.convService.Delete(ctx, convID, userID); err != nil {
		log.Error().Err(err).Str("conversation_id", convID).Msg("Failed to delete conversation")
		respondClassified(w, err)
		return
	}

	log.Info().Str("conversation_id", convID).Str("user_id", userID).Msg("Conversation deleted")

	if partnerID := conv.PartnerOf(userID); partnerID != "" {
		if err := h.hub.NotifyConversationDeleted(partnerID); err != nil {
			log.Debug().Err(err).Str("user_id", partnerID).Msg("Partner not connected for delete event")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
