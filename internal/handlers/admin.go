package handlers

import (
	"encoding/json"
	"net/http"

	"daily-album-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AdminHandler handles the token-guarded administrative endpoints: daily
// post authoring, push delivery checks and blob maintenance.
type AdminHandler struct {
	photoService *services.PhotoService
	notify       *services.NotifyService
	scheduler    *services.Scheduler
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(photoService *services.PhotoService, notify *services.NotifyService, scheduler *services.Scheduler) *AdminHandler {
	return &AdminHandler{
		photoService: photoService,
		notify:       notify,
		scheduler:    scheduler,
	}
}

type dailyPostRequest struct {
	ConversationID string `json:"conversation_id"`
	DateID         string `json:"date_id"`
	ThemeText      string `json:"theme_text"`
	MemoryImageURL string `json:"memory_image_url"`
}

// UpsertDailyPost handles POST /api/v1/admin/daily-posts
func (h *AdminHandler) UpsertDailyPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dailyPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	post, err := h.photoService.DailyPostUpsert(ctx, req.ConversationID, req.DateID, req.ThemeText, req.MemoryImageURL)
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", req.ConversationID).
			Str("date_id", req.DateID).
			Msg("Failed to upsert daily post")
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, post)
}

type pushTestRequest struct {
	UserID string `json:"user_id"`
}

// PushTest handles POST /api/v1/admin/push-test
func (h *AdminHandler) PushTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pushTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.notify.SendTest(ctx, req.UserID); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Test push failed")
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// TriggerFanOut handles POST /api/v1/admin/fanout/{kind}: runs one of the
// scheduled fan-outs (midnight_memory, daily_reminder, hourly_reminder)
// immediately.
func (h *AdminHandler) TriggerFanOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := chi.URLParam(r, "kind")

	if err := h.scheduler.Trigger(ctx, kind); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Info().Str("kind", kind).Msg("Fan-out triggered manually")
	respondJSON(w, http.StatusOK, map[string]string{"status": "triggered", "kind": kind})
}

type sweepRequest struct {
	ConversationID string `json:"conversation_id"`
}

// SweepOrphans handles POST /api/v1/admin/sweep-orphans: deletes stored
// blobs no upload record references anymore.
func (h *AdminHandler) SweepOrphans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		respondError(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.photoService.SweepOrphans(ctx, req.ConversationID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("Orphan sweep failed")
		respondClassified(w, err)
		return
	}

	log.Info().
		Str("conversation_id", req.ConversationID).
		Int("scanned", result.Scanned).
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Msg("Orphan sweep complete")

	respondJSON(w, http.StatusOK, result)
}
