package handlers

import (
	"io"
	"net/http"
	"time"

	"daily-album-backend/internal/daybucket"
	"daily-album-backend/internal/middleware"
	"daily-album-backend/internal/models"
	"daily-album-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 32 << 20

// PhotoHandler handles daily photo HTTP requests
type PhotoHandler struct {
	photoService *services.PhotoService
	convService  *services.ConversationService
	userService  *services.UserService
	notify       *services.NotifyService
	hub          *services.WSHub
	loc          *time.Location
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(
	photoService *services.PhotoService,
	convService *services.ConversationService,
	userService *services.UserService,
	notify *services.NotifyService,
	hub *services.WSHub,
	loc *time.Location,
) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
		convService:  convService,
		userService:  userService,
		notify:       notify,
		hub:          hub,
		loc:          loc,
	}
}

// uploadDTO is the wire shape of an upload. The partner's photo stays
// redacted until the viewer has uploaded their own: existence is visible,
// content is not.
type uploadDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DateID    string    `json:"date_id"`
	ImageURL  string    `json:"image_url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Locked    bool      `json:"locked,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUploadDTO(u *models.Upload, redact bool) *uploadDTO {
	if u == nil {
		return nil
	}
	dto := &uploadDTO{
		ID:        u.ID,
		UserID:    u.UserID,
		DateID:    u.DateID,
		ImageURL:  u.ImageURL,
		Caption:   u.Caption,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if redact {
		dto.ImageURL = ""
		dto.Caption = ""
		dto.Locked = true
	}
	return dto
}

type dayResponse struct {
	DateID           string            `json:"date_id"`
	Post             *models.DailyPost `json:"post,omitempty"`
	MyUpload         *uploadDTO        `json:"my_upload,omitempty"`
	PartnerUpload    *uploadDTO        `json:"partner_upload,omitempty"`
	CanViewPartner   bool              `json:"can_view_partner"`
	PartnerHasUpload bool              `json:"partner_has_upload"`
}

// dateIDFrom reads the {dateId} segment, mapping the "today" alias to the
// current bucket. Every day route accepts the alias, so an upload created
// via /days/today can be read, edited and deleted through the same URL.
func (h *PhotoHandler) dateIDFrom(r *http.Request) string {
	dateID := chi.URLParam(r, "dateId")
	if dateID == "today" {
		return daybucket.Today(h.loc)
	}
	return dateID
}

// conversationFrom resolves the target conversation. Routes without a
// conversation segment fall back to the caller's only conversation, for
// clients from the original two-person deployment.
func (h *PhotoHandler) conversationFrom(r *http.Request, userID string) (*models.Conversation, error) {
	if convID := chi.URLParam(r, "conversationId"); convID != "" {
		return h.convService.Get(r.Context(), convID, userID)
	}
	return h.convService.ResolveForUser(r.Context(), userID)
}

// GetDay handles GET /api/v1/conversations/{conversationId}/days/{dateId}
// and the conversation-less GET /api/v1/days/{dateId}.
func (h *PhotoHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	dateID := h.dateIDFrom(r)

	conv, err := h.conversationFrom(r, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	view, err := h.photoService.LoadDay(ctx, userID, conv, dateID)
	if err != nil {
		log.Error().Err(err).
			Str("user_id", userID).
			Str("conversation_id", conv.ID).
			Str("date_id", dateID).
			Msg("Failed to load day")
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dayResponse{
		DateID:           view.DateID,
		Post:             view.Post,
		MyUpload:         toUploadDTO(view.Mine, false),
		PartnerUpload:    toUploadDTO(view.Partner, !view.CanViewPartner),
		CanViewPartner:   view.CanViewPartner,
		PartnerHasUpload: view.Partner != nil,
	})
}

// Upload handles POST /api/v1/conversations/{conversationId}/days/{dateId}/upload.
// Multipart form: "image" (required) and "caption" (optional). Re-posting the
// same day replaces the previous upload.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	dateID := h.dateIDFrom(r)

	conv, err := h.conversationFrom(r, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	upload, err := h.photoService.SubmitUpload(ctx, userID, conv, dateID, file, header.Header.Get("Content-Type"), r.FormValue("caption"))
	if err != nil {
		log.Error().Err(err).
			Str("user_id", userID).
			Str("conversation_id", conv.ID).
			Str("date_id", dateID).
			Msg("Failed to submit upload")
		respondClassified(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("upload_id", upload.ID).
		Msg("Photo uploaded")

	uploaderName := ""
	if user, err := h.userService.GetByID(ctx, userID); err == nil {
		uploaderName = user.DisplayName
		if uploaderName == "" {
			uploaderName = user.Username
		}
	}
	h.notify.NotifyPartnerUpload(ctx, conv, userID, uploaderName, dateID)
	h.hub.NotifyUploadChanged("upload_created", conv, userID, dateID)

	respondJSON(w, http.StatusCreated, toUploadDTO(upload, false))
}

// Edit handles PUT /api/v1/conversations/{conversationId}/days/{dateId}/upload.
// Multipart form: "image" (optional replacement) and "caption".
func (h *PhotoHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	dateID := h.dateIDFrom(r)

	conv, err := h.conversationFrom(r, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	var (
		body        io.Reader
		contentType string
	)
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		body = file
		contentType = header.Header.Get("Content-Type")
	}

	upload, err := h.photoService.EditUpload(ctx, userID, conv, dateID, body, contentType, r.FormValue("caption"))
	if err != nil {
		log.Error().Err(err).
			Str("user_id", userID).
			Str("date_id", dateID).
			Msg("Failed to edit upload")
		respondClassified(w, err)
		return
	}

	h.hub.NotifyUploadChanged("upload_edited", conv, userID, dateID)
	respondJSON(w, http.StatusOK, toUploadDTO(upload, false))
}

// Delete handles DELETE /api/v1/conversations/{conversationId}/days/{dateId}/upload
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	dateID := h.dateIDFrom(r)

	conv, err := h.conversationFrom(r, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	if err := h.photoService.DeleteUpload(ctx, userID, conv, dateID); err != nil {
		log.Error().Err(err).
			Str("user_id", userID).
			Str("date_id", dateID).
			Msg("Failed to delete upload")
		respondClassified(w, err)
		return
	}

	h.hub.NotifyUploadChanged("upload_deleted", conv, userID, dateID)
	w.WriteHeader(http.StatusNoContent)
}

// Memories handles GET /api/v1/conversations/{conversationId}/memories
func (h *PhotoHandler) Memories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conv, err := h.conversationFrom(r, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	memories, err := h.photoService.LoadMemories(ctx, userID, conv, daybucket.Today(h.loc))
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", conv.ID).
			Msg("Failed to load memories")
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"today": memories.Today,
		"past":  memories.Past,
	})
}
