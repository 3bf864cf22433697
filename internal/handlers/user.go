package handlers

import (
	"encoding/json"
	"net/http"

	"daily-album-backend/internal/middleware"
	"daily-album-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type authResponse struct {
	User  interface{} `json:"user"`
	Token string      `json:"token"`
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.userService.Register(ctx, req.Email, req.Username, req.Password, req.DisplayName)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Registration failed")
		respondClassified(w, err)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("User registered")

	respondJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.userService.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", req.Email).Msg("Login failed")
		respondClassified(w, err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("User logged in")

	respondJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

// Logout handles POST /api/v1/auth/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.userService.Deauthenticate(userID)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	DisplayName       string `json:"display_name"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// UpdateProfile handles PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userService.UpdateProfile(ctx, userID, req.DisplayName, req.ProfilePictureURL); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		respondClassified(w, err)
		return
	}

	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		respondClassified(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteAccount handles DELETE /api/v1/users/me
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.userService.DeleteAccount(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to delete account")
		respondClassified(w, err)
		return
	}

	log.Info().Str("user_id", userID).Msg("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}

// SearchUsers handles GET /api/v1/users/search?q=prefix
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	prefix := r.URL.Query().Get("q")
	users, err := h.userService.SearchByUsernamePrefix(ctx, userID, prefix)
	if err != nil {
		respondClassified(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// RegisterPushToken handles POST /api/v1/users/me/push-token
func (h *UserHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req pushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userService.RegisterDeviceToken(ctx, userID, req.Token, req.Platform); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to register push token")
		respondClassified(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnregisterPushToken handles DELETE /api/v1/users/me/push-token
func (h *UserHandler) UnregisterPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.userService.UnregisterDeviceToken(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to unregister push token")
		respondClassified(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
