package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"daily-album-backend/internal/apperr"
	"daily-album-backend/internal/models"
	"daily-album-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const jwtExpDays = 365

// usernamePattern: 3-20 chars, alphanumeric and underscores only.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// UserService handles authentication and profile business logic
type UserService struct {
	userRepo  *repository.UserRepository
	tokenRepo *repository.TokenRepository
	convRepo  *repository.ConversationRepository
	sessions  *SessionTracker
	jwtSecret string
	// allowedEmails is the lowercase sign-in allow-list. Empty means the
	// gate is disabled and any registered account may sign in.
	allowedEmails map[string]bool
}

// NewUserService creates a new user service
func NewUserService(
	userRepo *repository.UserRepository,
	tokenRepo *repository.TokenRepository,
	convRepo *repository.ConversationRepository,
	sessions *SessionTracker,
	jwtSecret string,
	allowedEmails []string,
) *UserService {
	allowed := make(map[string]bool, len(allowedEmails))
	for _, e := range allowedEmails {
		allowed[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &UserService{
		userRepo:      userRepo,
		tokenRepo:     tokenRepo,
		convRepo:      convRepo,
		sessions:      sessions,
		jwtSecret:     jwtSecret,
		allowedEmails: allowed,
	}
}

// EmailAllowed applies the allow-list gate. Checked before any database
// work so a rejected email never reaches the backend.
func (s *UserService) EmailAllowed(email string) bool {
	if len(s.allowedEmails) == 0 {
		return true
	}
	return s.allowedEmails[strings.ToLower(email)]
}

// Authenticate verifies the allow-list, then the credential, and returns the
// user with a signed token.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("email and password are required: %w", apperr.ErrValidation)
	}
	if !s.EmailAllowed(email) {
		return nil, "", fmt.Errorf("email %q is not authorized: %w", email, apperr.ErrAccessDenied)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		classified := apperr.Classify(err)
		if errors.Is(classified, apperr.ErrNotFound) {
			// Indistinguishable from a wrong password on purpose.
			return nil, "", fmt.Errorf("invalid credentials: %w", apperr.ErrAuthFailure)
		}
		if errors.Is(classified, apperr.ErrConnectivity) {
			return nil, "", fmt.Errorf("auth backend unreachable: %w", apperr.ErrConnectivity)
		}
		return nil, "", fmt.Errorf("failed to look up account: %w", apperr.ErrAuthFailure)
	}

	if user.Disabled {
		return nil, "", fmt.Errorf("account is disabled: %w", apperr.ErrAuthFailure)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("invalid credentials: %w", apperr.ErrAuthFailure)
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.sessions.Begin(user.ID)
	return user, token, nil
}

// Deauthenticate clears session-scoped state for the user.
func (s *UserService) Deauthenticate(userID string) {
	s.sessions.Clear(userID)
}

// ValidateUsername checks the local pattern only.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 3-20 characters (letters, numbers, underscore): %w", apperr.ErrValidation)
	}
	return nil
}

// Register creates an account: pattern check, case-insensitive uniqueness
// lookup, then the account row. If the profile enrichment update fails after
// the account row exists, a minimal profile is returned instead of failing
// the whole registration.
func (s *UserService) Register(ctx context.Context, email, username, password, displayName string) (*models.User, string, error) {
	if email == "" || password == "" || username == "" {
		return nil, "", fmt.Errorf("email, username and password are required: %w", apperr.ErrValidation)
	}
	if err := ValidateUsername(username); err != nil {
		return nil, "", err
	}
	if len(password) < 6 {
		return nil, "", fmt.Errorf("password must be at least 6 characters: %w", apperr.ErrValidation)
	}

	taken, err := s.userRepo.UsernameExists(ctx, username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check username: %w", apperr.Classify(err))
	}
	if taken {
		return nil, "", fmt.Errorf("username %q is already in use: %w", username, apperr.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		ID:                uuid.New().String(),
		Email:             strings.ToLower(email),
		Username:          username,
		UsernameLowercase: strings.ToLower(username),
		DisplayName:       username,
		PasswordHash:      string(hash),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		classified := apperr.Classify(err)
		if errors.Is(classified, apperr.ErrValidation) {
			// Lost the race against a concurrent registration of the
			// same username; report it like the sequential duplicate.
			return nil, "", fmt.Errorf("username %q is already in use: %w", username, apperr.ErrValidation)
		}
		return nil, "", fmt.Errorf("failed to create account: %w", classified)
	}

	if displayName != "" && displayName != username {
		if err := s.userRepo.UpdateProfile(ctx, user.ID, displayName, ""); err != nil {
			// Account exists; fall back to the minimal profile.
			log.Warn().Err(err).Str("user_id", user.ID).Msg("Profile enrichment failed, using minimal profile")
		} else {
			user.DisplayName = displayName
		}
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.sessions.Begin(user.ID)
	return user, token, nil
}

// GetByID fetches a user's profile.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return user, nil
}

// UpdateProfile edits display name and profile picture.
func (s *UserService) UpdateProfile(ctx context.Context, userID, displayName, pictureURL string) error {
	if strings.TrimSpace(displayName) == "" {
		return fmt.Errorf("display_name is required: %w", apperr.ErrValidation)
	}
	if err := s.userRepo.UpdateProfile(ctx, userID, displayName, pictureURL); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// SearchByUsernamePrefix finds candidate partners, excluding the caller.
func (s *UserService) SearchByUsernamePrefix(ctx context.Context, callerID, prefix string) ([]*models.User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	users, err := s.userRepo.SearchByUsernamePrefix(ctx, prefix, 10)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	filtered := users[:0]
	for _, u := range users {
		if u.ID != callerID {
			filtered = append(filtered, u)
		}
	}
	return filtered, nil
}

// DeleteAccount removes the profile, device token, and conversation
// memberships. Upload blobs are left for the orphan sweep.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.convRepo.DeleteByUserID(ctx, userID); err != nil {
		return apperr.Classify(err)
	}
	if err := s.tokenRepo.Delete(ctx, userID); err != nil && !errors.Is(apperr.Classify(err), apperr.ErrNotFound) {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to delete device token during account removal")
	}
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return apperr.Classify(err)
	}
	s.sessions.Clear(userID)
	return nil
}

// RegisterDeviceToken stores the most recent push token, merge-on-write.
func (s *UserService) RegisterDeviceToken(ctx context.Context, userID, token, platform string) error {
	t, err := models.NewDeviceToken(userID, token, platform, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", err, apperr.ErrValidation)
	}
	if err := s.tokenRepo.Upsert(ctx, t); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// UnregisterDeviceToken drops the user's push token.
func (s *UserService) UnregisterDeviceToken(ctx context.Context, userID string) error {
	if err := s.tokenRepo.Delete(ctx, userID); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// TouchSession records request activity; a false return means the caller's
// session expired from inactivity and a new login is required.
func (s *UserService) TouchSession(userID string) bool {
	return s.sessions.Touch(userID)
}
