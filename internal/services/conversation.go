package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daily-album-backend/internal/apperr"
	"daily-album-backend/internal/models"
	"daily-album-backend/internal/repository"
)

// ConversationService handles pairing business logic
type ConversationService struct {
	convRepo *repository.ConversationRepository
	userRepo *repository.UserRepository
}

// NewConversationService creates a new conversation service
func NewConversationService(convRepo *repository.ConversationRepository, userRepo *repository.UserRepository) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		userRepo: userRepo,
	}
}

// Create starts a conversation between the caller and a partner. The id is
// derived from the sorted participant ids, so creating an already existing
// pair returns the existing conversation (idempotent first-contact). The
// returned bool reports whether a new conversation was created.
func (s *ConversationService) Create(ctx context.Context, callerID, partnerID string) (*models.Conversation, bool, error) {
	if partnerID == "" {
		return nil, false, fmt.Errorf("partner_id is required: %w", apperr.ErrValidation)
	}
	if callerID == partnerID {
		return nil, false, fmt.Errorf("cannot start a conversation with yourself: %w", apperr.ErrValidation)
	}

	if _, err := s.userRepo.GetByID(ctx, partnerID); err != nil {
		if errors.Is(apperr.Classify(err), apperr.ErrNotFound) {
			return nil, false, fmt.Errorf("partner not found: %w", apperr.ErrNotFound)
		}
		return nil, false, apperr.Classify(err)
	}

	convID := models.ConversationID(callerID, partnerID)
	if existing, err := s.convRepo.GetByID(ctx, convID); err == nil {
		return existing, false, nil
	} else if !errors.Is(apperr.Classify(err), apperr.ErrNotFound) {
		return nil, false, apperr.Classify(err)
	}

	userAID, userBID := callerID, partnerID
	if userAID > userBID {
		userAID, userBID = userBID, userAID
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:        convID,
		UserAID:   userAID,
		UserBID:   userBID,
		CreatedBy: callerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, false, apperr.Classify(err)
	}
	return conv, true, nil
}

// Get fetches a conversation and verifies membership.
func (s *ConversationService) Get(ctx context.Context, convID, userID string) (*models.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if !conv.HasMember(userID) {
		return nil, fmt.Errorf("user is not a member of this conversation: %w", apperr.ErrPermissionDenied)
	}
	return conv, nil
}

// ListForUser returns the caller's conversations, most recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	convs, err := s.convRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return convs, nil
}

// ResolveForUser finds the caller's single conversation for requests that
// omit the conversation id (legacy two-party mode). Fails when the user has
// none or more than one.
func (s *ConversationService) ResolveForUser(ctx context.Context, userID string) (*models.Conversation, error) {
	convs, err := s.convRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	switch len(convs) {
	case 0:
		return nil, fmt.Errorf("user has no conversation: %w", apperr.ErrNotFound)
	case 1:
		return convs[0], nil
	default:
		return nil, fmt.Errorf("conversation_id is required when in more than one conversation: %w", apperr.ErrValidation)
	}
}

// Delete removes a conversation the caller belongs to.
func (s *ConversationService) Delete(ctx context.Context, convID, userID string) error {
	conv, err := s.Get(ctx, convID, userID)
	if err != nil {
		return err
	}
	if err := s.convRepo.Delete(ctx, conv.ID); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// InviterLabel resolves the username shown in an invite notification,
// falling back to a generic label when the profile lookup fails.
func (s *ConversationService) InviterLabel(ctx context.Context, inviterID string) string {
	user, err := s.userRepo.GetByID(ctx, inviterID)
	if err != nil || user.Username == "" {
		return "Someone"
	}
	return user.Username
}
