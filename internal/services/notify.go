package services

import (
	"context"
	"errors"
	"fmt"

	"daily-album-backend/internal/apperr"
	"daily-album-backend/internal/models"
	"daily-album-backend/internal/push"

	"github.com/rs/zerolog/log"
)

// TokenStore is the device token lookup the notifier needs.
type TokenStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.DeviceToken, error)
	ListAll(ctx context.Context) ([]*models.DeviceToken, error)
}

// NotifyService fans pushes out to device tokens. Every delivery is
// best-effort: a missing token or a provider failure is logged and never
// propagated into the operation that triggered the push.
type NotifyService struct {
	tokenRepo TokenStore
	senders   map[string]push.Sender
}

// NewNotifyService creates a new notify service. Senders are keyed by token
// platform; a nil sender disables that platform.
func NewNotifyService(tokenRepo TokenStore, fcm, apns push.Sender) *NotifyService {
	senders := make(map[string]push.Sender)
	if fcm != nil {
		senders[models.PlatformFCM] = fcm
	}
	if apns != nil {
		senders[models.PlatformAPNs] = apns
	}
	return &NotifyService{tokenRepo: tokenRepo, senders: senders}
}

// NotifyPartnerUpload tells the uploader's partner that the day's photo
// landed.
func (s *NotifyService) NotifyPartnerUpload(ctx context.Context, conv *models.Conversation, uploaderID, uploaderName, dateID string) {
	partnerID := conv.PartnerOf(uploaderID)
	if partnerID == "" {
		log.Warn().Str("conversation_id", conv.ID).Str("user_id", uploaderID).
			Msg("Uploader is not a conversation member, skipping partner push")
		return
	}
	if uploaderName == "" {
		uploaderName = "Your partner"
	}
	s.sendToUser(ctx, partnerID, push.Notification{
		Title: "New photo! 📸",
		Body:  fmt.Sprintf("%s shared a photo today", uploaderName),
		Data: map[string]string{
			"type":            push.TypePartnerUpload,
			"conversation_id": conv.ID,
			"date_id":         dateID,
			"upload_id":       models.UploadID(dateID, uploaderID),
		},
	})
}

// NotifyChatInvite tells a user they were added to a new conversation.
func (s *NotifyService) NotifyChatInvite(ctx context.Context, inviteeID, inviterLabel, convID string) {
	s.sendToUser(ctx, inviteeID, push.Notification{
		Title: "New chat 💬",
		Body:  fmt.Sprintf("%s started a chat with you", inviterLabel),
		Data: map[string]string{
			"type":            push.TypeChatInvite,
			"conversation_id": convID,
		},
	})
}

// SendTest pushes a test notification to one user. Unlike the product
// pushes, failures are returned so the admin caller can see them.
func (s *NotifyService) SendTest(ctx context.Context, userID string) error {
	token, err := s.tokenRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperr.Classify(err)
	}
	return s.dispatch(ctx, token, push.Notification{
		Title: "Test notification",
		Body:  "Push delivery is working 🎉",
		Data:  map[string]string{"type": push.TypeTest},
	})
}

// FanOutToAll sends one notification to every registered token and reports
// how many deliveries succeeded and failed.
func (s *NotifyService) FanOutToAll(ctx context.Context, n push.Notification) (sent, failed int) {
	tokens, err := s.tokenRepo.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Str("type", n.Data["type"]).Msg("Failed to list device tokens for fan-out")
		return 0, 0
	}
	for _, token := range tokens {
		if err := s.dispatch(ctx, token, n); err != nil {
			failed++
			continue
		}
		sent++
	}
	log.Info().Str("type", n.Data["type"]).Int("sent", sent).Int("failed", failed).
		Msg("Push fan-out complete")
	return sent, failed
}

func (s *NotifyService) sendToUser(ctx context.Context, userID string, n push.Notification) {
	token, err := s.tokenRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(apperr.Classify(err), apperr.ErrNotFound) {
			log.Debug().Str("user_id", userID).Str("type", n.Data["type"]).
				Msg("No device token registered, skipping push")
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load device token")
		return
	}
	if err := s.dispatch(ctx, token, n); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", n.Data["type"]).
			Msg("Push delivery failed")
	}
}

func (s *NotifyService) dispatch(ctx context.Context, token *models.DeviceToken, n push.Notification) error {
	sender, ok := s.senders[token.Platform]
	if !ok {
		return fmt.Errorf("no sender configured for platform %q", token.Platform)
	}
	return sender.Send(ctx, token, n)
}
