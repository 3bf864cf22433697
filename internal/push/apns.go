package push

import (
	"context"
	"fmt"

	"daily-album-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

// APNsSender delivers notifications directly through Apple Push Notification
// service for tokens registered with the apns platform.
type APNsSender struct {
	client *apns2.Client
	topic  string
}

// NewAPNsSender loads a .p12 certificate and builds the client.
func NewAPNsSender(certFile, certPass, topic string, production bool) (*APNsSender, error) {
	cert, err := certificate.FromP12File(certFile, certPass)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}

	client := apns2.NewClient(cert).Development()
	if production {
		client = apns2.NewClient(cert).Production()
	}

	return &APNsSender{client: client, topic: topic}, nil
}

// Send delivers one message to one APNs device token.
func (s *APNsSender) Send(ctx context.Context, token *models.DeviceToken, n Notification) error {
	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Badge(1).
		Sound("default")
	for k, v := range n.Data {
		p = p.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: token.Token,
		Topic:       s.topic,
		Payload:     p,
	}

	resp, err := s.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("APNs push failed: %w", err)
	}
	if !resp.Sent() {
		return fmt.Errorf("APNs rejected push: %s", resp.Reason)
	}

	log.Debug().
		Str("token", maskToken(token.Token)).
		Str("apns_id", resp.ApnsID).
		Msg("APNs message sent")
	return nil
}
