package push

import (
	"context"
	"fmt"

	"daily-album-backend/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// FCMSender delivers notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initializes the Firebase app from a service account file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{}, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase init failed: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client init failed: %w", err)
	}

	return &FCMSender{client: client}, nil
}

// Send delivers one message to one FCM token.
func (s *FCMSender) Send(ctx context.Context, token *models.DeviceToken, n Notification) error {
	badge := 1

	message := &messaging.Message{
		Token: token.Token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
			Priority: "high",
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Icon:  "/favicon.svg",
				Badge: "/favicon.svg",
			},
		},
	}

	resp, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("FCM send failed: %w", err)
	}

	log.Debug().
		Str("token", maskToken(token.Token)).
		Str("message_id", resp).
		Msg("FCM message sent")
	return nil
}
