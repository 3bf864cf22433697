package push

import (
	"context"

	"daily-album-backend/internal/models"
)

// Notification type discriminators carried in the payload data map.
const (
	TypePartnerUpload  = "partner_upload"
	TypeMidnightMemory = "midnight_memory"
	TypeChatInvite     = "chat_invite"
	TypeHourlyReminder = "hourly_reminder"
	TypeDailyReminder  = "daily_reminder"
	TypeTest           = "test"
)

// Notification is one push message: a title/body pair plus a data map that
// always carries a "type" discriminator and contextual ids.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers one notification to one device token. Implementations are
// fire-and-forget: the caller logs failures and never retries.
type Sender interface {
	Send(ctx context.Context, token *models.DeviceToken, n Notification) error
}

// maskToken hides all but the last 6 chars for logging safety
func maskToken(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "..." + token[len(token)-6:]
}
