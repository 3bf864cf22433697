package models_test

import (
	"testing"
	"time"

	"daily-album-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationID_SymmetricAndDeterministic(t *testing.T) {
	a, b := "uid-bob", "uid-alice"
	assert.Equal(t, models.ConversationID(a, b), models.ConversationID(b, a))
	assert.Equal(t, "uid-alice_uid-bob", models.ConversationID(a, b))
}

func TestConversation_PartnerOf(t *testing.T) {
	c := &models.Conversation{ID: "a_b", UserAID: "a", UserBID: "b"}
	assert.Equal(t, "b", c.PartnerOf("a"))
	assert.Equal(t, "a", c.PartnerOf("b"))
	assert.Equal(t, "", c.PartnerOf("stranger"))
	assert.True(t, c.HasMember("a"))
	assert.False(t, c.HasMember("stranger"))
}

func TestUploadID(t *testing.T) {
	assert.Equal(t, "2025-06-01_uid-1", models.UploadID("2025-06-01", "uid-1"))
}

func TestNewUpload(t *testing.T) {
	now := time.Now()

	u, err := models.NewUpload("a_b", "a", "2025-06-01", "https://img/1.jpg", "k/1.jpg", "beach day", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01_a", u.ID)
	assert.Equal(t, "beach day", u.Caption)

	_, err = models.NewUpload("a_b", "a", "2025-06-01", "  ", "", "", now)
	assert.Error(t, err, "empty image reference must be rejected")

	_, err = models.NewUpload("", "a", "2025-06-01", "https://img/1.jpg", "", "", now)
	assert.Error(t, err)
}

func TestNewDeviceToken(t *testing.T) {
	now := time.Now()

	tok, err := models.NewDeviceToken("u1", "t1", "", now)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformFCM, tok.Platform, "platform defaults to fcm")

	tok, err = models.NewDeviceToken("u1", "t1", models.PlatformAPNs, now)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformAPNs, tok.Platform)

	_, err = models.NewDeviceToken("u1", "", models.PlatformFCM, now)
	assert.Error(t, err)

	_, err = models.NewDeviceToken("u1", "t1", "sms", now)
	assert.Error(t, err)
}
