package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// User represents a registered account with its profile.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	UsernameLowercase string    `json:"-"`
	DisplayName       string    `json:"display_name"`
	ProfilePictureURL string    `json:"profile_picture_url,omitempty"`
	PasswordHash      string    `json:"-"`
	Disabled          bool      `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Conversation is an unordered pair of exactly two users. Its ID is derived
// from the participants and membership never changes after creation.
type Conversation struct {
	ID          string    `json:"id"`
	UserAID     string    `json:"user_a_id"`
	UserBID     string    `json:"user_b_id"`
	CreatedBy   string    `json:"created_by"`
	LastMessage string    `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConversationID derives the deterministic, symmetric id for a pair: the two
// user ids sorted and joined with an underscore.
func ConversationID(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return ids[0] + "_" + ids[1]
}

// PartnerOf returns the other participant's id, or "" if userID is not a
// member.
func (c *Conversation) PartnerOf(userID string) string {
	switch userID {
	case c.UserAID:
		return c.UserBID
	case c.UserBID:
		return c.UserAID
	}
	return ""
}

// HasMember reports whether userID participates in the conversation.
func (c *Conversation) HasMember(userID string) bool {
	return userID == c.UserAID || userID == c.UserBID
}

// Upload is one user's photo for one day bucket within a conversation. The
// record id {date_id}_{user_id} is the natural key: at most one upload per
// user per day, and a repeated submit overwrites in place.
type Upload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	DateID         string    `json:"date_id"`
	ImageURL       string    `json:"image_url"`
	StorageKey     string    `json:"-"`
	Caption        string    `json:"caption"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UploadID builds the natural key for a (day bucket, user) pair.
func UploadID(dateID, userID string) string {
	return dateID + "_" + userID
}

// NewUpload validates required fields and returns a populated record.
func NewUpload(convID, userID, dateID, imageURL, storageKey, caption string, now time.Time) (*Upload, error) {
	if convID == "" || userID == "" || dateID == "" {
		return nil, fmt.Errorf("conversation_id, user_id and date_id are required")
	}
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("image_url is required")
	}
	return &Upload{
		ID:             UploadID(dateID, userID),
		ConversationID: convID,
		UserID:         userID,
		DateID:         dateID,
		ImageURL:       imageURL,
		StorageKey:     storageKey,
		Caption:        caption,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// DailyPost is the administrative theme/memory record for one day bucket.
// Read-only from the app's perspective.
type DailyPost struct {
	ConversationID string    `json:"conversation_id"`
	DateID         string    `json:"date_id"`
	ThemeText      string    `json:"theme_text"`
	MemoryImageURL string    `json:"memory_image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Push token platforms.
const (
	PlatformFCM  = "fcm"
	PlatformAPNs = "apns"
)

// DeviceToken holds a user's most recent push token. Merge-on-write keyed by
// user id: re-registration from a new device replaces the previous token, so
// only the latest device receives pushes.
type DeviceToken struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDeviceToken validates and builds a token record.
func NewDeviceToken(userID, token, platform string, now time.Time) (*DeviceToken, error) {
	if userID == "" || token == "" {
		return nil, fmt.Errorf("user_id and token are required")
	}
	switch platform {
	case PlatformFCM, PlatformAPNs:
	case "":
		platform = PlatformFCM
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	return &DeviceToken{UserID: userID, Token: token, Platform: platform, UpdatedAt: now}, nil
}
