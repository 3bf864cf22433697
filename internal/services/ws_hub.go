package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"daily-album-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type           string      `json:"type"`
	Timestamp      int64       `json:"timestamp,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	DateID         string      `json:"date_id,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	Online         *bool       `json:"online,omitempty"`
	Message        string      `json:"message,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

// wsClient wraps a connection with a write lock: gorilla/websocket allows
// at most one concurrent writer per connection, and SendToUser is called
// from arbitrary request goroutines.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
	}

	h.connections[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes a user's connection, but only when the map still holds
// the departing conn: on a reconnect the old reader goroutine unregisters
// after Register has already installed the replacement, and must not tear
// that one down.
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.connections[userID]
	if !exists || client.conn != conn {
		return
	}
	client.conn.Close()
	delete(h.connections, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// NotifyPartnerStatus notifies partner about online/offline status
func (h *WSHub) NotifyPartnerStatus(partnerID string, online bool) {
	if partnerID == "" {
		return
	}

	message := WSMessage{
		Type:   "partner_status",
		Online: &online,
	}

	if err := h.SendToUser(partnerID, message); err != nil {
		log.Debug().
			Err(err).
			Str("user_id", partnerID).
			Msg("Partner not reachable for status update")
	}
}

// NotifyUploadChanged pushes an upload lifecycle event (uploaded, edited or
// deleted) to the uploader's partner. The payload carries no image URL: the
// partner refetches the day through the API, where the unlock rule applies.
func (h *WSHub) NotifyUploadChanged(event string, conv *models.Conversation, uploaderID, dateID string) {
	partnerID := conv.PartnerOf(uploaderID)
	if partnerID == "" {
		return
	}

	message := WSMessage{
		Type:           event,
		Timestamp:      time.Now().UnixMilli(),
		ConversationID: conv.ID,
		DateID:         dateID,
		UserID:         uploaderID,
	}

	if err := h.SendToUser(partnerID, message); err != nil {
		log.Debug().
			Err(err).
			Str("user_id", partnerID).
			Str("type", event).
			Msg("Partner not connected, skipping live event")
	}
}

// NotifyConversationCreated notifies the invited user about a new conversation
func (h *WSHub) NotifyConversationCreated(partnerID string, conv *models.Conversation) error {
	message := WSMessage{
		Type: "conversation_created",
		Data: map[string]interface{}{
			"conversation_id": conv.ID,
			"user_a_id":       conv.UserAID,
			"user_b_id":       conv.UserBID,
			"created_at":      conv.CreatedAt,
		},
	}
	return h.SendToUser(partnerID, message)
}

// NotifyConversationDeleted notifies the partner when a conversation is deleted
func (h *WSHub) NotifyConversationDeleted(partnerID string) error {
	return h.SendToUser(partnerID, WSMessage{Type: "conversation_deleted"})
}
