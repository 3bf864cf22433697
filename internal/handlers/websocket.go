package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"daily-album-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for MVP
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *services.WSHub
	userService *services.UserService
	convService *services.ConversationService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, userService *services.UserService, convService *services.ConversationService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		userService: userService,
		convService: convService,
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get token from query parameter
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.hub.Register(userID, conn)
	defer func() {
		h.hub.Unregister(userID, conn)
		h.broadcastPresence(r.Context(), userID, false)
	}()

	ctx := r.Context()
	h.broadcastPresence(ctx, userID, true)
	h.sendConversationStatus(ctx, userID)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	// Handle messages
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendError(conn, "Invalid message format")
			continue
		}

		if err := h.handleMessage(ctx, userID, msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
			h.sendError(conn, err.Error())
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, msg services.WSMessage) error {
	switch msg.Type {
	case "presence_check":
		return h.handlePresenceCheck(ctx, userID, msg)
	case "ping":
		return h.hub.SendToUser(userID, services.WSMessage{Type: "pong"})
	default:
		return h.sendErrorToUser(userID, "Unknown message type")
	}
}

// handlePresenceCheck answers whether the partner in a conversation is
// currently connected.
func (h *WebSocketHandler) handlePresenceCheck(ctx context.Context, userID string, msg services.WSMessage) error {
	if msg.ConversationID == "" {
		return h.sendErrorToUser(userID, "conversation_id is required")
	}

	conv, err := h.convService.Get(ctx, msg.ConversationID, userID)
	if err != nil {
		return h.sendErrorToUser(userID, "Conversation not found")
	}

	online := h.hub.IsOnline(conv.PartnerOf(userID))
	return h.hub.SendToUser(userID, services.WSMessage{
		Type:           "partner_status",
		ConversationID: conv.ID,
		Online:         &online,
	})
}

// broadcastPresence tells every conversation partner that the user went
// online or offline.
func (h *WebSocketHandler) broadcastPresence(ctx context.Context, userID string, online bool) {
	convs, err := h.convService.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list conversations for presence broadcast")
		return
	}
	for _, conv := range convs {
		h.hub.NotifyPartnerStatus(conv.PartnerOf(userID), online)
	}
}

// sendConversationStatus sends the initial snapshot after connect.
func (h *WebSocketHandler) sendConversationStatus(ctx context.Context, userID string) {
	convs, err := h.convService.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list conversations for status message")
		return
	}

	ids := make([]string, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
	}

	msg := services.WSMessage{
		Type: "conversation_status",
		Data: map[string]interface{}{
			"has_conversation": len(ids) > 0,
			"conversation_ids": ids,
		},
	}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to send conversation_status message")
	}
}

// sendError sends an error message to the WebSocket connection
func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := services.WSMessage{
		Type:    "error",
		Message: message,
	}
	data, _ := json.Marshal(msg)
	conn.WriteMessage(websocket.TextMessage, data)
}

// sendErrorToUser sends an error message to a user
func (h *WebSocketHandler) sendErrorToUser(userID, message string) error {
	msg := services.WSMessage{
		Type:    "error",
		Message: message,
	}
	return h.hub.SendToUser(userID, msg)
}
