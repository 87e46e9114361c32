package handler

import (
	"net/http"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/realtime"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/gin-gonic/gin"
)

// MessageHandler is the HTTP side of messaging. Every mutation is persisted first
// and then pushed through the gateway.
type MessageHandler struct {
	messages      *service.MessageService
	conversations *service.ConversationService
	gateway       *realtime.Gateway
}

func NewMessageHandler(
	messages *service.MessageService,
	conversations *service.ConversationService,
	gateway *realtime.Gateway,
) *MessageHandler {
	return &MessageHandler{
		messages:      messages,
		conversations: conversations,
		gateway:       gateway,
	}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type UserSummary struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type MessageResponse struct {
	ID         uint64     `json:"id"`
	MessageID  string     `json:"message_id"`
	SenderID   uint64     `json:"sender_id"`
	ReceiverID uint64     `json:"receiver_id"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
	IsFromMe   bool       `json:"is_from_me"`
}

type ConversationResponse struct {
	OtherUser   UserSummary     `json:"other_user"`
	LastMessage MessageResponse `json:"last_message"`
	UnreadCount int64           `json:"unread_count"`
	IsTyping    bool            `json:"is_typing"`
}

func newUserSummary(u *models.User) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

func newMessageResponse(m *models.Message, viewerID uint64) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		MessageID:  m.MessageID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
		IsFromMe:   m.SenderID == viewerID,
	}
}

// ListConversations returns the caller's inbox, most recent first
// GET /api/conversations
func (h *MessageHandler) ListConversations(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}

	summaries, err := h.conversations.ListConversations(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ConversationResponse, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		out = append(out, ConversationResponse{
			OtherUser:   newUserSummary(s.OtherUser),
			LastMessage: newMessageResponse(&s.LastMessage, claims.UserID),
			UnreadCount: s.UnreadCount,
			IsTyping:    h.gateway.IsTyping(claims.UserID, s.OtherUser.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// GetConversation marks the counterpart's messages read and returns the history
// GET /api/conversations/:user_id
func (h *MessageHandler) GetConversation(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}
	otherID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	view, err := h.messages.OpenConversation(c.Request.Context(), claims.UserID, otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.gateway.NotifyMessagesRead(view.Receipt)

	messages := make([]MessageResponse, 0, len(view.Messages))
	for i := range view.Messages {
		messages = append(messages, newMessageResponse(&view.Messages[i], claims.UserID))
	}

	c.JSON(http.StatusOK, gin.H{
		"other_user": newUserSummary(view.OtherUser),
		"messages":   messages,
		"is_typing":  h.gateway.IsTyping(claims.UserID, otherID),
	})
}

// SendMessage POST /api/conversations/:user_id
func (h *MessageHandler) SendMessage(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}
	receiverID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  service.CodeInvalidArgument,
		})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), claims.UserID, receiverID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	h.gateway.NotifyMessageCreated(msg, claims.Name)

	c.JSON(http.StatusCreated, gin.H{"message": newMessageResponse(msg, claims.UserID)})
}

// DeleteMessage DELETE /api/messages/:id
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.messages.DeleteMessage(c.Request.Context(), claims.UserID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.gateway.NotifyMessageDeleted(msg)

	c.JSON(http.StatusOK, gin.H{
		"message":       "Message deleted",
		"other_user_id": msg.CounterpartOf(claims.UserID),
	})
}

// DeleteConversation DELETE /api/conversations/:user_id
func (h *MessageHandler) DeleteConversation(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}
	otherID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	deleted, err := h.messages.DeleteConversation(c.Request.Context(), claims.UserID, otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.gateway.NotifyConversationDeleted(claims.UserID, otherID)

	c.JSON(http.StatusOK, gin.H{
		"message":       "Conversation deleted",
		"deleted_count": deleted,
	})
}

// UnreadCount GET /api/messages/unread-count
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}

	count, err := h.conversations.GetUnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}
