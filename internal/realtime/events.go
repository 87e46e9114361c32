package realtime

import (
	"encoding/json"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
)

type EventType string

// Client → server
const (
	EventJoin        EventType = "join"
	EventSendMessage EventType = "send_message"
	EventTypingStart EventType = "typing_start"
	EventTypingStop  EventType = "typing_stop"
	EventMarkRead    EventType = "mark_read"
)

// Server → client
const (
	EventJoined              EventType = "joined"
	EventNewMessage          EventType = "new_message"
	EventMessageSent         EventType = "message_sent"
	EventTypingStarted       EventType = "typing_started"
	EventTypingStopped       EventType = "typing_stopped"
	EventMessagesRead        EventType = "messages_read"
	EventMessageDeleted      EventType = "message_deleted"
	EventConversationDeleted EventType = "conversation_deleted"
	EventError               EventType = "error"
	EventSessionExpired      EventType = "session_expired"
)

// Request is an inbound client event. Identity fields (UserID, SenderID) are
// optional and only compared against the authenticated principal.
type Request struct {
	Type        EventType `json:"type"`
	TempID      string    `json:"temp_id,omitempty"`
	UserID      uint64    `json:"user_id,omitempty"`
	SenderID    uint64    `json:"sender_id,omitempty"`
	ReceiverID  uint64    `json:"receiver_id,omitempty"`
	OtherUserID uint64    `json:"other_user_id,omitempty"`
	Content     string    `json:"content,omitempty"`
}

// Event is the outbound envelope
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type JoinedPayload struct {
	Room string `json:"room"`
}

type MessagePayload struct {
	ID         uint64     `json:"id"`
	MessageID  string     `json:"message_id"`
	SenderID   uint64     `json:"sender_id"`
	ReceiverID uint64     `json:"receiver_id"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
	SenderName string     `json:"sender_name,omitempty"`
	TempID     string     `json:"temp_id,omitempty"`
}

func NewMessagePayload(msg *models.Message, senderName, tempID string) MessagePayload {
	return MessagePayload{
		ID:         msg.ID,
		MessageID:  msg.MessageID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		IsRead:     msg.IsRead,
		ReadAt:     msg.ReadAt,
		CreatedAt:  msg.CreatedAt,
		SenderName: senderName,
		TempID:     tempID,
	}
}

type TypingPayload struct {
	UserID   uint64 `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

type MessagesReadPayload struct {
	ReaderID   uint64    `json:"reader_id"`
	MessageIDs []uint64  `json:"message_ids"`
	ReadAt     time.Time `json:"read_at"`
}

type MessageDeletedPayload struct {
	MessageID uint64 `json:"message_id"`
	UserID    uint64 `json:"user_id"`
}

type ConversationDeletedPayload struct {
	UserID uint64 `json:"user_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	TempID  string `json:"temp_id,omitempty"`
}

type SessionExpiredPayload struct {
	Message string `json:"message"`
}

func encodeEvent(t EventType, data any) ([]byte, error) {
	return json.Marshal(Event{Type: t, Data: data})
}
