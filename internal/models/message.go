package models

import (
	"time"
)

// Message is a single direct message. Content and endpoints never change after
// creation; only the IsRead/ReadAt pair moves, once, from unread to read.
type Message struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID  string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"message_id"` // UUID, also the journal key
	SenderID   uint64     `gorm:"not null;index:idx_messages_pair,priority:1" json:"sender_id"`
	ReceiverID uint64     `gorm:"not null;index:idx_messages_pair,priority:2;index:idx_messages_inbox,priority:1" json:"receiver_id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	IsRead     bool       `gorm:"not null;default:false;index:idx_messages_inbox,priority:2" json:"is_read"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `gorm:"not null;index" json:"created_at"`
}

// CounterpartOf returns the other participant relative to userID.
func (m *Message) CounterpartOf(userID uint64) uint64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
