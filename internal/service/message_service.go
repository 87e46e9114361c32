package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/repository"
	"github.com/Baaaki/pharmsoc-messaging/internal/wal"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxMessageLength = 5000

// ReadReceipt describes one mark-read call: the messages flipped to read by it.
// MessageIDs is empty when nothing was unread.
type ReadReceipt struct {
	ReaderID      uint64
	CounterpartID uint64
	MessageIDs    []uint64
	ReadAt        time.Time
}

// ConversationView is what a participant sees when opening a conversation
type ConversationView struct {
	OtherUser *models.User
	Messages  []models.Message
	Receipt   *ReadReceipt
}

type MessageService struct {
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
	wal         *wal.WAL // nil disables the send journal
	maxLength   int
	now         func() time.Time
}

func NewMessageService(
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	journal *wal.WAL,
	maxLength int,
) *MessageService {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &MessageService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		wal:         journal,
		maxLength:   maxLength,
		now:         time.Now,
	}
}

// SetClock replaces the time source used for created_at and read_at
func (s *MessageService) SetClock(now func() time.Time) {
	s.now = now
}

// timestamp is UTC at the precision the database keeps
func (s *MessageService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// nextTimestamp never goes below the newest created_at of the pair, so a clock
// stepping backwards cannot reorder a conversation.
func (s *MessageService) nextTimestamp(ctx context.Context, a, b uint64) (time.Time, error) {
	now := s.timestamp()
	latest, err := s.messageRepo.LatestInPair(ctx, a, b)
	if err != nil {
		return time.Time{}, err
	}
	if latest != nil && now.Before(latest.CreatedAt) {
		return latest.CreatedAt.UTC(), nil
	}
	return now, nil
}

func (s *MessageService) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content cannot be empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > s.maxLength {
		return fmt.Errorf("%w: message content is %d characters, limit is %d", ErrValidation, n, s.maxLength)
	}
	return nil
}

// Send persists a new unread message from senderID to receiverID. Content is stored
// exactly as given.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uint64, content string) (*models.Message, error) {
	start := time.Now()

	if senderID == 0 || receiverID == 0 {
		return nil, fmt.Errorf("%w: sender and receiver are required", ErrValidation)
	}
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot send a message to yourself", ErrInvalidRecipient)
	}
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	receiver, err := s.userRepo.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: receiver %d", ErrUserNotFound, receiverID)
	}

	createdAt, err := s.nextTimestamp(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		MessageID:  uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		IsRead:     false,
		CreatedAt:  createdAt,
	}

	if s.wal != nil {
		entry := wal.Entry{
			MessageID:  msg.MessageID,
			SenderID:   msg.SenderID,
			ReceiverID: msg.ReceiverID,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		}
		if err := s.wal.Write(entry); err != nil {
			return nil, fmt.Errorf("journal send: %w", err)
		}
		// The send is either committed or reported as failed; neither needs replay
		defer s.forget(msg.MessageID)
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		logger.Log.Error("Failed to persist message",
			zap.String("message_id", msg.MessageID),
			zap.Uint64("sender_id", senderID),
			zap.Uint64("receiver_id", receiverID),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Debug("Message sent",
		zap.Uint64("id", msg.ID),
		zap.Uint64("sender_id", senderID),
		zap.Uint64("receiver_id", receiverID),
		zap.Duration("duration", time.Since(start)),
	)
	return msg, nil
}

func (s *MessageService) forget(messageID string) {
	if err := s.wal.Cleanup([]string{messageID}); err != nil {
		logger.Log.Warn("Failed to drop journal entry",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// ListConversation returns the complete history between a and b, oldest first.
func (s *MessageService) ListConversation(ctx context.Context, a, b uint64) ([]models.Message, error) {
	if a == 0 || b == 0 {
		return nil, fmt.Errorf("%w: both participants are required", ErrValidation)
	}
	return s.messageRepo.ListConversation(ctx, a, b)
}

// MarkAllReadFromSender marks every unread senderID→receiverID message as read.
// A repeated call returns a receipt with no message ids.
func (s *MessageService) MarkAllReadFromSender(ctx context.Context, receiverID, senderID uint64) (*ReadReceipt, error) {
	if receiverID == 0 || senderID == 0 {
		return nil, fmt.Errorf("%w: both participants are required", ErrValidation)
	}

	readAt := s.timestamp()
	ids, err := s.messageRepo.MarkAllReadFromSender(ctx, receiverID, senderID, readAt)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		logger.Log.Debug("Messages marked as read",
			zap.Uint64("reader_id", receiverID),
			zap.Uint64("sender_id", senderID),
			zap.Int("count", len(ids)),
		)
	}

	return &ReadReceipt{
		ReaderID:      receiverID,
		CounterpartID: senderID,
		MessageIDs:    ids,
		ReadAt:        readAt,
	}, nil
}

// OpenConversation marks the counterpart's messages as read and then returns the
// full history, so the listing already reflects the read flags. Banned counterparts
// can still be opened: their history stays readable and their unread messages
// can be cleared.
func (s *MessageService) OpenConversation(ctx context.Context, viewerID, otherID uint64) (*ConversationView, error) {
	if viewerID == otherID {
		return nil, fmt.Errorf("%w: cannot open a conversation with yourself", ErrInvalidRecipient)
	}

	other, err := s.userRepo.GetUserByIDIncludingBanned(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, fmt.Errorf("%w: user %d", ErrUserNotFound, otherID)
	}

	receipt, err := s.MarkAllReadFromSender(ctx, viewerID, otherID)
	if err != nil {
		return nil, err
	}

	messages, err := s.ListConversation(ctx, viewerID, otherID)
	if err != nil {
		return nil, err
	}

	return &ConversationView{
		OtherUser: other,
		Messages:  messages,
		Receipt:   receipt,
	}, nil
}

// DeleteMessage hard-deletes a message its requester sent and returns the removed row.
func (s *MessageService) DeleteMessage(ctx context.Context, requesterID, messageID uint64) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: id %d", ErrMessageNotFound, messageID)
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("%w: only the sender can delete a message", ErrForbidden)
	}

	deleted, err := s.messageRepo.DeleteBySender(ctx, messageID, requesterID)
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		// Removed by a concurrent request between the lookup and the delete
		return nil, fmt.Errorf("%w: id %d", ErrMessageNotFound, messageID)
	}

	logger.Log.Info("Message deleted",
		zap.Uint64("id", messageID),
		zap.Uint64("sender_id", requesterID),
		zap.Uint64("receiver_id", msg.ReceiverID),
	)
	return msg, nil
}

// DeleteConversation removes every message between a and b regardless of author.
func (s *MessageService) DeleteConversation(ctx context.Context, a, b uint64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, fmt.Errorf("%w: both participants are required", ErrValidation)
	}
	if a == b {
		return 0, fmt.Errorf("%w: a conversation needs two distinct participants", ErrValidation)
	}

	deleted, err := s.messageRepo.DeleteConversation(ctx, a, b)
	if err != nil {
		return 0, err
	}

	logger.Log.Info("Conversation deleted",
		zap.Uint64("requester_id", a),
		zap.Uint64("other_user_id", b),
		zap.Int64("deleted_count", deleted),
	)
	return deleted, nil
}

// RecoverJournal inserts journaled sends that never reached the database, e.g. after
// a crash between the journal write and the insert. It returns how many were restored.
func (s *MessageService) RecoverJournal(ctx context.Context) (int, error) {
	if s.wal == nil {
		return 0, nil
	}

	entries, err := s.wal.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	restored := 0
	var done []string
	for _, e := range entries {
		msg := &models.Message{
			MessageID:  e.MessageID,
			SenderID:   e.SenderID,
			ReceiverID: e.ReceiverID,
			Content:    e.Content,
			CreatedAt:  e.CreatedAt.UTC(),
		}
		inserted, err := s.messageRepo.CreateIfAbsent(ctx, msg)
		if err != nil {
			logger.Log.Error("Failed to recover journaled message",
				zap.String("message_id", e.MessageID),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			restored++
		}
		done = append(done, e.MessageID)
	}

	if err := s.wal.Cleanup(done); err != nil {
		return restored, fmt.Errorf("cleanup journal: %w", err)
	}

	logger.Log.Info("Send journal recovered",
		zap.Int("entries", len(entries)),
		zap.Int("restored", restored),
	)
	return restored, nil
}
