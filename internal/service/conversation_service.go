package service

import (
	"context"
	"fmt"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/repository"
)

// ConversationSummary is one row of a user's inbox
type ConversationSummary struct {
	OtherUser   *models.User
	LastMessage models.Message
	UnreadCount int64
}

type ConversationService struct {
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
}

func NewConversationService(messageRepo *repository.MessageRepository, userRepo *repository.UserRepository) *ConversationService {
	return &ConversationService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// ListConversations returns one summary per counterpart, most recent activity first.
// Counterparts whose account no longer exists are left out.
func (s *ConversationService) ListConversations(ctx context.Context, userID uint64) ([]ConversationSummary, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user is required", ErrValidation)
	}

	latest, err := s.messageRepo.LatestPerCounterpart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return []ConversationSummary{}, nil
	}

	counterpartIDs := make([]uint64, 0, len(latest))
	for i := range latest {
		counterpartIDs = append(counterpartIDs, latest[i].CounterpartOf(userID))
	}

	users, err := s.userRepo.GetUsersByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, err
	}

	unread, err := s.messageRepo.UnreadBySender(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(latest))
	for _, msg := range latest {
		other, ok := users[msg.CounterpartOf(userID)]
		if !ok {
			continue
		}
		summaries = append(summaries, ConversationSummary{
			OtherUser:   other,
			LastMessage: msg,
			UnreadCount: unread[other.ID],
		})
	}
	return summaries, nil
}

// GetUnreadCount counts all unread messages addressed to userID
func (s *ConversationService) GetUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	if userID == 0 {
		return 0, fmt.Errorf("%w: user is required", ErrValidation)
	}
	return s.messageRepo.CountUnread(ctx, userID)
}
