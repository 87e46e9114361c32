package testutil

import (
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/repository"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/Baaaki/pharmsoc-messaging/internal/wal"
	"gorm.io/gorm"
)

// Services bundles the repositories and services wired against one test database
type Services struct {
	MessageRepo   *repository.MessageRepository
	UserRepo      *repository.UserRepository
	Messages      *service.MessageService
	Conversations *service.ConversationService
	Auth          *service.AuthService
}

// NewServices wires the service layer on db; journal may be nil
func NewServices(db *gorm.DB, journal *wal.WAL) *Services {
	messageRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)

	return &Services{
		MessageRepo:   messageRepo,
		UserRepo:      userRepo,
		Messages:      service.NewMessageService(messageRepo, userRepo, journal, service.DefaultMaxMessageLength),
		Conversations: service.NewConversationService(messageRepo, userRepo),
		Auth:          service.NewAuthService(userRepo, TestJWTSecret, time.Hour, "test"),
	}
}
