package testutil

import (
	"testing"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestPassword is the plain-text password of every fixture user
const TestPassword = "Test123456"

// CreateTestUser inserts a user with a hashed TestPassword
func CreateTestUser(t *testing.T, db *gorm.DB, name, email string, role models.Role) *models.User {
	t.Helper()

	hashedPassword, err := utils.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

// CreateTestMessage inserts a message with an explicit creation time
func CreateTestMessage(t *testing.T, db *gorm.DB, senderID, receiverID uint64, content string, createdAt time.Time) *models.Message {
	t.Helper()

	msg := &models.Message{
		MessageID:  uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  createdAt.UTC(),
	}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	return msg
}

// BanTestUser soft-deletes a user the same way the admin ban does
func BanTestUser(t *testing.T, db *gorm.DB, user *models.User) {
	t.Helper()
	if err := db.Delete(user).Error; err != nil {
		t.Fatalf("Failed to ban user %d: %v", user.ID, err)
	}
}

// BaseTime is a fixed instant fixtures offset from, so ordering is deterministic
var BaseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
