package testutil

import (
	"testing"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/utils"
)

// TestJWTSecret signs every token issued in tests
const TestJWTSecret = "test-secret-key-for-integration-tests"

// TokenFor issues a valid one-hour token for user
func TokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user, TestJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// FixedClock returns a clock that starts at start and advances by step on each call
func FixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}
