package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/Baaaki/pharmsoc-messaging/internal/config"
	"github.com/Baaaki/pharmsoc-messaging/internal/database"
	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/repository"
	"github.com/Baaaki/pharmsoc-messaging/internal/utils"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	database.Connect(cfg)
	database.Migrate()

	adminName := os.Getenv("ADMIN_NAME")
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminName == "" || adminEmail == "" || adminPassword == "" {
		logger.Log.Fatal("Missing environment variables: ADMIN_NAME, ADMIN_EMAIL, ADMIN_PASSWORD")
	}

	ctx := context.Background()
	users := repository.NewUserRepository(database.DB)

	existing, err := users.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		logger.Log.Fatal("Failed to look up admin", zap.Error(err))
	}
	if existing != nil {
		logger.Log.Info("Admin user already exists",
			zap.Uint64("user_id", existing.ID),
			zap.String("email", existing.Email),
		)
		return
	}

	passwordHash, err := utils.HashPassword(adminPassword)
	if err != nil {
		logger.Log.Fatal("Failed to hash password", zap.Error(err))
	}

	admin := &models.User{
		Name:         adminName,
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		logger.Log.Fatal("Failed to create admin", zap.Error(err))
	}

	logger.Log.Info("Admin user created",
		zap.Uint64("user_id", admin.ID),
		zap.String("name", admin.Name),
		zap.String("email", admin.Email),
	)
}
