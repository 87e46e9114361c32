package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/internal/repository"
	"github.com/Baaaki/pharmsoc-messaging/internal/utils"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"go.uber.org/zap"
)

var (
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
	environment   string
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration, environment string) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		environment:   environment,
	}
}

// IsProduction returns true if running in production environment
func (s *AuthService) IsProduction() bool {
	return s.environment == "production"
}

// TokenLifetime is how long issued tokens (and auth cookies) stay valid
func (s *AuthService) TokenLifetime() time.Duration {
	return s.jwtExpiration
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, string, error) {
	start := time.Now()
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateRegisterInput(name, email, password); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, "", err
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to check email existence", zap.String("email", email), zap.Error(err))
		return nil, "", err
	}
	if existing != nil {
		logger.Log.Warn("Email already exists", zap.String("email", email))
		return nil, "", ErrEmailAlreadyExists
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, "", err
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Failed to create user in database", zap.String("email", email), zap.Error(err))
		return nil, "", err
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token", zap.Uint64("user_id", user.ID), zap.Error(err))
		return nil, "", err
	}

	logger.Log.Info("User registered successfully",
		zap.Uint64("user_id", user.ID),
		zap.String("email", email),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to get user by email", zap.String("email", email), zap.Error(err))
		return nil, "", err
	}
	if user == nil {
		logger.Log.Warn("Login failed: user not found", zap.String("email", email))
		return nil, "", ErrInvalidCredentials
	}

	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password", zap.Uint64("user_id", user.ID), zap.Error(err))
		return nil, "", err
	}
	if !valid {
		logger.Log.Warn("Login failed: invalid password", zap.Uint64("user_id", user.ID))
		return nil, "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token", zap.Uint64("user_id", user.ID), zap.Error(err))
		return nil, "", err
	}

	logger.Log.Info("User logged in successfully",
		zap.Uint64("user_id", user.ID),
		zap.Duration("total_duration", time.Since(start)),
	)
	return user, token, nil
}

func validateRegisterInput(name, email, password string) error {
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return fmt.Errorf("%w: name must be between 2 and 100 characters", ErrValidation)
	}
	if len(email) > 100 || !emailRegex.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if len(password) > 128 {
		return fmt.Errorf("%w: password too long", ErrValidation)
	}
	return nil
}

// GetAllUsers returns all users (including banned ones)
func (s *AuthService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.userRepo.GetAllUsers(ctx)
	if err != nil {
		logger.Log.Error("Failed to fetch all users", zap.Error(err))
		return nil, err
	}
	return users, nil
}

// BanUser soft deletes a user. Banned users can no longer log in, receive messages
// or appear as a conversation counterpart; their history is kept.
func (s *AuthService) BanUser(ctx context.Context, userID, adminID uint64, reason string) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if userID == adminID {
		return fmt.Errorf("%w: admins cannot ban themselves", ErrValidation)
	}

	affected, err := s.userRepo.SoftDeleteUser(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to ban user", zap.Uint64("user_id", userID), zap.Error(err))
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
	}

	logger.Log.Info("User banned",
		zap.Uint64("user_id", userID),
		zap.Uint64("admin_id", adminID),
		zap.String("reason", reason),
	)
	return nil
}
