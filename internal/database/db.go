package database

import (
	"fmt"

	"github.com/Baaaki/pharmsoc-messaging/internal/config"
	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"go.uber.org/zap"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Open returns a gorm connection for the configured driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	return gorm.Open(dialector, &gorm.Config{})
}

func Connect(cfg *config.Config) {
	var err error

	DB, err = Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect database",
			zap.String("driver", cfg.DatabaseDriver),
			zap.Error(err),
		)
	}

	logger.Log.Info("Database connected", zap.String("driver", cfg.DatabaseDriver))
}

// AutoMigrate creates or updates the messaging tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Message{})
}

func Migrate() {
	if err := AutoMigrate(DB); err != nil {
		logger.Log.Fatal("Migration failed", zap.Error(err))
	}

	logger.Log.Info("Database migration completed")
}
