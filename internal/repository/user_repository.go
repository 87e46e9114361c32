package repository

import (
	"context"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return errors.Wrap(err, "userRepo.CreateUser")
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	// GORM excludes soft-deleted (banned) users
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "userRepo.GetUserByEmail")
	}
	return &user, nil
}

// GetUserByID returns nil, nil for unknown and banned users
func (r *UserRepository) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "userRepo.GetUserByID")
	}
	return &user, nil
}

// GetUserByIDIncludingBanned also finds soft-deleted users; nil, nil when unknown
func (r *UserRepository) GetUserByIDIncludingBanned(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "userRepo.GetUserByIDIncludingBanned")
	}
	return &user, nil
}

// GetUsersByIDs loads the active users among ids, keyed by id. Missing ids are
// simply absent from the map.
func (r *UserRepository) GetUsersByIDs(ctx context.Context, ids []uint64) (map[uint64]*models.User, error) {
	users := make(map[uint64]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var found []*models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, errors.Wrap(err, "userRepo.GetUsersByIDs")
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}

// GetAllUsers returns all users including soft-deleted ones
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).Unscoped().Order("created_at DESC").Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.GetAllUsers")
	}
	return users, nil
}

// SoftDeleteUser bans a user; it reports how many rows changed
func (r *UserRepository) SoftDeleteUser(ctx context.Context, id uint64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "userRepo.SoftDeleteUser")
	}
	return res.RowsAffected, nil
}
