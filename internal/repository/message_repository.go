package repository

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// latestPerCounterpartSQL picks, for every counterpart of @user, the id of the most
// recent message in that pair (created_at first, id breaks ties).
const latestPerCounterpartSQL = `
SELECT id FROM (
	SELECT id,
		ROW_NUMBER() OVER (
			PARTITION BY CASE WHEN sender_id = @user THEN receiver_id ELSE sender_id END
			ORDER BY created_at DESC, id DESC
		) AS rn
	FROM messages
	WHERE sender_id = @user OR receiver_id = @user
) ranked
WHERE rn = 1`

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// betweenPair restricts a query to the messages exchanged by a and b, in either direction.
func betweenPair(a, b uint64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
	}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return errors.Wrap(err, "messageRepo.Create")
	}
	return nil
}

// LatestInPair returns the newest message between a and b, or nil when they have none
func (r *MessageRepository) LatestInPair(ctx context.Context, a, b uint64) (*models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Scopes(betweenPair(a, b)).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.LatestInPair")
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// CreateIfAbsent inserts message unless a row with the same MessageID already exists.
// It reports whether a row was written.
func (r *MessageRepository) CreateIfAbsent(ctx context.Context, message *models.Message) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(message)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "messageRepo.CreateIfAbsent")
	}
	return res.RowsAffected > 0, nil
}

// GetByID returns nil, nil when the message does not exist
func (r *MessageRepository) GetByID(ctx context.Context, id uint64) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "messageRepo.GetByID")
	}
	return &message, nil
}

// ListConversation returns the full history of the pair, oldest first.
func (r *MessageRepository) ListConversation(ctx context.Context, a, b uint64) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Scopes(betweenPair(a, b)).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.ListConversation")
	}
	return messages, nil
}

// MarkAllReadFromSender flips every unread senderID→receiverID message to read in a
// single UPDATE and returns the ids it changed, ascending. Rows already read by a
// concurrent caller are not matched, so each id is reported by exactly one caller.
func (r *MessageRepository) MarkAllReadFromSender(ctx context.Context, receiverID, senderID uint64, readAt time.Time) ([]uint64, error) {
	var updated []models.Message
	err := r.db.WithContext(ctx).
		Model(&updated).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", receiverID, senderID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": readAt,
		}).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.MarkAllReadFromSender")
	}

	ids := make([]uint64, 0, len(updated))
	for _, m := range updated {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteBySender hard-deletes the message only if senderID wrote it.
func (r *MessageRepository) DeleteBySender(ctx context.Context, id, senderID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", id, senderID).
		Delete(&models.Message{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "messageRepo.DeleteBySender")
	}
	return res.RowsAffected, nil
}

// DeleteConversation hard-deletes every message of the pair, whoever sent it.
func (r *MessageRepository) DeleteConversation(ctx context.Context, a, b uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Scopes(betweenPair(a, b)).
		Delete(&models.Message{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "messageRepo.DeleteConversation")
	}
	return res.RowsAffected, nil
}

// LatestPerCounterpart returns one message per counterpart of userID: the most recent
// of that pair. Result is ordered newest first.
func (r *MessageRepository) LatestPerCounterpart(ctx context.Context, userID uint64) ([]models.Message, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Raw(latestPerCounterpartSQL, sql.Named("user", userID)).
		Scan(&ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.LatestPerCounterpart.Rank")
	}
	if len(ids) == 0 {
		return []models.Message{}, nil
	}

	var messages []models.Message
	err = r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at DESC, id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.LatestPerCounterpart.Load")
	}
	return messages, nil
}

// UnreadBySender counts unread messages addressed to userID, grouped by sender.
func (r *MessageRepository) UnreadBySender(ctx context.Context, userID uint64) (map[uint64]int64, error) {
	var rows []struct {
		SenderID uint64
		Unread   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "messageRepo.UnreadBySender")
	}

	counts := make(map[uint64]int64, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Unread
	}
	return counts, nil
}

// CountUnread counts every unread message addressed to userID.
func (r *MessageRepository) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "messageRepo.CountUnread")
	}
	return count, nil
}
