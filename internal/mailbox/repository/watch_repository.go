package repository

import (
	"time"

	mailboxdomain "replypilot-backend/internal/mailbox/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// watchRepository implements WatchRepository
type watchRepository struct {
	db *gorm.DB
}

func NewWatchRepository(db *gorm.DB) WatchRepository {
	return &watchRepository{db: db}
}

func (r *watchRepository) FindByMailboxID(mailboxID string) (*mailboxdomain.MailboxWatch, error) {
	var watch mailboxdomain.MailboxWatch
	err := r.db.Where("mailbox_id = ?", mailboxID).First(&watch).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &watch, nil
}

func (r *watchRepository) Save(watch *mailboxdomain.MailboxWatch) error {
	watch.UpdatedAt = time.Now()
	if watch.CreatedAt.IsZero() {
		watch.CreatedAt = watch.UpdatedAt
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"history_cursor", "channel_id", "expiry", "updated_at"}),
	}).Create(watch).Error
}

func (r *watchRepository) AdvanceCursor(mailboxID string, cursor uint64) error {
	// Guarded update: the WHERE clause drops any write that would move the
	// cursor backwards, so replayed notifications cannot corrupt it.
	return r.db.Model(&mailboxdomain.MailboxWatch{}).
		Where("mailbox_id = ? AND history_cursor <= ?", mailboxID, cursor).
		Updates(map[string]interface{}{
			"history_cursor": cursor,
			"updated_at":     time.Now(),
		}).Error
}

func (r *watchRepository) Delete(mailboxID string) error {
	return r.db.Where("mailbox_id = ?", mailboxID).Delete(&mailboxdomain.MailboxWatch{}).Error
}
