package repository

import (
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// dispatchLogRepository implements DispatchLogRepository
type dispatchLogRepository struct {
	db *gorm.DB
}

func NewDispatchLogRepository(db *gorm.DB) DispatchLogRepository {
	return &dispatchLogRepository{db: db}
}

func (r *dispatchLogRepository) Create(log *dispatchdomain.DispatchLog) error {
	now := time.Now()
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = now
	log.UpdatedAt = now
	return r.db.Create(log).Error
}

func (r *dispatchLogRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&dispatchdomain.DispatchLog{}).Error
}

func (r *dispatchLogRepository) FindByID(id string) (*dispatchdomain.DispatchLog, error) {
	var log dispatchdomain.DispatchLog
	err := r.db.Where("id = ?", id).First(&log).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (r *dispatchLogRepository) FindBySentMessageID(sentMessageID string) (*dispatchdomain.DispatchLog, error) {
	var log dispatchdomain.DispatchLog
	err := r.db.Where("sent_message_id = ?", sentMessageID).First(&log).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (r *dispatchLogRepository) FindByMailboxID(mailboxID string, limit int) ([]*dispatchdomain.DispatchLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []*dispatchdomain.DispatchLog
	err := r.db.Where("mailbox_id = ?", mailboxID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (r *dispatchLogRepository) AttachSentMessageID(id, sentMessageID string) error {
	return r.db.Model(&dispatchdomain.DispatchLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sent_message_id": sentMessageID,
			"updated_at":      time.Now(),
		}).Error
}

func (r *dispatchLogRepository) UpdateStatusForward(id, newStatus string) (bool, error) {
	existing, err := r.FindByID(id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if dispatchdomain.StatusRank(newStatus) <= dispatchdomain.StatusRank(existing.Status) {
		return false, nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": now,
	}
	if action := dispatchdomain.ActionForStatus(newStatus); action != "" {
		updates["action"] = action
	}
	switch newStatus {
	case dispatchdomain.StatusOpened:
		updates["opened_at"] = now
	case dispatchdomain.StatusClicked:
		updates["clicked_at"] = now
	}

	// Re-check the rank inside the UPDATE so a concurrent writer cannot
	// regress the status between the read above and this write.
	res := r.db.Model(&dispatchdomain.DispatchLog{}).
		Where("id = ? AND status = ?", id, existing.Status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *dispatchLogRepository) ClearFollowUps(mailboxID, threadID string) error {
	return r.db.Model(&dispatchdomain.DispatchLog{}).
		Where("mailbox_id = ? AND thread_id = ?", mailboxID, threadID).
		Updates(map[string]interface{}{
			"follow_up_required": false,
			"updated_at":         time.Now(),
		}).Error
}

func (r *dispatchLogRepository) FindFollowUpsDue(cutoff time.Time) ([]*dispatchdomain.DispatchLog, error) {
	var logs []*dispatchdomain.DispatchLog
	// An opened-but-unanswered reply still deserves a follow-up, so the
	// query keys on the flags rather than the action.
	err := r.db.Where("follow_up_required = ? AND follow_up_sent = ? AND created_at < ?",
		true, false, cutoff).
		Find(&logs).Error
	return logs, err
}

func (r *dispatchLogRepository) MarkFollowUpSent(id string) error {
	return r.db.Model(&dispatchdomain.DispatchLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"follow_up_sent": true,
			"updated_at":     time.Now(),
		}).Error
}
