package repository

import (
	"time"

	mailboxdomain "replypilot-backend/internal/mailbox/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// credentialRepository implements CredentialRepository
type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) FindByMailboxID(mailboxID string) (*mailboxdomain.Credential, error) {
	var cred mailboxdomain.Credential
	err := r.db.Where("mailbox_id = ?", mailboxID).First(&cred).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) Save(cred *mailboxdomain.Credential) error {
	cred.UpdatedAt = time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = cred.UpdatedAt
	}
	// Single upsert statement: both tokens land in one write.
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expiry", "updated_at"}),
	}).Create(cred).Error
}

func (r *credentialRepository) Invalidate(mailboxID string) error {
	return r.db.Model(&mailboxdomain.Credential{}).
		Where("mailbox_id = ?", mailboxID).
		Updates(map[string]interface{}{
			"access_token":  "",
			"refresh_token": "",
			"updated_at":    time.Now(),
		}).Error
}
