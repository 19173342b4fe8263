package domain

import "time"

// Credential is the refreshable OAuth token pair for one mailbox. Rows are
// written whole so a concurrent reader never observes a half-rotated pair.
// A hard authorization failure clears both tokens, which forces the owner
// through the external reconnect flow.
type Credential struct {
	MailboxID    string    `json:"mailbox_id" gorm:"primaryKey"`
	AccessToken  string    `json:"-" gorm:"type:text"`
	RefreshToken string    `json:"-" gorm:"type:text"`
	Expiry       time.Time `json:"expiry"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Credential) TableName() string {
	return "credentials"
}

// Valid reports whether the credential can be used to authenticate at all.
func (c *Credential) Valid() bool {
	return c != nil && (c.AccessToken != "" || c.RefreshToken != "")
}
