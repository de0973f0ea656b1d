package model

import "time"

// EmailChangeRequest tracks one run of the email change workflow. Completed,
// cancelled and expired rows are kept around as the audit trail of an
// account's email history.
type EmailChangeRequest struct {
	ID        string        `gorm:"primaryKey" json:"id"`
	AccountID string        `gorm:"index;not null" json:"-"`
	OldEmail  string        `gorm:"not null" json:"old_email"`
	NewEmail  string        `gorm:"not null" json:"new_email"`
	Status    RequestStatus `gorm:"not null" json:"status"`
	ExpiresAt time.Time     `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TimedOut reports whether the request is past its validity window,
// regardless of what the stored status still says.
func (r *EmailChangeRequest) TimedOut(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
