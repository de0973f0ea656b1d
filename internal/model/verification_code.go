package model

import "time"

// VerificationCode is a short-lived single-use code mailed to one side of an
// email change request (or to a fresh account for the initial verification).
type VerificationCode struct {
	ID        int    `gorm:"primaryKey;autoincrement"`
	AccountID string `gorm:"index"`
	RequestID string `gorm:"index"`
	// Which mailbox the code was sent to: "old" or "new"
	Side      string
	Code      string
	Attempts  int
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
	Used      bool
}
