package model

import "time"

type ResendRequest struct {
	ID         int `gorm:"primaryKey;autoIncrement"`
	AccountID  string
	LastResend time.Time
	Cooldown   time.Time
	Count      int
	Blocked    bool // If the user sends too many resend requests they're blocked for the day
}
