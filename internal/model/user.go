// Package model defines database models
package model

import "time"

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique; not null"`
	PasswordHash string `gorm:"not null"`
	Verified     bool   `gorm:"default:false"`
	ExpiresAt    *time.Time

	EmailChangeRequests []EmailChangeRequest `gorm:"foreignKey:AccountID"`
	VerificationCodes   []VerificationCode   `gorm:"foreignKey:AccountID"`
	ResendRequests      ResendRequest        `gorm:"foreignKey:AccountID"`
}
