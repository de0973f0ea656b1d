package model

import "time"

// Migration records schema changes applied outside AutoMigrate, like the
// active-request index.
type Migration struct {
	ID        int       `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}
