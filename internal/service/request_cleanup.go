package service

import (
	"time"

	"grcadmin/account-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RequestCleanup periodically retires email change requests that sat past
// their validity window without ever being touched again, and deletes
// verification codes that can never be redeemed anymore. The workflow
// doesn't depend on this sweep: every read and write checks expires_at
// itself. This only keeps the stored status column honest and the codes
// table small.
func RequestCleanup(t time.Duration, db *gorm.DB) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Request cleanup attached", zap.Duration("tick_every", t))

	go func() {
		for range ticker.C {
			res := db.
				Model(&model.EmailChangeRequest{}).
				Where("status IN ? AND expires_at < ?", model.ActiveStatuses, time.Now()).
				Update("status", model.StatusExpired)
			if res.Error != nil {
				zap.L().Error("Failed to retire expired requests", zap.Error(res.Error))
				continue
			}

			if res.RowsAffected > 0 {
				zap.L().Debug("Retired expired requests", zap.Int64("count", res.RowsAffected))
			}

			err := db.
				Where("used = true OR expires_at < ?", time.Now().Add(-24*time.Hour)).
				Delete(&model.VerificationCode{}).
				Error
			if err != nil {
				zap.L().Error("Failed to cleanup stale verification codes", zap.Error(err))
			}
		}
	}()
}
