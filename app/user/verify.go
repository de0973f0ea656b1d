package user

import (
	"crypto/subtle"
	"net/http"
	"time"

	"grcadmin/account-api/internal"
	"grcadmin/account-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type verifyBody struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

// UserVerify redeems the initial account verification code. Request-scoped
// codes (the email change flow) never match here because they carry a
// request ID.
func UserVerify(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data verifyBody
	if err := c.ShouldBind(&data); err != nil || data.AccountID == "" || data.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No account ID or verification code provided",
			"requestID": requestID,
		})
		return
	}

	var record model.VerificationCode

	err := d.DB.
		Where("account_id = ? AND request_id = '' AND used = false", data.AccountID).
		Order("created_at desc").
		First(&record).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Code expired or invalid",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to get verification code record", zap.Error(err))
		return
	}

	if record.ExpiresAt.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Code expired",
			"requestID": requestID,
		})
		return
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(data.Code)) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Code expired or invalid",
			"requestID": requestID,
		})
		return
	}

	err = d.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.VerificationCode{}).
			Where("id = ?", record.ID).
			Updates(map[string]any{
				"used":    true,
				"used_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.User{}).
			Where("id = ?", data.AccountID).
			Updates(map[string]any{
				"verified":   true,
				"expires_at": nil,
			}).Error; err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Failed to validate user",
			"requestID": requestID,
		})
		zap.L().Error("Failed to update user and code in transaction", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "User validated successfully",
		"requestID": requestID,
	})
}
