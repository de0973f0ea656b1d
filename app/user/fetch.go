package user

import (
	"net/http"

	"grcadmin/account-api/internal"
	"grcadmin/account-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func UserFetch(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	accountID := c.MustGet("accountID").(string)

	var user model.User
	err := d.DB.
		Where("id = ?", accountID).
		First(&user).
		Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch user", zap.Error(err))
		return
	}

	status, err := d.EmailChange.GetStatus(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch email change status", zap.Error(err))
		return
	}

	history, err := d.EmailChange.History(c.Request.Context(), accountID, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch email change history", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountID":    user.ID,
		"email":        user.Email,
		"verified":     user.Verified,
		"emailChange":  status,
		"emailHistory": history,
	})
}
