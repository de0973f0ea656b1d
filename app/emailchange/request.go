package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal"
	"grcadmin/account-api/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type requestBody struct {
	NewEmail string `json:"new_email"`
}

// ChangeRequest opens a new email change run and mails a code to the
// current address.
func ChangeRequest(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	accountID := c.MustGet("accountID").(string)

	var data requestBody
	if err := c.ShouldBind(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Error("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	req, err := d.EmailChange.RequestChange(c.Request.Context(), accountID, validators.NormalizeEmail(data.NewEmail))
	if err != nil {
		fail(c, requestID, err)
		return
	}

	zap.L().Info("Email change requested",
		zap.String("accountID", accountID),
		zap.String("changeID", req.ID))

	c.JSON(http.StatusOK, gin.H{
		"request_id": req.ID,
		"status":     req.Status,
		"expires_at": req.ExpiresAt,
		"requestID":  requestID,
	})
}
