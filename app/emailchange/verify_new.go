package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VerifyNew checks the code delivered to the prospective address. Rejected
// outright while the old side is still unverified, no matter the code.
func VerifyNew(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	accountID := c.MustGet("accountID").(string)

	var data verifyBody
	if err := c.ShouldBind(&data); err != nil || data.RequestID == "" || data.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No request ID or verification code provided",
			"requestID": requestID,
		})
		return
	}

	req, err := d.EmailChange.VerifyNewEmail(c.Request.Context(), accountID, data.RequestID, data.Code)
	if err != nil {
		fail(c, requestID, err)
		return
	}

	zap.L().Info("New email verified",
		zap.String("accountID", accountID),
		zap.String("changeID", req.ID))

	c.JSON(http.StatusOK, gin.H{
		"status":    req.Status,
		"step":      req.Status.Step(),
		"requestID": requestID,
	})
}
