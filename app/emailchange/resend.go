package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal"

	"github.com/gin-gonic/gin"
)

// Resend redelivers the code for whichever side is awaiting verification.
// The per-account cooldown applies.
func Resend(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	accountID := c.MustGet("accountID").(string)

	var data idBody
	if err := c.ShouldBind(&data); err != nil || data.RequestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No request ID provided",
			"requestID": requestID,
		})
		return
	}

	if err := d.EmailChange.ResendCode(c.Request.Context(), accountID, data.RequestID); err != nil {
		fail(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Verification code sent",
		"requestID": requestID,
	})
}
