package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Cancel abandons the active request. Allowed at any step before the
// request reaches a terminal state.
func Cancel(c *gin.Context, d *internal.Deps) {
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

	req, err := d.EmailChange.CancelChange(c.Request.Context(), accountID, data.RequestID)
	if err != nil {
		fail(c, requestID, err)
		return
	}

	zap.L().Info("Email change cancelled",
		zap.String("accountID", accountID),
		zap.String("changeID", req.ID))

	c.JSON(http.StatusOK, gin.H{
		"status":    req.Status,
		"requestID": requestID,
	})
}
