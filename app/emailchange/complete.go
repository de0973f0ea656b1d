package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type idBody struct {
	RequestID string `json:"request_id"`
}

// Complete swaps the account's email of record and closes the request. The
// swap and the status change commit together or not at all.
func Complete(c *gin.Context, d *internal.Deps) {
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

	req, err := d.EmailChange.CompleteChange(c.Request.Context(), accountID, data.RequestID)
	if err != nil {
		fail(c, requestID, err)
		return
	}

	zap.L().Info("Email change completed",
		zap.String("accountID", accountID),
		zap.String("changeID", req.ID))

	c.JSON(http.StatusOK, gin.H{
		"status":    req.Status,
		"email":     req.NewEmail,
		"requestID": requestID,
	})
}
