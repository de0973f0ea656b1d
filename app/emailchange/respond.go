// Package emailchange contains the endpoints of the email change workflow.
// Each handler issues exactly one transition against the caller's active
// request and reports the precise reason when it's rejected.
package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal/emailchange"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fail writes the error body for a rejected transition. Workflow errors keep
// their kind so the frontend can pick the right remedial action; anything
// else is a plain internal error.
func fail(c *gin.Context, requestID string, err error) {
	if kind := emailchange.KindOf(err); kind != "" {
		c.JSON(emailchange.HTTPStatus(err), gin.H{
			"error":     err.Error(),
			"kind":      kind,
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":     "Internal server error",
		"requestID": requestID,
	})

	zap.L().Error("Email change operation failed", zap.Error(err), zap.String("requestID", requestID))
}
