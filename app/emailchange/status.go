package emailchange

import (
	"net/http"

	"grcadmin/account-api/internal"

	"github.com/gin-gonic/gin"
)

// Status reports the caller's active request so the frontend can resume
// mid-flow after a reload. Read-only, never cached.
func Status(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	accountID := c.MustGet("accountID").(string)

	proj, err := d.EmailChange.GetStatus(c.Request.Context(), accountID)
	if err != nil {
		fail(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_active_request": proj.HasActiveRequest,
		"request":            proj.Request,
		"requestID":          requestID,
	})
}
