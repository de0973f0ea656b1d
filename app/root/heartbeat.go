package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Heartbeat answers liveness probes with an empty 200.
func Heartbeat(c *gin.Context) {
	c.Status(http.StatusOK)
}
