package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Validate only runs after the JWT middleware, so reaching it means the
// session is good.
func Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accountID": c.MustGet("accountID").(string),
	})
}
