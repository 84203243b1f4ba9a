package middleware

import (
	"github.com/gin-gonic/gin"
)

// Authentication picks up the caller identity asserted by the fronting
// portal proxy. Sessions are terminated upstream; this service only needs
// the user id to attribute alert acknowledgments. Provider webhooks under
// /public carry no identity and pass through untouched.
func Authentication(c *gin.Context) {
	if id := c.GetHeader("X-User-Id"); id != "" {
		c.Set("userID", id)
	}
	c.Next()
}
