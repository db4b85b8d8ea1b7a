package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/hockey-training/pkg/auth"
)

// DevTokenMint issues access tokens for local testing. Production identity
// comes from the external provider; this route is only mounted when ENV=dev.
func DevTokenMint(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Sub   string `json:"sub" binding:"required"`
			Role  string `json:"role" binding:"required"`
			Email string `json:"email"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if in.Role != auth.RoleParent && in.Role != auth.RoleStaff {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be PARENT or STAFF"})
			return
		}
		tok, err := auth.CreateAccessToken(in.Sub, in.Role, in.Email, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": tok, "expires_in": int(ttl.Seconds())})
	}
}
