// Package middleware holds the gin auth guards for the client and admin
// HTTP surfaces.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"chatrelay/config"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// VerifyBearer enforces `Authorization: Bearer <ADMIN_PASSWORD>` on the
// client gateway. If ADMIN_PASSWORD is empty, auth is disabled and this
// middleware should not be registered at all (decided in main.go).
//
// Strengthens the teacher's plain != compare (middleware/auth.go) with a
// constant-time compare, per spec.md §4.8.
func VerifyBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.GetSettings().AdminPassword
		if expected == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abortUnauthorized(c, "missing or malformed Authorization header")
			return
		}

		token := parts[1]
		if !constantTimeEqual(token, expected) {
			abortUnauthorized(c, "invalid bearer token")
			return
		}

		c.Next()
	}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func abortUnauthorized(c *gin.Context, reason string) {
	if Log != nil {
		Log.Warnf("middleware: rejecting request: %s", reason)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: models.ErrorDetail{
			Message: "invalid or missing credentials",
			Type:    models.ErrTypeUnauthorized,
		},
	})
}
