package middleware

import (
	"net/http"

	"chatrelay/config"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// Store is the cookie store backing the admin session; initialized in
// main.go from config.Settings.SessionSecretKey.
var Store *sessions.CookieStore

const (
	SessionKey    = "admin-session"
	IsLoggedInKey = "is_logged_in"
	MaxAgeSeconds = 3600 * 24 * 7
	SessionPath   = "/admin"
)

// RequireSession is a gin middleware gating the JSON admin API on a valid
// session, the teacher's AuthMiddleware generalized to a JSON-only surface
// (no HTML redirect branch, since the web UI is out of scope).
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.GetSettings().AdminPassword == "" {
			c.Next()
			return
		}

		session, err := Store.Get(c.Request, SessionKey)
		if err != nil {
			if Log != nil {
				Log.Warnf("middleware: session lookup failed: %v", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "session invalid or corrupted, log in again",
				Type:    models.ErrTypeUnauthorized,
			}})
			return
		}

		loggedIn, _ := session.Values[IsLoggedInKey].(bool)
		if !loggedIn {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "not authenticated",
				Type:    models.ErrTypeUnauthorized,
			}})
			return
		}

		c.Next()
	}
}
