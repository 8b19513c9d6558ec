// Package handlers implements the JSON-only admin surface: login/logout,
// credential CRUD, outbound-proxy CRUD, and a diagnostic status endpoint.
// Generalizes the teacher's admin_handlers.go, dropping the HTML dashboard
// and login-page branches since the web UI is out of scope.
package handlers

import (
	"net/http"

	"chatrelay/config"
	"chatrelay/middleware"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var Log *logrus.Logger

// LoginHandler handles POST /admin/login.
func LoginHandler(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "invalid request body: " + err.Error(), Type: models.ErrTypeInvalidJSON}})
		return
	}

	settings := config.GetSettings()
	if settings.AdminPassword == "" || settings.AdminPasswordHash == "" {
		Log.Error("handlers: admin login attempted but ADMIN_PASSWORD is not configured")
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "admin account is not configured, login is disabled", Type: "config_error"}})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(settings.AdminPasswordHash), []byte(req.Password)); err != nil {
		Log.Warn("handlers: admin login failed, wrong password")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "incorrect password", Type: models.ErrTypeUnauthorized}})
		return
	}

	session, _ := middleware.Store.Get(c.Request, middleware.SessionKey)
	session.Values[middleware.IsLoggedInKey] = true
	session.Options.MaxAge = middleware.MaxAgeSeconds
	session.Options.HttpOnly = true
	session.Options.Path = middleware.SessionPath
	session.Options.SameSite = http.SameSiteLaxMode

	if err := session.Save(c.Request, c.Writer); err != nil {
		Log.Errorf("handlers: failed saving admin session: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not persist session", Type: models.ErrTypeInternalError}})
		return
	}
	Log.Info("handlers: admin login succeeded")
	c.JSON(http.StatusOK, gin.H{"message": "logged in"})
}

// LogoutHandler handles POST /admin/logout.
func LogoutHandler(c *gin.Context) {
	session, _ := middleware.Store.Get(c.Request, middleware.SessionKey)
	session.Values[middleware.IsLoggedInKey] = false
	session.Options.MaxAge = -1

	if err := session.Save(c.Request, c.Writer); err != nil {
		Log.Errorf("handlers: failed expiring admin session: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not clear session", Type: models.ErrTypeInternalError}})
		return
	}
	Log.Info("handlers: admin logout succeeded")
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
