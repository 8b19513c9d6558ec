package handlers

import (
	"errors"
	"net/http"

	"chatrelay/models"
	"chatrelay/storage"
	"chatrelay/utils"

	"github.com/gin-gonic/gin"
)

func toCredentialResponse(v storage.CredentialView) models.CredentialResponse {
	return models.CredentialResponse{
		PublicID:     v.PublicID,
		SecretMasked: v.SecretMasked,
		Status:       string(v.Status),
		Availability: v.Availability,
		Balance:      v.Balance,
		Weight:       v.Weight,
		CallCount:    v.CallCount,
		ErrorCount:   v.ErrorCount,
		LastError:    v.LastError,
		CreatedAt:    v.CreatedAt,
		LastUsedAt:   v.LastUsedAt,
	}
}

// ListCredentialsHandler handles GET /admin/credentials.
func ListCredentialsHandler(c *gin.Context) {
	views, err := Credentials.List()
	if err != nil {
		Log.Errorf("handlers: listing credentials failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not list credentials", Type: models.ErrTypeInternalError}})
		return
	}
	out := make([]models.CredentialResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toCredentialResponse(v))
	}
	c.JSON(http.StatusOK, out)
}

// GetCredentialHandler handles GET /admin/credentials/:id.
func GetCredentialHandler(c *gin.Context) {
	cred, err := Credentials.GetByPublicID(c.Param("id"))
	if err != nil {
		respondCredentialError(c, err)
		return
	}
	views, err := Credentials.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not load credential", Type: models.ErrTypeInternalError}})
		return
	}
	for _, v := range views {
		if v.PublicID == cred.PublicID {
			c.JSON(http.StatusOK, toCredentialResponse(v))
			return
		}
	}
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
		Message: "credential not found", Type: "not_found"}})
}

// AddCredentialHandler handles POST /admin/credentials.
func AddCredentialHandler(c *gin.Context) {
	var req models.AddCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "invalid request body: " + err.Error(), Type: models.ErrTypeInvalidJSON}})
		return
	}

	cred, err := Credentials.Add(req.Secret)
	if err != nil {
		if errors.Is(err, storage.ErrSecretExists) {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "credential already exists", Type: "credential_already_exists"}})
			return
		}
		Log.Errorf("handlers: adding credential (%s) failed: %v", utils.SafeSuffix(req.Secret), err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not add credential", Type: models.ErrTypeInternalError}})
		return
	}

	Selector.Notify()
	Log.Infof("handlers: credential added (%s)", utils.SafeSuffix(cred.Secret))
	c.JSON(http.StatusCreated, gin.H{"id": cred.PublicID})
}

// DeleteCredentialHandler handles DELETE /admin/credentials/:id.
func DeleteCredentialHandler(c *gin.Context) {
	publicID := c.Param("id")
	if err := Credentials.Delete(publicID); err != nil {
		respondCredentialError(c, err)
		return
	}
	Selector.Notify()
	Log.Infof("handlers: credential %s deleted", publicID)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// SetAvailabilityHandler handles PATCH /admin/credentials/:id/availability.
func SetAvailabilityHandler(c *gin.Context) {
	cred, err := Credentials.GetByPublicID(c.Param("id"))
	if err != nil {
		respondCredentialError(c, err)
		return
	}

	var req models.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "invalid request body: " + err.Error(), Type: models.ErrTypeInvalidJSON}})
		return
	}

	if req.Available {
		if err := Availability.ManualToggleAvailability(cred.ID); err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
				Message: "could not update availability", Type: models.ErrTypeInternalError}})
			return
		}
	} else if err := Credentials.SetAvailability(cred.ID, false); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not update availability", Type: models.ErrTypeInternalError}})
		return
	}

	Selector.Notify()
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// SetStatusHandler handles PATCH /admin/credentials/:id/status.
func SetStatusHandler(c *gin.Context) {
	cred, err := Credentials.GetByPublicID(c.Param("id"))
	if err != nil {
		respondCredentialError(c, err)
		return
	}

	var req models.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "invalid request body: " + err.Error(), Type: models.ErrTypeInvalidJSON}})
		return
	}

	status := storage.CredentialStatus(req.Status)
	switch status {
	case storage.StatusActive, storage.StatusInsufficient, storage.StatusError:
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "unknown status value", Type: models.ErrTypeInvalidJSON}})
		return
	}

	if err := Credentials.SetStatus(cred.ID, status, req.Error); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not update status", Type: models.ErrTypeInternalError}})
		return
	}

	Selector.Notify()
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func respondCredentialError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrCredentialNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "credential not found", Type: "not_found"}})
		return
	}
	Log.Errorf("handlers: credential lookup failed: %v", err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
		Message: "internal error", Type: models.ErrTypeInternalError}})
}
