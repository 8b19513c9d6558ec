package handlers

import (
	"errors"
	"net/http"

	"chatrelay/models"
	"chatrelay/proxyclient"
	"chatrelay/storage"

	"github.com/gin-gonic/gin"
)

func toProxyResponse(p *storage.OutboundProxy) models.ProxyResponse {
	return models.ProxyResponse{
		PublicID:       p.PublicID,
		Scheme:         string(p.Scheme),
		Host:           p.Host,
		Port:           p.Port,
		OrderIndex:     p.OrderIndex,
		LastVerifiedOK: p.LastVerifiedOK,
		LastVerifiedAt: p.LastVerifiedAt,
		LastExitIP:     p.LastExitIP,
		LastLatencyMs:  p.LastLatencyMs,
		LastVerifyErr:  p.LastVerifyErr,
	}
}

// ListProxiesHandler handles GET /admin/proxies.
func ListProxiesHandler(c *gin.Context) {
	proxies, err := Proxies.List()
	if err != nil {
		Log.Errorf("handlers: listing proxies failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not list proxies", Type: models.ErrTypeInternalError}})
		return
	}
	out := make([]models.ProxyResponse, 0, len(proxies))
	for _, p := range proxies {
		out = append(out, toProxyResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

// AddProxyHandler handles POST /admin/proxies.
func AddProxyHandler(c *gin.Context) {
	var req models.AddProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "invalid request body: " + err.Error(), Type: models.ErrTypeInvalidJSON}})
		return
	}

	scheme := storage.OutboundProxyScheme(req.Scheme)
	switch scheme {
	case storage.SchemeSOCKS5, storage.SchemeHTTP, storage.SchemeHTTPS:
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "scheme must be one of socks5, http, https", Type: models.ErrTypeInvalidJSON}})
		return
	}

	p := &storage.OutboundProxy{
		Scheme:   scheme,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
	}
	if err := Proxies.Add(p); err != nil {
		Log.Errorf("handlers: adding proxy %s:%d failed: %v", req.Host, req.Port, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not add proxy", Type: models.ErrTypeInternalError}})
		return
	}

	Log.Infof("handlers: outbound proxy added (%s %s:%d)", p.Scheme, p.Host, p.Port)
	c.JSON(http.StatusCreated, gin.H{"id": p.PublicID})
}

// DeleteProxyHandler handles DELETE /admin/proxies/:id.
func DeleteProxyHandler(c *gin.Context) {
	publicID := c.Param("id")
	if err := Proxies.Delete(publicID); err != nil {
		respondProxyError(c, err)
		return
	}
	Log.Infof("handlers: outbound proxy %s deleted", publicID)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// SetProxyModeHandler handles PATCH /admin/proxies/mode.
func SetProxyModeHandler(c *gin.Context) {
	var req models.SetProxyModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "invalid request body: " + err.Error(), Type: models.ErrTypeInvalidJSON}})
		return
	}
	if err := Proxies.SetModeEnabled(req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "could not update proxy mode", Type: models.ErrTypeInternalError}})
		return
	}
	Log.Infof("handlers: outbound proxy mode set to %v", req.Enabled)
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// VerifyProxyHandler handles POST /admin/proxies/:id/verify.
func VerifyProxyHandler(c *gin.Context) {
	p, err := Proxies.GetByPublicID(c.Param("id"))
	if err != nil {
		respondProxyError(c, err)
		return
	}

	result := proxyclient.Verify(c.Request.Context(), p)
	if err := Proxies.RecordVerification(p.ID, result.OK, result.ExitIP, result.LatencyMs, result.Err); err != nil {
		Log.Errorf("handlers: recording verification for proxy %s failed: %v", p.PublicID, err)
	}
	c.JSON(http.StatusOK, result)
}

func respondProxyError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrProxyNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "proxy not found", Type: "not_found"}})
		return
	}
	Log.Errorf("handlers: proxy lookup failed: %v", err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
		Message: "internal error", Type: models.ErrTypeInternalError}})
}
