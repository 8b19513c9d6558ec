package models

import "time"

// AddCredentialRequest is the body of POST /admin/credentials.
type AddCredentialRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// CredentialResponse is the masked admin-facing projection of a credential.
type CredentialResponse struct {
	PublicID     string     `json:"id"`
	SecretMasked string     `json:"secret_masked"`
	Status       string     `json:"status"`
	Availability bool       `json:"availability"`
	Balance      *float64   `json:"balance"`
	Weight       int        `json:"weight"`
	CallCount    int64      `json:"call_count"`
	ErrorCount   int        `json:"error_count"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// SetAvailabilityRequest is the body of PATCH /admin/credentials/:id/availability.
type SetAvailabilityRequest struct {
	Available bool `json:"available"`
}

// SetStatusRequest is the body of PATCH /admin/credentials/:id/status.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Error  string `json:"error,omitempty"`
}

// AddProxyRequest is the body of POST /admin/proxies.
type AddProxyRequest struct {
	Scheme   string  `json:"scheme" binding:"required"`
	Host     string  `json:"host" binding:"required"`
	Port     int     `json:"port" binding:"required"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

// ProxyResponse is the admin-facing projection of an outbound proxy.
type ProxyResponse struct {
	PublicID       string     `json:"id"`
	Scheme         string     `json:"scheme"`
	Host           string     `json:"host"`
	Port           int        `json:"port"`
	OrderIndex     int        `json:"order_index"`
	LastVerifiedOK bool       `json:"last_verified_ok"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	LastExitIP     string     `json:"last_exit_ip,omitempty"`
	LastLatencyMs  int        `json:"last_latency_ms,omitempty"`
	LastVerifyErr  string     `json:"last_verify_err,omitempty"`
}

// SetProxyModeRequest is the body of PATCH /admin/proxies/mode.
type SetProxyModeRequest struct {
	Enabled bool `json:"enabled"`
}

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AppStatusInfo answers GET /admin/app-status — a diagnostic surface kept
// from the teacher's AppStatusHandler, re-scoped away from OpenRouter-
// specific fields to this system's own configuration.
type AppStatusInfo struct {
	StartTime           time.Time `json:"start_time"`
	Uptime              string    `json:"uptime"`
	GoVersion           string    `json:"go_version"`
	NumGoroutines       int       `json:"num_goroutines"`
	MemAllocatedMB      float64   `json:"mem_allocated_mb"`
	MemTotalAllocatedMB float64   `json:"mem_total_allocated_mb"`
	MemSysMB            float64   `json:"mem_sys_mb"`
	NumGC               uint32    `json:"num_gc"`
	LastGC              time.Time `json:"last_gc"`
	UpstreamBaseURL     string    `json:"upstream_base_url"`
	UpstreamTimeoutMs   int64     `json:"upstream_timeout_ms"`
	ClientTimeoutMs     int64     `json:"client_timeout_ms"`
	Port                string    `json:"port"`
	LogLevel            string    `json:"log_level"`
	GinMode             string    `json:"gin_mode"`
	AdminAuthConfigured bool      `json:"admin_auth_configured"`
	OutboundProxyMode   bool      `json:"outbound_proxy_mode"`
	CredentialCount     int       `json:"credential_count"`
}
