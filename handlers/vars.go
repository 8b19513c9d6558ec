package handlers

import (
	"time"

	"chatrelay/engine"
	"chatrelay/proxyclient"
	"chatrelay/storage"
)

// These are injected by main.go at startup, following the teacher's
// pattern of package-level dependencies (Log, ApiKeyMgr, AppStartTime)
// rather than threading a context struct through every handler.
var (
	Credentials  *storage.CredentialStore
	Proxies      *storage.OutboundProxyStore
	Selector     *engine.KeySelector
	Availability *engine.AvailabilityController
	ProxyRouter  *proxyclient.Selector
	Eng          *engine.Engine
	AppStartTime time.Time
)
