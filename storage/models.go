package storage

import (
	"time"

	"gorm.io/gorm"
)

// CredentialStatus is the lifecycle status of a Credential.
type CredentialStatus string

const (
	StatusActive       CredentialStatus = "active"
	StatusInsufficient CredentialStatus = "insufficient"
	StatusError        CredentialStatus = "error"
)

// Credential is one upstream bearer token managed by the Registry. ID is the
// GORM auto-increment primary key; PublicID is the stable identifier exposed
// to admin clients so internal row numbering never leaks as an API contract.
type Credential struct {
	ID        uint           `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	PublicID string           `gorm:"type:varchar(64);uniqueIndex;not null"`
	Secret   string           `gorm:"type:varchar(255);uniqueIndex;not null"`
	Status   CredentialStatus `gorm:"type:varchar(16);default:'active';not null"`
	Weight   int              `gorm:"default:1"`

	Availability bool `gorm:"default:true;not null"`

	Balance        *float64
	BalanceProbeAt *time.Time

	CallCount       int64 `gorm:"default:0"`
	LastUsedAt      *time.Time
	ErrorCount      int    `gorm:"default:0"`
	LastError       string `gorm:"type:text"`
}

func (Credential) TableName() string {
	return "credentials"
}

// OutboundProxyScheme is the transport a proxy speaks.
type OutboundProxyScheme string

const (
	SchemeSOCKS5 OutboundProxyScheme = "socks5"
	SchemeHTTP   OutboundProxyScheme = "http"
	SchemeHTTPS  OutboundProxyScheme = "https"
)

// OutboundProxy is one entry in the admin-managed outbound-proxy chain.
type OutboundProxy struct {
	ID        uint           `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	PublicID string               `gorm:"type:varchar(64);uniqueIndex;not null"`
	Scheme   OutboundProxyScheme  `gorm:"type:varchar(8);not null"`
	Host     string               `gorm:"type:varchar(255);not null"`
	Port     int                  `gorm:"not null"`
	Username *string
	Password *string

	OrderIndex int `gorm:"default:0;index"`

	LastVerifiedOK bool `gorm:"default:false"`
	LastVerifiedAt *time.Time
	LastExitIP     string `gorm:"type:varchar(64)"`
	LastLatencyMs  int
	LastVerifyErr  string `gorm:"type:text"`
}

func (OutboundProxy) TableName() string {
	return "outbound_proxies"
}

// ProxyPin is the singleton row recording the currently-pinned outbound
// proxy and its expiry. It is upserted in place, never appended to.
type ProxyPin struct {
	ID uint `gorm:"primarykey"`

	OutboundProxyID *uint
	ExpiresAt       *time.Time
	UpdatedAt       time.Time
}

func (ProxyPin) TableName() string {
	return "proxy_pins"
}

// ProxyModeFlag is a singleton row gating whether the outbound-proxy fan-out
// path is enabled at all.
type ProxyModeFlag struct {
	ID      uint `gorm:"primarykey"`
	Enabled bool `gorm:"default:false"`
}

func (ProxyModeFlag) TableName() string {
	return "proxy_mode_flags"
}

// BlockRecord records that the proxy process's own egress IP has been
// soft-blocked by the upstream. Only the most recent unexpired row matters;
// older rows are purged by the background sweep.
type BlockRecord struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	PublicID   string `gorm:"type:varchar(64);uniqueIndex;not null"`
	BlockedAt  time.Time
	UnblockAt  time.Time `gorm:"index"`
	Reason     string    `gorm:"type:text"`
}

func (BlockRecord) TableName() string {
	return "block_records"
}

// UsageEntry is an append-only record of one upstream attempt's outcome.
type UsageEntry struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`

	CredentialID uint   `gorm:"index;not null"`
	Success      bool   `gorm:"not null"`
	Detail       string `gorm:"type:text"`
}

func (UsageEntry) TableName() string {
	return "usage_entries"
}
