package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrProxyNotFound = errors.New("outbound proxy not found")

// OutboundProxyStore persists the admin-managed outbound-proxy chain and
// the ProxyPin/ProxyModeFlag singletons.
type OutboundProxyStore struct {
	db *gorm.DB
}

func NewOutboundProxyStore(db *gorm.DB) *OutboundProxyStore {
	return &OutboundProxyStore{db: db}
}

// Add inserts a new outbound proxy at the end of the ordering index.
func (s *OutboundProxyStore) Add(p *OutboundProxy) error {
	if p.PublicID == "" {
		p.PublicID = uuid.NewString()
	}
	var maxIdx int
	s.db.Model(&OutboundProxy{}).Select("COALESCE(MAX(order_index), -1)").Scan(&maxIdx)
	p.OrderIndex = maxIdx + 1
	return s.db.Create(p).Error
}

func (s *OutboundProxyStore) Delete(publicID string) error {
	result := s.db.Where("public_id = ?", publicID).Delete(&OutboundProxy{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProxyNotFound
	}
	return nil
}

// List returns every proxy ordered by ordering index, the order the
// Selector's fan-out iterates in.
func (s *OutboundProxyStore) List() ([]*OutboundProxy, error) {
	var proxies []*OutboundProxy
	if err := s.db.Order("order_index asc").Find(&proxies).Error; err != nil {
		return nil, err
	}
	return proxies, nil
}

func (s *OutboundProxyStore) Get(id uint) (*OutboundProxy, error) {
	var p OutboundProxy
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProxyNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *OutboundProxyStore) GetByPublicID(publicID string) (*OutboundProxy, error) {
	var p OutboundProxy
	if err := s.db.Where("public_id = ?", publicID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProxyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// RecordVerification stamps the outcome of a manual reachability
// verification.
func (s *OutboundProxyStore) RecordVerification(id uint, ok bool, exitIP string, latencyMs int, verifyErr string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"last_verified_ok": ok,
		"last_verified_at": &now,
		"last_exit_ip":     exitIP,
		"last_latency_ms":  latencyMs,
		"last_verify_err":  verifyErr,
	}
	result := s.db.Model(&OutboundProxy{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProxyNotFound
	}
	return nil
}

// IsModeEnabled reports whether outbound-proxy fan-out is globally enabled.
func (s *OutboundProxyStore) IsModeEnabled() (bool, error) {
	var flag ProxyModeFlag
	if err := s.db.First(&flag, 1).Error; err != nil {
		return false, err
	}
	return flag.Enabled, nil
}

// SetModeEnabled flips the global outbound-proxy mode flag.
func (s *OutboundProxyStore) SetModeEnabled(enabled bool) error {
	return s.db.Model(&ProxyModeFlag{}).Where("id = ?", 1).Update("enabled", enabled).Error
}

// GetPin returns the current pin, or a zero-value pin (no OutboundProxyID)
// if none is set or it has expired.
func (s *OutboundProxyStore) GetPin() (*ProxyPin, error) {
	var pin ProxyPin
	if err := s.db.First(&pin, 1).Error; err != nil {
		return nil, err
	}
	if pin.ExpiresAt != nil && pin.ExpiresAt.Before(time.Now()) {
		pin.OutboundProxyID = nil
		pin.ExpiresAt = nil
	}
	return &pin, nil
}

// SetPin pins a proxy until expiresAt (the Selector passes now +
// ProxyPinWindow).
func (s *OutboundProxyStore) SetPin(proxyID uint, expiresAt time.Time) error {
	return s.db.Model(&ProxyPin{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"outbound_proxy_id": proxyID,
		"expires_at":        expiresAt,
	}).Error
}

// ClearPin removes the current pin, e.g. after a failed request through it.
func (s *OutboundProxyStore) ClearPin() error {
	return s.db.Model(&ProxyPin{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"outbound_proxy_id": nil,
		"expires_at":        nil,
	}).Error
}
