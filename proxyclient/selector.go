package proxyclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chatrelay/config"
	"chatrelay/storage"
)

// ErrProxyModeDisabled signals that outbound-proxy mode is off globally;
// the caller should dispatch directly instead.
var ErrProxyModeDisabled = errors.New("outbound proxy mode disabled")

// AttemptFunc performs one upstream HTTP attempt through the given client.
// A non-nil error or nil response counts as a failed attempt for fan-out
// purposes.
type AttemptFunc func(ctx context.Context, client *http.Client) (*http.Response, error)

// Selector implements spec.md §4.5's dispatch algorithm: respect a valid
// pin first, then fan out across the ordered proxy list on the first
// success, pinning that proxy for the next 60 minutes.
type Selector struct {
	store *storage.OutboundProxyStore
}

func NewSelector(store *storage.OutboundProxyStore) *Selector {
	return &Selector{store: store}
}

// ModeEnabled reports whether outbound-proxy mode is globally enabled.
func (s *Selector) ModeEnabled() (bool, error) {
	return s.store.IsModeEnabled()
}

// PinnedProxy returns the currently pinned proxy, or nil if no valid pin
// exists (none set, or it has expired).
func (s *Selector) PinnedProxy() (*storage.OutboundProxy, error) {
	pin, err := s.store.GetPin()
	if err != nil {
		return nil, err
	}
	if pin.OutboundProxyID == nil {
		return nil, nil
	}
	return s.store.Get(*pin.OutboundProxyID)
}

// FanOut runs the pin-then-iterate-all algorithm: if outbound-proxy mode is
// disabled, returns ErrProxyModeDisabled so the caller falls back to a
// direct attempt. Otherwise it tries the pinned proxy (clearing it on
// failure), then every proxy in ordering-index order, pinning the first
// one that succeeds. allFailed is true only when every proxy (pinned and
// listed) was tried and none succeeded.
func (s *Selector) FanOut(ctx context.Context, attempt AttemptFunc) (resp *http.Response, used *storage.OutboundProxy, allFailed bool, err error) {
	enabled, err := s.store.IsModeEnabled()
	if err != nil {
		return nil, nil, false, err
	}
	if !enabled {
		return nil, nil, false, ErrProxyModeDisabled
	}

	pin, err := s.store.GetPin()
	if err != nil {
		return nil, nil, false, err
	}
	if pin.OutboundProxyID != nil {
		if p, gerr := s.store.Get(*pin.OutboundProxyID); gerr == nil {
			if client, cerr := ClientFor(p); cerr == nil {
				if r, aerr := attempt(ctx, client); aerr == nil && r != nil {
					return r, p, false, nil
				}
			}
		}
		_ = s.store.ClearPin()
	}

	proxies, err := s.store.List()
	if err != nil {
		return nil, nil, false, err
	}

	for _, p := range proxies {
		client, cerr := ClientFor(p)
		if cerr != nil {
			if Log != nil {
				Log.Warnf("proxyclient: skipping proxy %s, transport build failed: %v", p.PublicID, cerr)
			}
			continue
		}
		r, aerr := attempt(ctx, client)
		if aerr == nil && r != nil {
			expiresAt := time.Now().Add(config.ProxyPinWindow)
			if serr := s.store.SetPin(p.ID, expiresAt); serr != nil && Log != nil {
				Log.Warnf("proxyclient: failed to persist pin: %v", serr)
			}
			return r, p, false, nil
		}
	}

	return nil, nil, true, nil
}
