// Package engine holds the key-selection state machine and the request
// engine (the hot core): the per-request retry/failover loop, streaming
// passthrough, and client-disconnect propagation.
package engine

import (
	"sync"

	"chatrelay/storage"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// KeySelector maintains the in-memory cursor over the available-credential
// list, guarded by a mutex the way the teacher's ApiKeyManager guards its
// slice with m.lock. Unlike the teacher's weighted-random GetNextAPIKey,
// this selector walks a deterministic, creation-ordered cursor.
type KeySelector struct {
	mu        sync.Mutex
	store     *storage.CredentialStore
	available []*storage.Credential
	cursorID  uint
}

func NewKeySelector(store *storage.CredentialStore) *KeySelector {
	ks := &KeySelector{store: store}
	ks.Refresh()
	return ks
}

// Current returns the cursor's credential if it is still available and
// active; otherwise it advances and returns the result of that.
func (ks *KeySelector) Current() (*storage.Credential, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.cursorID != 0 {
		for _, c := range ks.available {
			if c.ID == ks.cursorID {
				if c.Status == storage.StatusActive {
					return c, true
				}
				break
			}
		}
	}
	return ks.advanceLocked()
}

// Advance scans the available list starting just after the cursor,
// wrapping once, and returns the first status=active credential found.
func (ks *KeySelector) Advance() (*storage.Credential, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.advanceLocked()
}

func (ks *KeySelector) advanceLocked() (*storage.Credential, bool) {
	n := len(ks.available)
	if n == 0 {
		ks.cursorID = 0
		return nil, false
	}

	startIdx := 0
	if ks.cursorID != 0 {
		for i, c := range ks.available {
			if c.ID == ks.cursorID {
				startIdx = i + 1
				break
			}
		}
	}

	for i := 0; i < n; i++ {
		idx := (startIdx + i) % n
		c := ks.available[idx]
		if c.Status == storage.StatusActive {
			ks.cursorID = c.ID
			return c, true
		}
	}

	ks.cursorID = 0
	return nil, false
}

// Refresh reloads the available list from the Registry. If the cursor no
// longer points to a credential in the fresh list, it is cleared.
func (ks *KeySelector) Refresh() {
	list, err := ks.store.ListAvailable()
	if err != nil {
		if Log != nil {
			Log.Warnf("key selector: refresh failed: %v", err)
		}
		return
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.available = list

	if ks.cursorID != 0 {
		found := false
		for _, c := range list {
			if c.ID == ks.cursorID {
				found = true
				break
			}
		}
		if !found {
			ks.cursorID = 0
		}
	}
}

// Notify is the "refresh on mutation" event: any Registry mutation that can
// affect availability calls this instead of the Selector polling on a timer.
func (ks *KeySelector) Notify() {
	ks.Refresh()
}
