package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundProxyStoreAddAssignsIncrementingOrderIndex(t *testing.T) {
	store := NewOutboundProxyStore(newTestDB(t))

	p1 := &OutboundProxy{Scheme: SchemeSOCKS5, Host: "proxy1", Port: 1080}
	p2 := &OutboundProxy{Scheme: SchemeHTTP, Host: "proxy2", Port: 8080}
	require.NoError(t, store.Add(p1))
	require.NoError(t, store.Add(p2))

	assert.Equal(t, 0, p1.OrderIndex)
	assert.Equal(t, 1, p2.OrderIndex)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p1.PublicID, list[0].PublicID)
	assert.Equal(t, p2.PublicID, list[1].PublicID)
}

func TestOutboundProxyStorePinExpiresAutomatically(t *testing.T) {
	store := NewOutboundProxyStore(newTestDB(t))
	p := &OutboundProxy{Scheme: SchemeHTTP, Host: "proxy", Port: 8080}
	require.NoError(t, store.Add(p))

	require.NoError(t, store.SetPin(p.ID, time.Now().Add(-time.Minute)))
	pin, err := store.GetPin()
	require.NoError(t, err)
	assert.Nil(t, pin.OutboundProxyID)

	require.NoError(t, store.SetPin(p.ID, time.Now().Add(time.Hour)))
	pin, err = store.GetPin()
	require.NoError(t, err)
	require.NotNil(t, pin.OutboundProxyID)
	assert.Equal(t, p.ID, *pin.OutboundProxyID)
}

func TestOutboundProxyStoreModeEnabledDefaultsFalse(t *testing.T) {
	store := NewOutboundProxyStore(newTestDB(t))
	enabled, err := store.IsModeEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, store.SetModeEnabled(true))
	enabled, err = store.IsModeEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestOutboundProxyStoreDeleteUnknownReturnsNotFound(t *testing.T) {
	store := NewOutboundProxyStore(newTestDB(t))
	assert.ErrorIs(t, store.Delete("nope"), ErrProxyNotFound)
}
