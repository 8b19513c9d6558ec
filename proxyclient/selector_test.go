package proxyclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"chatrelay/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTestProxy(t *testing.T, store *storage.OutboundProxyStore, host string) *storage.OutboundProxy {
	t.Helper()
	p := &storage.OutboundProxy{Scheme: storage.SchemeHTTP, Host: host, Port: 8080}
	require.NoError(t, store.Add(p))
	return p
}

func TestFanOutReturnsModeDisabledWhenOff(t *testing.T) {
	store := storage.NewOutboundProxyStore(newTestDB(t))
	addTestProxy(t, store, "proxy1")
	sel := NewSelector(store)

	_, _, _, err := sel.FanOut(context.Background(), func(ctx context.Context, c *http.Client) (*http.Response, error) {
		t.Fatal("attempt should never run while mode is disabled")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrProxyModeDisabled)
}

func TestFanOutTriesProxiesInOrderAndPinsFirstSuccess(t *testing.T) {
	store := storage.NewOutboundProxyStore(newTestDB(t))
	require.NoError(t, store.SetModeEnabled(true))
	p1 := addTestProxy(t, store, "proxy1")
	p2 := addTestProxy(t, store, "proxy2")

	sel := NewSelector(store)
	var tried []uint
	resp, used, allFailed, err := sel.FanOut(context.Background(), func(ctx context.Context, c *http.Client) (*http.Response, error) {
		// attempt is called once per candidate, in list order; fail on the
		// first and succeed on the second.
		if len(tried) == 0 {
			tried = append(tried, p1.ID)
			return nil, errors.New("connection refused")
		}
		tried = append(tried, p2.ID)
		return &http.Response{StatusCode: 200}, nil
	})

	require.NoError(t, err)
	require.False(t, allFailed)
	require.NotNil(t, resp)
	require.NotNil(t, used)
	assert.Equal(t, p2.ID, used.ID)

	pin, err := store.GetPin()
	require.NoError(t, err)
	require.NotNil(t, pin.OutboundProxyID)
	assert.Equal(t, p2.ID, *pin.OutboundProxyID)
}

func TestFanOutReportsAllFailedWhenEveryProxyErrors(t *testing.T) {
	store := storage.NewOutboundProxyStore(newTestDB(t))
	require.NoError(t, store.SetModeEnabled(true))
	addTestProxy(t, store, "proxy1")
	addTestProxy(t, store, "proxy2")

	sel := NewSelector(store)
	resp, used, allFailed, err := sel.FanOut(context.Background(), func(ctx context.Context, c *http.Client) (*http.Response, error) {
		return nil, errors.New("refused")
	})

	require.NoError(t, err)
	assert.True(t, allFailed)
	assert.Nil(t, resp)
	assert.Nil(t, used)
}

func TestFanOutTriesPinnedProxyFirstAndClearsOnFailure(t *testing.T) {
	store := storage.NewOutboundProxyStore(newTestDB(t))
	require.NoError(t, store.SetModeEnabled(true))
	pinned := addTestProxy(t, store, "pinned")
	fallback := addTestProxy(t, store, "fallback")

	require.NoError(t, store.SetPin(pinned.ID, time.Now().Add(time.Hour)))

	// FanOut tries the pin directly first (call 1, fails), then walks the
	// full ordered list starting from the pinned proxy again (call 2,
	// fails) before reaching the fallback proxy (call 3, succeeds).
	sel := NewSelector(store)
	calls := 0
	resp, used, allFailed, err := sel.FanOut(context.Background(), func(ctx context.Context, c *http.Client) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("proxy down")
		}
		return &http.Response{StatusCode: 200}, nil
	})

	require.NoError(t, err)
	require.False(t, allFailed)
	require.NotNil(t, used)
	assert.Equal(t, fallback.ID, used.ID)
	assert.Equal(t, 3, calls)
	require.NotNil(t, resp)

	pin, err := store.GetPin()
	require.NoError(t, err)
	require.NotNil(t, pin.OutboundProxyID)
	assert.Equal(t, fallback.ID, *pin.OutboundProxyID, "the fallback success should become the new pin")
}

func TestFanOutReusesValidPinWithoutConsultingList(t *testing.T) {
	store := storage.NewOutboundProxyStore(newTestDB(t))
	require.NoError(t, store.SetModeEnabled(true))
	pinned := addTestProxy(t, store, "pinned")
	require.NoError(t, store.SetPin(pinned.ID, time.Now().Add(time.Hour)))

	sel := NewSelector(store)
	calls := 0
	resp, used, allFailed, err := sel.FanOut(context.Background(), func(ctx context.Context, c *http.Client) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 200}, nil
	})

	require.NoError(t, err)
	assert.False(t, allFailed)
	assert.Equal(t, 1, calls)
	require.NotNil(t, used)
	assert.Equal(t, pinned.ID, used.ID)
	require.NotNil(t, resp)
}
