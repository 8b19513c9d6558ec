package engine

import (
	"testing"

	"chatrelay/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySelectorAdvanceWrapsAroundDeterministically(t *testing.T) {
	store := storage.NewCredentialStore(newTestDB(t))
	a, err := store.Add("sk-a")
	require.NoError(t, err)
	b, err := store.Add("sk-b")
	require.NoError(t, err)
	c, err := store.Add("sk-c")
	require.NoError(t, err)

	sel := NewKeySelector(store)

	first, ok := sel.Current()
	require.True(t, ok)
	assert.Equal(t, a.ID, first.ID)

	second, ok := sel.Advance()
	require.True(t, ok)
	assert.Equal(t, b.ID, second.ID)

	third, ok := sel.Advance()
	require.True(t, ok)
	assert.Equal(t, c.ID, third.ID)

	wrapped, ok := sel.Advance()
	require.True(t, ok)
	assert.Equal(t, a.ID, wrapped.ID, "cursor should wrap back to the first credential")
}

func TestKeySelectorSkipsUnavailableCredentials(t *testing.T) {
	store := storage.NewCredentialStore(newTestDB(t))
	a, err := store.Add("sk-a")
	require.NoError(t, err)
	b, err := store.Add("sk-b")
	require.NoError(t, err)

	require.NoError(t, store.SetAvailability(b.ID, false))

	sel := NewKeySelector(store)
	cred, ok := sel.Current()
	require.True(t, ok)
	assert.Equal(t, a.ID, cred.ID)

	next, ok := sel.Advance()
	require.True(t, ok)
	assert.Equal(t, a.ID, next.ID, "the only available credential should be returned every time")
}

func TestKeySelectorReturnsFalseWhenNoCredentialsAvailable(t *testing.T) {
	store := storage.NewCredentialStore(newTestDB(t))
	sel := NewKeySelector(store)

	_, ok := sel.Current()
	assert.False(t, ok)
}

func TestKeySelectorNotifyPicksUpNewlyAddedCredential(t *testing.T) {
	store := storage.NewCredentialStore(newTestDB(t))
	sel := NewKeySelector(store)

	_, ok := sel.Current()
	require.False(t, ok)

	added, err := store.Add("sk-fresh")
	require.NoError(t, err)
	sel.Notify()

	cred, ok := sel.Current()
	require.True(t, ok)
	assert.Equal(t, added.ID, cred.ID)
}
