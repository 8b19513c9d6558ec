package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStoreAddRejectsDuplicateSecret(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))

	cred, err := store.Add("sk-abc")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.PublicID)
	assert.Equal(t, StatusActive, cred.Status)
	assert.True(t, cred.Availability)

	_, err = store.Add("sk-abc")
	assert.ErrorIs(t, err, ErrSecretExists)
}

func TestCredentialStoreListMasksSecret(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	_, err := store.Add("sk-abcdefghijklmnop")
	require.NoError(t, err)

	views, err := store.List()
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.NotContains(t, views[0].SecretMasked, "sk-abcdefghijklmnop")
	assert.Contains(t, views[0].SecretMasked, "...")
	assert.Equal(t, 1, views[0].Weight, "new credentials default to weight 1")
}

func TestCredentialStoreListAvailableFiltersByStatusAndAvailability(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	active, err := store.Add("sk-one")
	require.NoError(t, err)
	demoted, err := store.Add("sk-two")
	require.NoError(t, err)

	require.NoError(t, store.SetAvailability(demoted.ID, false))

	available, err := store.ListAvailable()
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, active.ID, available[0].ID)
}

func TestCredentialStoreSetStatusTracksErrorCount(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	cred, err := store.Add("sk-err")
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(cred.ID, StatusError, "boom"))
	fresh, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, fresh.Status)
	assert.Equal(t, 1, fresh.ErrorCount)
	assert.Equal(t, "boom", fresh.LastError)

	require.NoError(t, store.SetStatus(cred.ID, StatusError, "boom again"))
	fresh, err = store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.ErrorCount)

	require.NoError(t, store.SetStatus(cred.ID, StatusActive, ""))
	fresh, err = store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.ErrorCount)
	assert.Empty(t, fresh.LastError)
}

func TestCredentialStoreDeleteUnknownReturnsNotFound(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	err := store.Delete("does-not-exist")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialStoreIncrementCallsBumpsCountAndTimestamp(t *testing.T) {
	store := NewCredentialStore(newTestDB(t))
	cred, err := store.Add("sk-calls")
	require.NoError(t, err)
	assert.Nil(t, cred.LastUsedAt)

	require.NoError(t, store.IncrementCalls(cred.ID))
	fresh, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fresh.CallCount)
	require.NotNil(t, fresh.LastUsedAt)
}
