package engine

import (
	"testing"

	"chatrelay/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newControllerFixture(t *testing.T) (*storage.CredentialStore, *AvailabilityController) {
	store := storage.NewCredentialStore(newTestDB(t))
	sel := NewKeySelector(store)
	return store, NewAvailabilityController(store, sel)
}

func TestAvailabilityOnSuccessClearsErrorStateAndRestores(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(cred.ID, storage.StatusError, "boom"))
	require.NoError(t, store.SetAvailability(cred.ID, false))

	refreshed, err := store.Get(cred.ID)
	require.NoError(t, err)
	require.NoError(t, ac.OnSuccess(refreshed))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, after.Status)
	assert.True(t, after.Availability)
	assert.Equal(t, 0, after.ErrorCount)
}

func TestAvailabilityOnSuccessLeavesAlreadyActiveUntouched(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	require.NoError(t, ac.OnSuccess(cred))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.True(t, after.Availability)
}

func TestAvailabilityOnFailureIncrementsErrorState(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	require.NoError(t, ac.OnFailure(cred, "rate limited"))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusError, after.Status)
	assert.Equal(t, 1, after.ErrorCount)
	assert.Equal(t, "rate limited", after.LastError)
}

func TestAvailabilityApplyBalanceRuleDemotesBelowThreshold(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	low := 0.5
	require.NoError(t, ac.ApplyBalanceRule(cred, &low))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusInsufficient, after.Status)
	assert.False(t, after.Availability)
	require.NotNil(t, after.Balance)
	assert.Equal(t, low, *after.Balance)
}

func TestAvailabilityApplyBalanceRuleIgnoresUnknownBalance(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	require.NoError(t, ac.ApplyBalanceRule(cred, nil))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, after.Status)
	assert.True(t, after.Availability)
	assert.Nil(t, after.Balance)
}

func TestAvailabilityApplyBalanceRuleLeavesHealthyBalanceAvailable(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	healthy := 25.0
	require.NoError(t, ac.ApplyBalanceRule(cred, &healthy))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, after.Status)
	assert.True(t, after.Availability)
}

func TestAvailabilityReevaluateDemotesOnHighErrorCountAndLowBalance(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	low := 0.2
	require.NoError(t, store.SetBalance(cred.ID, &low))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SetStatus(cred.ID, storage.StatusError, "fail"))
	}

	require.NoError(t, ac.Reevaluate(cred.ID))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.False(t, after.Availability)
}

func TestAvailabilityReevaluateRestoresWhenConditionNoLongerHolds(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)

	low := 0.2
	require.NoError(t, store.SetBalance(cred.ID, &low))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SetStatus(cred.ID, storage.StatusError, "fail"))
	}
	require.NoError(t, ac.Reevaluate(cred.ID))

	healthy := 50.0
	require.NoError(t, store.SetBalance(cred.ID, &healthy))
	require.NoError(t, store.SetStatus(cred.ID, storage.StatusError, "fail"))
	require.NoError(t, ac.Reevaluate(cred.ID))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.True(t, after.Availability)
}

func TestAvailabilityManualToggleResetsErrorStatus(t *testing.T) {
	store, ac := newControllerFixture(t)
	cred, err := store.Add("sk-a")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(cred.ID, storage.StatusError, "boom"))
	require.NoError(t, store.SetAvailability(cred.ID, false))

	require.NoError(t, ac.ManualToggleAvailability(cred.ID))

	after, err := store.Get(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, after.Status)
	assert.True(t, after.Availability)
}
