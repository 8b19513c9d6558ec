package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockStoreActiveReturnsNilWhenNoneRecorded(t *testing.T) {
	store := NewBlockStore(newTestDB(t))
	rec, err := store.Active()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBlockStoreActiveFindsUnexpiredRecord(t *testing.T) {
	store := NewBlockStore(newTestDB(t))
	_, err := store.Record(30*time.Minute, "busy")
	require.NoError(t, err)

	rec, err := store.Active()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "busy", rec.Reason)
	assert.True(t, rec.UnblockAt.After(time.Now()))
}

func TestBlockStorePurgeExpiredRemovesOnlyPastRecords(t *testing.T) {
	db := newTestDB(t)
	store := NewBlockStore(db)

	expired, err := store.Record(-time.Minute, "already over")
	require.NoError(t, err)
	live, err := store.Record(time.Hour, "still active")
	require.NoError(t, err)

	n, err := store.PurgeExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var remaining []BlockRecord
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, live.PublicID, remaining[0].PublicID)
	assert.NotEqual(t, expired.PublicID, remaining[0].PublicID)
}
