package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlockStore owns BlockRecord rows: the soft-block cooldown state consulted
// by the Request Engine on every request before it touches upstream.
type BlockStore struct {
	db *gorm.DB
}

func NewBlockStore(db *gorm.DB) *BlockStore {
	return &BlockStore{db: db}
}

// Record inserts a new BlockRecord with unblock = now + cooldown.
func (s *BlockStore) Record(cooldown time.Duration, reason string) (*BlockRecord, error) {
	now := time.Now()
	rec := &BlockRecord{
		PublicID:  uuid.NewString(),
		BlockedAt: now,
		UnblockAt: now.Add(cooldown),
		Reason:    reason,
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// Active returns the most recent BlockRecord whose unblock time is still in
// the future, or nil if none is active.
func (s *BlockStore) Active() (*BlockRecord, error) {
	var rec BlockRecord
	err := s.db.
		Where("unblock_at > ?", time.Now()).
		Order("unblock_at desc").
		First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// PurgeExpired deletes every BlockRecord whose unblock time has passed.
// Run on a 5-minute cron schedule by the blockdetect package.
func (s *BlockStore) PurgeExpired() (int64, error) {
	result := s.db.Unscoped().Where("unblock_at <= ?", time.Now()).Delete(&BlockRecord{})
	return result.RowsAffected, result.Error
}
