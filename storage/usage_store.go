package storage

import "gorm.io/gorm"

// UsageStore is the append-only log of per-attempt outcomes.
type UsageStore struct {
	db *gorm.DB
}

func NewUsageStore(db *gorm.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Append writes one UsageEntry. No retention policy is enforced here;
// truncation by age or count, if ever needed, is an admin-side concern.
func (s *UsageStore) Append(credentialID uint, success bool, detail string) error {
	entry := &UsageEntry{
		CredentialID: credentialID,
		Success:      success,
		Detail:       detail,
	}
	return s.db.Create(entry).Error
}

// Recent returns the n most recent entries for a credential, newest first.
func (s *UsageStore) Recent(credentialID uint, n int) ([]*UsageEntry, error) {
	var entries []*UsageEntry
	err := s.db.
		Where("credential_id = ?", credentialID).
		Order("created_at desc").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
