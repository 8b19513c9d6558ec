package storage

import (
	"errors"
	"time"

	"chatrelay/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrSecretExists       = errors.New("credential secret already exists")
)

// CredentialStore provides every operation spec.md §4.1 names over the
// Credential table. Each method is individually atomic.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// CredentialView is the masked-secret projection returned by list().
type CredentialView struct {
	PublicID     string
	SecretMasked string
	Status       CredentialStatus
	Availability bool
	Balance      *float64
	Weight       int
	CallCount    int64
	ErrorCount   int
	LastError    string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

func maskedView(c *Credential) CredentialView {
	return CredentialView{
		PublicID:     c.PublicID,
		SecretMasked: utils.MaskSecret(c.Secret),
		Status:       c.Status,
		Availability: c.Availability,
		Balance:      c.Balance,
		Weight:       c.Weight,
		CallCount:    c.CallCount,
		ErrorCount:   c.ErrorCount,
		LastError:    c.LastError,
		CreatedAt:    c.CreatedAt,
		LastUsedAt:   c.LastUsedAt,
	}
}

// Add inserts a new credential. Returns ErrSecretExists on a uniqueness
// conflict (mirrors the teacher's FirstOrCreate+RowsAffected idiom).
func (s *CredentialStore) Add(secret string) (*Credential, error) {
	cred := &Credential{
		PublicID:     uuid.NewString(),
		Secret:       secret,
		Status:       StatusActive,
		Availability: true,
		Weight:       1,
	}
	result := s.db.Where(Credential{Secret: secret}).Attrs(cred).FirstOrCreate(cred)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrSecretExists
	}
	return cred, nil
}

// Delete soft-deletes a credential by public id.
func (s *CredentialStore) Delete(publicID string) error {
	result := s.db.Where("public_id = ?", publicID).Delete(&Credential{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// List returns every non-deleted credential, masked, ordered newest first.
func (s *CredentialStore) List() ([]CredentialView, error) {
	var creds []Credential
	if err := s.db.Order("created_at desc").Find(&creds).Error; err != nil {
		return nil, err
	}
	views := make([]CredentialView, 0, len(creds))
	for i := range creds {
		views = append(views, maskedView(&creds[i]))
	}
	return views, nil
}

// ListAvailable returns credentials with availability=true and
// status=active, ordered by creation ascending — the Key Selector's source
// list. Full rows (including secret), not masked, since this feeds dispatch.
func (s *CredentialStore) ListAvailable() ([]*Credential, error) {
	var creds []*Credential
	err := s.db.
		Where("availability = ? AND status = ?", true, StatusActive).
		Order("created_at asc").
		Find(&creds).Error
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// Get returns the full (unmasked) credential row by internal id.
func (s *CredentialStore) Get(id uint) (*Credential, error) {
	var cred Credential
	if err := s.db.First(&cred, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// GetByPublicID returns the full credential row by its public identifier.
func (s *CredentialStore) GetByPublicID(publicID string) (*Credential, error) {
	var cred Credential
	if err := s.db.Where("public_id = ?", publicID).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// Export returns every credential with its secret in plain text. Callers
// must gate this behind admin auth; it is never used by the client path.
func (s *CredentialStore) Export() ([]*Credential, error) {
	var creds []*Credential
	if err := s.db.Order("created_at asc").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// SetStatus sets status and, when errMsg is non-empty, increments
// error_count and records last_error; when errMsg is empty, resets both.
func (s *CredentialStore) SetStatus(id uint, status CredentialStatus, errMsg string) error {
	updates := map[string]interface{}{"status": status}
	if errMsg != "" {
		updates["error_count"] = gorm.Expr("error_count + 1")
		updates["last_error"] = utils.Truncate(errMsg, 200)
	} else {
		updates["error_count"] = 0
		updates["last_error"] = ""
	}
	return s.update(id, updates)
}

// SetBalance records a freshly-probed balance and stamps the probe time.
func (s *CredentialStore) SetBalance(id uint, balance *float64) error {
	now := time.Now()
	return s.update(id, map[string]interface{}{
		"balance":          balance,
		"balance_probe_at": &now,
	})
}

// SetAvailability flips the availability flag.
func (s *CredentialStore) SetAvailability(id uint, available bool) error {
	return s.update(id, map[string]interface{}{"availability": available})
}

// IncrementCalls bumps call_count and stamps last_used_at.
func (s *CredentialStore) IncrementCalls(id uint) error {
	now := time.Now()
	return s.update(id, map[string]interface{}{
		"call_count":   gorm.Expr("call_count + 1"),
		"last_used_at": &now,
	})
}

func (s *CredentialStore) update(id uint, updates map[string]interface{}) error {
	result := s.db.Model(&Credential{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
