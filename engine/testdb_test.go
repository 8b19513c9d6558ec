package engine

import (
	"testing"

	"chatrelay/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening in-memory sqlite: %v", err)
	}
	if err := db.AutoMigrate(&storage.Credential{}, &storage.OutboundProxy{}, &storage.ProxyPin{}, &storage.ProxyModeFlag{}, &storage.BlockRecord{}, &storage.UsageEntry{}); err != nil {
		t.Fatalf("migrating schema: %v", err)
	}
	return db
}
