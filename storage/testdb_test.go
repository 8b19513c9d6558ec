package storage

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening in-memory sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Credential{}, &OutboundProxy{}, &ProxyPin{}, &ProxyModeFlag{}, &BlockRecord{}, &UsageEntry{}); err != nil {
		t.Fatalf("migrating schema: %v", err)
	}
	if err := db.FirstOrCreate(&ProxyPin{}, ProxyPin{ID: 1}).Error; err != nil {
		t.Fatalf("seeding proxy pin: %v", err)
	}
	if err := db.FirstOrCreate(&ProxyModeFlag{}, ProxyModeFlag{ID: 1}).Error; err != nil {
		t.Fatalf("seeding proxy mode flag: %v", err)
	}
	return db
}
