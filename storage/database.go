package storage

import (
	"fmt"
	"time"

	"chatrelay/config"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	DB  *gorm.DB
	Log *logrus.Logger
)

// InitDB opens the configured database and migrates the schema.
func InitDB(logger *logrus.Logger) (*gorm.DB, error) {
	Log = logger
	var err error
	var dsn string

	settings := config.GetSettings()
	dbType := settings.DBType
	Log.Infof("storage: initializing database, type=%s", dbType)

	gormLogLevel := gormlogger.Silent
	if Log.GetLevel() >= logrus.DebugLevel {
		gormLogLevel = gormlogger.Info
	}
	newLogger := gormlogger.New(
		Log,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{Logger: newLogger}

	switch dbType {
	case "sqlite":
		dsn = settings.DBConnectionStringSqlite
		DB, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	case "mysql":
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			settings.MySQLUser,
			settings.MySQLPassword,
			settings.MySQLHost,
			settings.MySQLPort,
			settings.MySQLDBName,
		)
		DB, err = gorm.Open(mysql.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("storage: unsupported DB_TYPE %q", dbType)
	}

	if err != nil {
		Log.Errorf("storage: failed to connect to %s: %v", dbType, err)
		return nil, err
	}

	Log.Info("storage: database connection established")

	if err := migrateSchema(); err != nil {
		return nil, err
	}

	if err := ensureSingletons(DB); err != nil {
		return nil, err
	}

	return DB, nil
}

func migrateSchema() error {
	Log.Info("storage: running auto-migration")
	err := DB.AutoMigrate(
		&Credential{},
		&OutboundProxy{},
		&ProxyPin{},
		&ProxyModeFlag{},
		&BlockRecord{},
		&UsageEntry{},
	)
	if err != nil {
		Log.Errorf("storage: migration failed: %v", err)
		return err
	}
	Log.Info("storage: migration complete")
	return nil
}

// ensureSingletons creates the ProxyPin and ProxyModeFlag singleton rows on
// first boot so later upserts can always target a known primary key.
func ensureSingletons(db *gorm.DB) error {
	var pin ProxyPin
	if err := db.FirstOrCreate(&pin, ProxyPin{ID: 1}).Error; err != nil {
		return err
	}
	var flag ProxyModeFlag
	if err := db.FirstOrCreate(&flag, ProxyModeFlag{ID: 1}).Error; err != nil {
		return err
	}
	return nil
}
