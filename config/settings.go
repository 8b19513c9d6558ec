// Package config loads application settings from the environment (and an
// optional .env file) the way the teacher's settings package does, and
// exposes a hot-updatable snapshot guarded by a mutex.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultPort                         = "3838"
	DefaultLogLevel                     = "info"
	DefaultGinMode                      = "debug"
	DefaultAdminPassword                = ""
	DefaultDBType                       = "sqlite"
	DefaultDBConnectionStringSqlite     = "chatrelay.db"
	DefaultMySQLHost                    = "127.0.0.1"
	DefaultMySQLPort                    = "3306"
	DefaultMySQLDBName                  = "chatrelay"
	DefaultMySQLUser                    = "root"
	DefaultMySQLPassword                = ""
	DefaultUpstreamTimeoutMs            = 240000
	DefaultClientSocketTimeoutMs        = 480000
	DefaultAutoQueryBalanceAfterCalls   = 0
	DefaultSessionSecretKey             = "insecure-dev-session-key-change-me"
	UpstreamBaseURL                     = "https://api.siliconflow.cn/v1"
	UpstreamChatCompletionsPath         = "/chat/completions"
	UpstreamUserInfoPath                = "/user/info"
	MaxCredentialSwitchesPerRequest     = 10
	MaxAttemptsPerCredential            = 3
	RetryBackoff                       = 30 * time.Second
	RetryBackoffPoll                   = 1 * time.Second
	SoftBlockCooldown                  = 30 * time.Minute
	ProxyPinWindow                     = 60 * time.Minute
	BlockPurgeInterval                 = 5 * time.Minute
	BalanceProbeTimeout                = 5 * time.Second
	ProxyVerifyPrimaryTimeout          = 8 * time.Second
	ProxyVerifyFallbackTimeout         = 5 * time.Second
	InsufficientBalanceThreshold       = 1.0
	ErrorCountUnavailableThreshold     = 3
)

// Settings holds the process-wide configuration snapshot.
type Settings struct {
	Port                       string
	AdminPassword              string
	AdminPasswordHash          string
	AutoQueryBalanceAfterCalls int
	UpstreamTimeout            time.Duration
	ClientSocketTimeout        time.Duration
	LogLevel                   string
	GinMode                    string
	SessionSecretKey           string
	DBType                     string
	DBConnectionStringSqlite   string
	MySQLHost                  string
	MySQLPort                  string
	MySQLDBName                string
	MySQLUser                  string
	MySQLPassword              string
}

var (
	AppSettings Settings
	configLock  = &sync.RWMutex{}
	Log         *logrus.Logger
)

// Init loads configuration from .env (if present) and the environment.
func Init(logger *logrus.Logger) {
	Log = logger
	_ = godotenv.Load()
	configLock.Lock()
	AppSettings = loadConfig()
	configLock.Unlock()
}

// GetSettings returns a copy of the current settings snapshot.
func GetSettings() Settings {
	configLock.RLock()
	defer configLock.RUnlock()
	return AppSettings
}

// UpdateSettingsRequest carries the fields that may be hot-updated by an
// admin. Pointers distinguish "not provided" from "set to zero value".
type UpdateSettingsRequest struct {
	AdminPassword              *string `json:"admin_password"`
	AutoQueryBalanceAfterCalls *int    `json:"auto_query_balance_after_calls"`
	LogLevel                   *string `json:"log_level"`
}

// UpdateSettings applies a hot update to the global settings snapshot.
func UpdateSettings(req UpdateSettingsRequest) {
	configLock.Lock()
	defer configLock.Unlock()

	if req.AdminPassword != nil {
		AppSettings.AdminPassword = *req.AdminPassword
		AppSettings.AdminPasswordHash = hashAdminPassword(*req.AdminPassword)
		if Log != nil {
			Log.Info("config: admin password updated")
		}
	}
	if req.AutoQueryBalanceAfterCalls != nil {
		AppSettings.AutoQueryBalanceAfterCalls = *req.AutoQueryBalanceAfterCalls
		if Log != nil {
			Log.Infof("config: auto_query_balance_after_calls -> %d", AppSettings.AutoQueryBalanceAfterCalls)
		}
	}
	if req.LogLevel != nil {
		if level, err := logrus.ParseLevel(*req.LogLevel); err == nil {
			AppSettings.LogLevel = *req.LogLevel
			if Log != nil {
				Log.SetLevel(level)
				Log.Infof("config: log_level -> %s", AppSettings.LogLevel)
			}
		} else if Log != nil {
			Log.Warnf("config: invalid log level %q, ignoring", *req.LogLevel)
		}
	}
}

// hashAdminPassword bcrypt-hashes a plaintext admin password once, so the
// login handler never holds or compares the plaintext on every request. An
// empty password hashes to an empty hash (login stays disabled).
func hashAdminPassword(plain string) string {
	if plain == "" {
		return ""
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		if Log != nil {
			Log.Errorf("config: failed hashing admin password: %v", err)
		}
		return ""
	}
	return string(hash)
}

func loadConfig() Settings {
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	return Settings{
		Port:                       getStringEnv("PORT", DefaultPort),
		AdminPassword:              adminPassword,
		AdminPasswordHash:          hashAdminPassword(adminPassword),
		AutoQueryBalanceAfterCalls: getIntEnv("AUTO_QUERY_BALANCE_AFTER_CALLS", DefaultAutoQueryBalanceAfterCalls),
		UpstreamTimeout:            getDurationMsEnv("UPSTREAM_TIMEOUT_MS", DefaultUpstreamTimeoutMs),
		ClientSocketTimeout:        getDurationMsEnv("CLIENT_SOCKET_TIMEOUT_MS", DefaultClientSocketTimeoutMs),
		LogLevel:                   getStringEnv("LOG_LEVEL", DefaultLogLevel),
		GinMode:                    getStringEnv("GIN_MODE", DefaultGinMode),
		SessionSecretKey:           getStringEnv("SESSION_SECRET_KEY", DefaultSessionSecretKey),
		DBType:                     getStringEnv("DB_TYPE", DefaultDBType),
		DBConnectionStringSqlite:   getStringEnv("DB_CONNECTION_STRING_SQLITE", DefaultDBConnectionStringSqlite),
		MySQLHost:                  getStringEnv("MYSQL_HOST", DefaultMySQLHost),
		MySQLPort:                  getStringEnv("MYSQL_PORT", DefaultMySQLPort),
		MySQLDBName:                getStringEnv("MYSQL_DBNAME", DefaultMySQLDBName),
		MySQLUser:                  getStringEnv("MYSQL_USER", DefaultMySQLUser),
		MySQLPassword:              os.Getenv("MYSQL_PASSWORD"),
	}
}

func getStringEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDurationMsEnv(key string, defaultMs int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defaultMs) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return time.Duration(defaultMs) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}
