package config

import (
	"os"
	"strconv"
	"time"
)

type LedgerConfig struct {
	LockTimeout            time.Duration
	AutoRegisterOnRecharge bool
	HistoryLimit           int
	EventsQueue            string
	EventsSubject          string
	PublishTimeout         time.Duration
}

func LoadLedgerConfig() *LedgerConfig {
	cfg := &LedgerConfig{
		LockTimeout:            getEnvAsDuration("LEDGER_LOCK_TIMEOUT", 3*time.Second),
		AutoRegisterOnRecharge: getEnvAsBool("LEDGER_AUTO_REGISTER_ON_RECHARGE", false),
		HistoryLimit:           getEnvAsInt("LEDGER_HISTORY_LIMIT", 200),
		EventsQueue:            getEnv("LEDGER_EVENTS_QUEUE", "ledger_events"),
		EventsSubject:          getEnv("LEDGER_EVENTS_SUBJECT", "ledger.entries.created"),
		PublishTimeout:         getEnvAsDuration("LEDGER_PUBLISH_TIMEOUT", 2*time.Second),
	}
	// lock waits must stay bounded
	if cfg.LockTimeout < time.Millisecond {
		cfg.LockTimeout = 3 * time.Second
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
