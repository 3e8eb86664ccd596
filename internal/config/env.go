package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Settings holds process-level settings read from the environment.
type Settings struct {
	Env      string // development|production
	LogLevel string // debug|info|warn|error

	Lang string // SH_LANG

	DataDir        string
	DBPath         string // live snippet database
	ScratchDBPath  string // database built by parse-live before install
	StatsDBPath    string
	ReplicaDSN     string // MySQL DSN of the upstream replica
	HTTPAddr       string
	Workers        int
	PoolTimeout    time.Duration
	FixedInterval  time.Duration
	ShutdownPeriod time.Duration
}

// LoadSettings loads a .env file when present, then reads the environment,
// applies defaults and validates the result.
func LoadSettings() (Settings, error) {
	_ = godotenv.Load()

	dataDir := getenv("SH_DATA_DIR", filepath.Join(xdg.DataHome, "snippethunt"))
	lang := strings.ToLower(getenv("SH_LANG", "en"))

	s := Settings{
		Env:            strings.ToLower(getenv("SH_ENV", "production")),
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		Lang:           lang,
		DataDir:        dataDir,
		DBPath:         getenv("SH_DB_PATH", filepath.Join(dataDir, lang+".db")),
		ScratchDBPath:  getenv("SH_SCRATCH_DB_PATH", filepath.Join(dataDir, lang+"_scratch.db")),
		StatsDBPath:    getenv("SH_STATS_DB_PATH", filepath.Join(dataDir, "stats.db")),
		ReplicaDSN:     getenv("SH_REPLICA_DSN", ""),
		HTTPAddr:       getenv("SH_HTTP_ADDR", ":8080"),
		Workers:        getint("SH_WORKERS", runtime.NumCPU()*8),
		PoolTimeout:    getdur("SH_POOL_TIMEOUT", 0),
		FixedInterval:  getdur("SH_FIXED_INTERVAL", 5*time.Minute),
		ShutdownPeriod: getdur("SH_SHUTDOWN_PERIOD", 10*time.Second),
	}

	if s.LogLevel == "warning" {
		s.LogLevel = "warn"
	}

	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return s, errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch s.Env {
	case "development", "production":
	default:
		return s, errors.New("SH_ENV must be development or production")
	}
	if strings.TrimSpace(s.DBPath) == "" || strings.TrimSpace(s.StatsDBPath) == "" {
		return s, errors.New("database paths must not be empty")
	}
	if s.Workers < 1 {
		return s, errors.New("SH_WORKERS must be >= 1")
	}
	if s.PoolTimeout < 0 {
		return s, errors.New("SH_POOL_TIMEOUT must be >= 0")
	}
	if s.FixedInterval <= 0 || s.ShutdownPeriod <= 0 {
		return s, errors.New("intervals must be positive durations")
	}
	return s, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
