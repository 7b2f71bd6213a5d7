// Command IntakeBridge runs the medical intake interview API server.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/api"
	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/lockfile"
	"github.com/BTreeMap/IntakeBridge/internal/session"
	"github.com/BTreeMap/IntakeBridge/internal/store"
	"github.com/BTreeMap/IntakeBridge/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IntakeBridge state data
	DefaultStateDir = "/var/lib/intakebridge"
	// DefaultSessionSubdir holds session documents under the state directory
	DefaultSessionSubdir = "sessions"
	// DefaultLockSubdir holds per-session lock files under the state directory
	DefaultLockSubdir = "locks"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intakebridge.db"
	// DefaultIntakeModel is the generation model for the intake track
	DefaultIntakeModel = "gyn-assistant:latest"
	// DefaultPregnancyModel is the generation model for the pregnancy track
	DefaultPregnancyModel = "pregnancy-assistant:latest"
	// Backend call bounds per track; the specialized flow gets more time.
	DefaultIntakeTimeout    = 30 * time.Second
	DefaultPregnancyTimeout = 45 * time.Second
)

// Config holds environment configuration
type Config struct {
	StateDir       string
	DbDriver       string
	DatabaseURL    string
	OpenAIKey      string
	BackendBaseURL string
	IntakeModel    string
	PregnancyModel string
	APIAddr        string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	stateDir := flag.String("state-dir", config.StateDir, "state directory for session and lock files")
	dbDriver := flag.String("db-driver", config.DbDriver, "session store driver: file, sqlite or postgres")
	dbDSN := flag.String("db-dsn", config.DatabaseURL, "database DSN for sqlite/postgres drivers")
	apiAddr := flag.String("api-addr", config.APIAddr, "API listen address")
	intakeModel := flag.String("intake-model", config.IntakeModel, "generation model for the intake track")
	pregnancyModel := flag.String("pregnancy-model", config.PregnancyModel, "generation model for the pregnancy track")
	flag.Parse()

	st, locker, err := buildStore(*stateDir, *dbDriver, *dbDSN)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	intakeBackend, err := genai.NewClient(
		genai.WithAPIKey(config.OpenAIKey),
		genai.WithBaseURL(config.BackendBaseURL),
		genai.WithModel(*intakeModel),
		genai.WithTimeout(DefaultIntakeTimeout),
		genai.WithSampling(0.4, 0.9),
	)
	if err != nil {
		slog.Error("Failed to initialize intake backend client", "error", err)
		os.Exit(1)
	}
	pregnancyBackend, err := genai.NewClient(
		genai.WithAPIKey(config.OpenAIKey),
		genai.WithBaseURL(config.BackendBaseURL),
		genai.WithModel(*pregnancyModel),
		genai.WithTimeout(DefaultPregnancyTimeout),
		genai.WithSampling(0.6, 0.85),
	)
	if err != nil {
		slog.Error("Failed to initialize pregnancy backend client", "error", err)
		os.Exit(1)
	}

	cfg := session.DefaultConfig()
	cfg.IntakeModel = *intakeModel
	cfg.PregnancyModel = *pregnancyModel

	svc := api.NewService(st, intakeBackend, pregnancyBackend, cfg, locker)

	slog.Info("Bootstrapping IntakeBridge", "state_dir", *stateDir, "db_driver", *dbDriver, "api_addr", *apiAddr)
	if err := api.Run(*apiAddr, svc); err != nil {
		slog.Error("IntakeBridge failed to run", "error", err)
		os.Exit(1)
	}
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("INTAKEBRIDGE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	return Config{
		StateDir:       util.EnvOrDefault("INTAKEBRIDGE_STATE_DIR", DefaultStateDir),
		DbDriver:       util.EnvOrDefault("INTAKEBRIDGE_DB_DRIVER", "file"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		BackendBaseURL: util.EnvOrDefault("BACKEND_BASE_URL", "http://localhost:11434/v1"),
		IntakeModel:    util.EnvOrDefault("INTAKE_MODEL", DefaultIntakeModel),
		PregnancyModel: util.EnvOrDefault("PREGNANCY_MODEL", DefaultPregnancyModel),
		APIAddr:        util.EnvOrDefault("API_ADDR", api.DefaultAddr),
	}
}

// buildStore constructs the configured store backend. The file driver also
// gets a flock-based locker so multiple processes can share a session
// directory; SQL drivers use in-process locking and document the
// single-writer-per-id precondition across processes.
func buildStore(stateDir, driver, dsn string) (store.Store, lockfile.Locker, error) {
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = filepath.Join(stateDir, DefaultDBFileName)
		}
		st, err := store.NewSQLiteStore(store.WithDSN(dsn))
		return st, nil, err
	case "postgres":
		st, err := store.NewPostgresStore(store.WithDSN(dsn))
		return st, nil, err
	default:
		st, err := store.NewFileStore(store.WithDir(filepath.Join(stateDir, DefaultSessionSubdir)))
		if err != nil {
			return nil, nil, err
		}
		locker, err := lockfile.NewDirLocker(filepath.Join(stateDir, DefaultLockSubdir))
		if err != nil {
			return nil, nil, err
		}
		return st, locker, nil
	}
}
