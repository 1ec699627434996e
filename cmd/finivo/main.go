package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/Moneymaker1996/finivo-backend/internal/api"
	"github.com/Moneymaker1996/finivo-backend/internal/gate"
	"github.com/Moneymaker1996/finivo-backend/internal/genai"
	"github.com/Moneymaker1996/finivo-backend/internal/impulse"
	"github.com/Moneymaker1996/finivo-backend/internal/lockfile"
	"github.com/Moneymaker1996/finivo-backend/internal/nudge"
	"github.com/Moneymaker1996/finivo-backend/internal/store"
	"github.com/Moneymaker1996/finivo-backend/internal/util"
)

const (
	// DefaultStateDir is the default directory for Finivo state data
	DefaultStateDir = "/var/lib/finivo"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "finivo.db"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	if store.DetectDSNType(flags.dbDSN) == "sqlite3" {
		lock, err := lockfile.Acquire(filepath.Dir(flags.dbDSN))
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping Finivo", "dsn_type", store.DetectDSNType(flags.dbDSN), "api_addr", flags.apiAddr,
		"openai_key_set", flags.openaiKey != "", "redis_addr", flags.redisAddr)
	if err := api.Run(storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("Finivo failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Finivo exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	OpenAIModel    string
	APIAddr        string
	RedisAddr      string
	ClassifierMode string
	GateOrder      string
	QuotaWindow    string
	MemoryMode     string
	Debug          bool
	AdminMode      bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir       string
	dbDSN          string
	openaiKey      string
	openaiModel    string
	apiAddr        string
	redisAddr      string
	classifierMode string
	gateOrder      string
	quotaWindow    string
	memoryMode     string
	adminMode      bool
}

// initializeLogger sets up structured logging; debug enables verbose output.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       util.StringEnv("FINIVO_STATE_DIR", DefaultStateDir),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		APIAddr:        os.Getenv("API_ADDR"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		ClassifierMode: os.Getenv("FINIVO_CLASSIFIER_MODE"),
		GateOrder:      os.Getenv("FINIVO_GATE_ORDER"),
		QuotaWindow:    os.Getenv("FINIVO_QUOTA_WINDOW"),
		MemoryMode:     os.Getenv("FINIVO_MEMORY_MODE"),
		Debug:          util.ParseBoolEnv("DEBUG", false),
		AdminMode:      util.ParseBoolEnv("ADMIN_MODE", false),
	}
	return config
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	var flags Flags
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for Finivo data (overrides $FINIVO_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "database DSN; empty means SQLite in the state directory (overrides $DATABASE_URL)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.openaiModel, "openai-model", config.OpenAIModel, "OpenAI chat model for tone rewriting (overrides $OPENAI_MODEL)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.redisAddr, "redis-addr", config.RedisAddr, "Redis address for the plan cache (overrides $REDIS_ADDR)")
	fs.StringVar(&flags.classifierMode, "classifier-mode", config.ClassifierMode, "impulse scoring mode: strict or soft (overrides $FINIVO_CLASSIFIER_MODE)")
	fs.StringVar(&flags.gateOrder, "gate-order", config.GateOrder, "budget_first or quota_first (overrides $FINIVO_GATE_ORDER)")
	fs.StringVar(&flags.quotaWindow, "quota-window", config.QuotaWindow, "monthly or daily (overrides $FINIVO_QUOTA_WINDOW)")
	fs.StringVar(&flags.memoryMode, "memory-mode", config.MemoryMode, "strict_legacy or memory_aware (overrides $FINIVO_MEMORY_MODE)")
	fs.BoolVar(&flags.adminMode, "admin-mode", config.AdminMode || config.Debug, "expose E.A.R.N. inspection (overrides $ADMIN_MODE and $DEBUG)")

	if err := fs.Parse(args); err != nil {
		slog.Warn("flag parsing failed, using defaults", "error", err)
	}

	if flags.dbDSN == "" {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", flags.dbDSN)
	}
	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if flags.dbDSN == "" {
		return nil
	}
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		return []store.Option{store.WithPostgresDSN(flags.dbDSN)}
	}
	return []store.Option{store.WithSQLiteDSN(flags.dbDSN)}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openaiKey))
	}
	if flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.openaiModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithClassifierMode(impulse.ParseMode(flags.classifierMode)),
		api.WithGateOrder(gate.ParseOrder(flags.gateOrder)),
		api.WithQuotaWindow(gate.ParseWindow(flags.quotaWindow)),
		api.WithMemoryMode(nudge.ParseMemoryMode(flags.memoryMode)),
		api.WithAdminMode(flags.adminMode),
	}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if flags.redisAddr != "" {
		apiOpts = append(apiOpts, api.WithRedisAddr(flags.redisAddr))
	}
	return apiOpts
}
