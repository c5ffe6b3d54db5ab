package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBase     string
	WSBase      string
	SessionFile string
	DatabaseURL string
	AuthWait    time.Duration
	HTTPTimeout time.Duration
	LogLevel    string
	LogDev      bool

	// Lobby defaults for `zgt create`, optionally overridden by the YAML file.
	Lobby types.CreateLobbyParams
}

// fileConfig is the optional YAML file at ZGT_CONFIG.
type fileConfig struct {
	APIBase string     `yaml:"api_base"`
	WSBase  string     `yaml:"ws_base"`
	Lobby   *fileLobby `yaml:"lobby"`
}

type fileLobby struct {
	Name          string         `yaml:"name"`
	GameMode      types.GameMode `yaml:"game_mode"`
	IsPublic      *bool          `yaml:"is_public"`
	MaxPlayers    int            `yaml:"max_players"`
	RoundDuration int            `yaml:"round_duration"`
	CardsPerTurn  int            `yaml:"cards_per_turn"`
}

// Load reads .env (if present), the environment and the optional YAML file.
// Environment variables win over the file.
func Load(log *zap.Logger) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", zap.Error(err))
	}

	cfg := &Config{
		APIBase:     "http://localhost:8000/api/v1",
		WSBase:      "ws://localhost:8000",
		SessionFile: defaultSessionFile(),
		AuthWait:    3 * time.Second,
		HTTPTimeout: 30 * time.Second,
		LogLevel:    "info",
		Lobby:       types.DefaultCreateLobbyParams(),
	}

	if path := os.Getenv("ZGT_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.APIBase = getEnv("ZGT_API_BASE", cfg.APIBase)
	cfg.WSBase = getEnv("ZGT_WS_BASE", cfg.WSBase)
	cfg.SessionFile = getEnv("ZGT_SESSION_FILE", cfg.SessionFile)
	cfg.DatabaseURL = getEnv("ZGT_DATABASE_URL", "")
	cfg.AuthWait = getEnvAsDuration("ZGT_AUTH_WAIT", cfg.AuthWait)
	cfg.HTTPTimeout = getEnvAsDuration("ZGT_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.LogLevel = getEnv("ZGT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogDev = getEnvAsBool("ZGT_LOG_DEV", false)

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if fc.APIBase != "" {
		c.APIBase = fc.APIBase
	}
	if fc.WSBase != "" {
		c.WSBase = fc.WSBase
	}
	if fc.Lobby != nil {
		merged := c.Lobby
		if fc.Lobby.Name != "" {
			merged.Name = fc.Lobby.Name
		}
		if fc.Lobby.GameMode != "" {
			merged.GameMode = fc.Lobby.GameMode
		}
		if fc.Lobby.MaxPlayers != 0 {
			merged.MaxPlayers = fc.Lobby.MaxPlayers
		}
		if fc.Lobby.RoundDuration != 0 {
			merged.RoundDuration = fc.Lobby.RoundDuration
		}
		if fc.Lobby.CardsPerTurn != 0 {
			merged.CardsPerTurn = fc.Lobby.CardsPerTurn
		}
		if fc.Lobby.IsPublic != nil {
			merged.IsPublic = *fc.Lobby.IsPublic
		}
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("config file lobby defaults: %w", err)
		}
		c.Lobby = merged
	}
	return nil
}

// NewLogger builds a JSON production logger, or a console logger when dev is set.
func NewLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	// stdout is for command output.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zgt-session.json"
	}
	return filepath.Join(home, ".zgt", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
