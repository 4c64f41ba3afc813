package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string            `yaml:"discord_token"`
	GuildID       string            `yaml:"guild_id"`
	LogLevel      string            `yaml:"log_level"`
	Database      DatabaseConfig    `yaml:"database"`
	Health        HealthConfig      `yaml:"health"`
	TimeoutWars   TimeoutWarsConfig `yaml:"timeout_wars"`
	Meme          MemeConfig        `yaml:"meme"`
	Verify        VerifyConfig      `yaml:"verify"`
	Notifications NotifyConfig      `yaml:"notifications"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TimeoutWarsConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Emoji            string `yaml:"emoji"`
	ReactionCount    int    `yaml:"reaction_count"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	ImmunitySeconds  int    `yaml:"immunity_seconds"`
	ChanceAllMute    int    `yaml:"chance_all_mute"`
	ChanceRandomMute int    `yaml:"chance_random_mute"`
	LogChannel       string `yaml:"log_channel"`
	LogFile          string `yaml:"log_file"`
	MaxParallel      int    `yaml:"max_parallel"`
}

func (c TimeoutWarsConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c TimeoutWarsConfig) ImmunityDuration() time.Duration {
	return time.Duration(c.ImmunitySeconds) * time.Second
}

type MemeConfig struct {
	Enabled         bool     `yaml:"enabled"`
	UhohString      string   `yaml:"uhoh_string"`
	GrillbotIDs     []string `yaml:"grillbot_ids"`
	PRMessage       string   `yaml:"pr_message"`
	Questions       []string `yaml:"questions"`
	CooldownUses    int      `yaml:"cooldown_uses"`
	CooldownSeconds int      `yaml:"cooldown_seconds"`
}

type VerifyConfig struct {
	RequestChannel  string       `yaml:"request_channel"`
	AcceptedMessage string       `yaml:"accepted_message"`
	DeclinedMessage string       `yaml:"declined_message"`
	Rules           []VerifyRule `yaml:"rules"`
}

type VerifyRule struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

type NotifyConfig struct {
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	TimeoutWars int `yaml:"timeout_wars"`
	Verify      int `yaml:"verify"`
	Info        int `yaml:"info"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Database: DatabaseConfig{Driver: "sqlite", DSN: "/data/crowdmod.db"},
		Health:   HealthConfig{Enabled: false, Addr: ":8080"},
		TimeoutWars: TimeoutWarsConfig{
			Enabled:          true,
			Emoji:            "🔇",
			ReactionCount:    5,
			TimeoutSeconds:   300,
			ImmunitySeconds:  1800,
			ChanceAllMute:    10,
			ChanceRandomMute: 40,
			LogFile:          "timeout_wars.csv",
			MaxParallel:      4,
		},
		Meme: MemeConfig{
			Enabled:         true,
			UhohString:      "uh oh",
			PRMessage:       "Pull requests are welcome. Go and make one.",
			Questions:       []string{"?", "??", "???", "What?", "Excuse me?"},
			CooldownUses:    1,
			CooldownSeconds: 10,
		},
		Verify: VerifyConfig{
			AcceptedMessage: "Your access request was approved.",
			DeclinedMessage: "Your access request was declined.",
		},
		Notifications: NotifyConfig{
			EmbedColors: EmbedColors{
				TimeoutWars: 0xF1C40F,
				Verify:      0x2ECC71,
				Info:        0x3498DB,
			},
		},
	}
}

func Load() (Config, error) {
	return LoadFile(configPath())
}

// LoadStorage is Load for commands that only touch the database.
func LoadStorage() (Config, error) {
	return LoadStorageFile(configPath())
}

// LoadFile reads path when it exists, then applies env overrides. A missing
// file is not an error.
func LoadFile(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadStorageFile(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configPath() string {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return path
}

func read(path string) (Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	tw := c.TimeoutWars
	if tw.ReactionCount < 1 {
		return errors.New("timeout_wars.reaction_count must be at least 1")
	}
	if tw.ChanceAllMute < 0 || tw.ChanceRandomMute < 0 {
		return errors.New("timeout_wars chances must not be negative")
	}
	if tw.ChanceAllMute+tw.ChanceRandomMute > 100 {
		return fmt.Errorf("timeout_wars chances sum to %d, above 100", tw.ChanceAllMute+tw.ChanceRandomMute)
	}
	if tw.TimeoutSeconds <= 0 {
		return errors.New("timeout_wars.timeout_seconds must be positive")
	}
	return c.Verify.validateRules()
}

// ValidateStorage checks only the database section.
func (c Config) ValidateStorage() error {
	if c.Database.Driver == "" {
		return errors.New("database driver must be sqlite or pgx")
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	return nil
}

// Rule ids end up inside colon separated button ids.
func (v VerifyConfig) validateRules() error {
	seen := make(map[string]struct{}, len(v.Rules))
	for _, rule := range v.Rules {
		if rule.ID == "" || strings.Contains(rule.ID, ":") {
			return fmt.Errorf("verify rule id %q must be non-empty and must not contain ':'", rule.ID)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("verify rule id %q is duplicated", rule.ID)
		}
		seen[rule.ID] = struct{}{}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Database.Driver = envString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envString("DATABASE_DSN", cfg.Database.DSN)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.TimeoutWars.Enabled = envBool("TIMEOUT_WARS_ENABLED", cfg.TimeoutWars.Enabled)
	cfg.TimeoutWars.ReactionCount = envInt("TIMEOUT_WARS_REACTION_COUNT", cfg.TimeoutWars.ReactionCount)
	cfg.TimeoutWars.TimeoutSeconds = envInt("TIMEOUT_WARS_TIMEOUT_SECONDS", cfg.TimeoutWars.TimeoutSeconds)
	cfg.TimeoutWars.ImmunitySeconds = envInt("TIMEOUT_WARS_IMMUNITY_SECONDS", cfg.TimeoutWars.ImmunitySeconds)
	cfg.TimeoutWars.ChanceAllMute = envInt("TIMEOUT_WARS_CHANCE_ALL_MUTE", cfg.TimeoutWars.ChanceAllMute)
	cfg.TimeoutWars.ChanceRandomMute = envInt("TIMEOUT_WARS_CHANCE_RANDOM_MUTE", cfg.TimeoutWars.ChanceRandomMute)
	cfg.TimeoutWars.LogChannel = envString("TIMEOUT_WARS_LOG_CHANNEL", cfg.TimeoutWars.LogChannel)
	cfg.TimeoutWars.LogFile = envString("TIMEOUT_WARS_LOG_FILE", cfg.TimeoutWars.LogFile)
	cfg.Meme.Enabled = envBool("MEME_ENABLED", cfg.Meme.Enabled)
	cfg.Meme.UhohString = envString("MEME_UHOH_STRING", cfg.Meme.UhohString)
	cfg.Verify.RequestChannel = envString("VERIFY_REQUEST_CHANNEL", cfg.Verify.RequestChannel)
	cfg.Notifications.EmbedColors.TimeoutWars = envInt("EMBED_COLOR_TIMEOUT_WARS", cfg.Notifications.EmbedColors.TimeoutWars)
	cfg.Notifications.EmbedColors.Verify = envInt("EMBED_COLOR_VERIFY", cfg.Notifications.EmbedColors.Verify)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "pgx", "postgres", "postgresql":
		return "pgx"
	default:
		return ""
	}
}
