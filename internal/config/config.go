package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

// Config holds process level settings read from the environment.
type Config struct {
	Addr           string
	DatabaseURL    string
	LogLevel       string
	RulesFile      string
	AllowedOrigins []string
	Rules          Rules
}

// Rules tunes the simulation and is read from rules.yaml.
type Rules struct {
	BaseTickMs          int                `yaml:"base_tick_ms"`
	PlainGrowthTicks    int                `yaml:"plain_growth_ticks"`
	ArchiveGraceSeconds int                `yaml:"archive_grace_seconds"`
	MinMapSize          int                `yaml:"min_map_size"`
	MaxMapSize          int                `yaml:"max_map_size"`
	MaxPendingMoves     int                `yaml:"max_pending_moves"`
	MaxMessageLength    int                `yaml:"max_message_length"`
	ChatRatePerSec      float64            `yaml:"chat_rate_per_sec"`
	ChatBurst           int                `yaml:"chat_burst"`
	PasswordCost        int                `yaml:"password_cost"`
	DefaultSettings     types.RoomSettings `yaml:"default_settings"`
}

func DefaultRules() Rules {
	return Rules{
		BaseTickMs:          500,
		PlainGrowthTicks:    25,
		ArchiveGraceSeconds: 30,
		MinMapSize:          10,
		MaxMapSize:          40,
		MaxPendingMoves:     8,
		MaxMessageLength:    200,
		ChatRatePerSec:      2,
		ChatBurst:           5,
		PasswordCost:        bcrypt.DefaultCost,
		DefaultSettings:     types.DefaultSettings(),
	}
}

// TickInterval is the wall time between ticks at the given game speed.
func (r Rules) TickInterval(speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(r.BaseTickMs) * float64(time.Millisecond) / speed)
}

func (r Rules) ArchiveGrace() time.Duration {
	return time.Duration(r.ArchiveGraceSeconds) * time.Second
}

func (r Rules) Validate() error {
	switch {
	case r.BaseTickMs <= 0:
		return fmt.Errorf("base_tick_ms must be positive, got %d", r.BaseTickMs)
	case r.PlainGrowthTicks <= 0:
		return fmt.Errorf("plain_growth_ticks must be positive, got %d", r.PlainGrowthTicks)
	case r.MinMapSize < 2 || r.MaxMapSize < r.MinMapSize:
		return fmt.Errorf("map size bounds [%d, %d] are invalid", r.MinMapSize, r.MaxMapSize)
	case r.MaxPendingMoves <= 0:
		return fmt.Errorf("max_pending_moves must be positive, got %d", r.MaxPendingMoves)
	case r.PasswordCost < bcrypt.MinCost || r.PasswordCost > bcrypt.MaxCost:
		return fmt.Errorf("password_cost must be in [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, r.PasswordCost)
	}
	return nil
}

// LoadRules overlays the yaml file at path on DefaultRules. A missing file
// yields the defaults.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("%s: %w", path, err)
	}
	r.DefaultSettings.RoomName = types.NormalizeRoomName(r.DefaultSettings.RoomName)
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Load reads .env (if present), the environment and the rules file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        getenv("ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		RulesFile:   getenv("RULES_FILE", "rules.yaml"),
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = rules
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
