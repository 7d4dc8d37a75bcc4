package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/example/vocabreview/pkg/models"
)

// Config is the process configuration, read from the environment and an optional .env file.
type Config struct {
	App      AppConfig
	Telegram TelegramConfig
	Database DatabaseConfig
	Metrics  MetricsConfig
	AI       AIConfig
	Pinyin   PinyinConfig
	Review   ReviewConfig
	Reminder ReminderConfig
}

type AppConfig struct {
	Mode    string // "debug" or "release"
	LogFile string
}

type TelegramConfig struct {
	Token string
}

type DatabaseConfig struct {
	Type string // "sqlite" or "postgres"
	DSN  string
}

type MetricsConfig struct {
	Addr string // empty disables the metrics server
}

type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type PinyinConfig struct {
	URL string // empty disables speaking mode
	RPS float64
}

type ReviewConfig struct {
	DefaultSessionSize      models.SessionSize
	ReviewedSubsetThreshold int
	TopPoolFactor           int
	DistractorCount         int
}

type ReminderConfig struct {
	Urgency   float64
	StartHour int
	EndHour   int
}

var defaults = map[string]any{
	"APP_MODE":                  "release",
	"LOG_FILE":                  "logs/vocabreview.log",
	"DB_TYPE":                   "sqlite",
	"DB_DSN":                    "data/vocabreview.db",
	"METRICS_ADDR":              ":9090",
	"OPENAI_MODEL":              "gpt-4o-mini",
	"PINYIN_API_RPS":            2,
	"DEFAULT_SESSION_SIZE":      "20",
	"REVIEWED_SUBSET_THRESHOLD": 5,
	"TOP_POOL_FACTOR":           2,
	"DISTRACTOR_COUNT":          3,
	"REMINDER_URGENCY":          60,
	"NOTIFICATION_START_HOUR":   8,
	"NOTIFICATION_END_HOUR":     22,
}

// Load reads .env files (missing files are ignored) and the environment.
// With no arguments it looks for ".env" in the working directory.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "failed to load %s", f)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	size, err := models.ParseSessionSize(v.GetString("DEFAULT_SESSION_SIZE"))
	if err != nil {
		return nil, errors.Wrap(err, "DEFAULT_SESSION_SIZE")
	}

	cfg := &Config{
		App: AppConfig{
			Mode:    v.GetString("APP_MODE"),
			LogFile: v.GetString("LOG_FILE"),
		},
		Telegram: TelegramConfig{Token: v.GetString("TELEGRAM_BOT_TOKEN")},
		Database: DatabaseConfig{
			Type: v.GetString("DB_TYPE"),
			DSN:  v.GetString("DB_DSN"),
		},
		Metrics: MetricsConfig{Addr: v.GetString("METRICS_ADDR")},
		AI: AIConfig{
			APIKey:  v.GetString("OPENAI_API_KEY"),
			BaseURL: v.GetString("OPENAI_BASE_URL"),
			Model:   v.GetString("OPENAI_MODEL"),
		},
		Pinyin: PinyinConfig{
			URL: v.GetString("PINYIN_API_URL"),
			RPS: v.GetFloat64("PINYIN_API_RPS"),
		},
		Review: ReviewConfig{
			DefaultSessionSize:      size,
			ReviewedSubsetThreshold: v.GetInt("REVIEWED_SUBSET_THRESHOLD"),
			TopPoolFactor:           v.GetInt("TOP_POOL_FACTOR"),
			DistractorCount:         v.GetInt("DISTRACTOR_COUNT"),
		},
		Reminder: ReminderConfig{
			Urgency:   v.GetFloat64("REMINDER_URGENCY"),
			StartHour: v.GetInt("NOTIFICATION_START_HOUR"),
			EndHour:   v.GetInt("NOTIFICATION_END_HOUR"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Review.ReviewedSubsetThreshold < 0 {
		return errors.New("REVIEWED_SUBSET_THRESHOLD must not be negative")
	}
	if c.Review.TopPoolFactor < 1 {
		return errors.New("TOP_POOL_FACTOR must be at least 1")
	}
	if c.Review.DistractorCount < 0 {
		return errors.New("DISTRACTOR_COUNT must not be negative")
	}
	for name, h := range map[string]int{
		"NOTIFICATION_START_HOUR": c.Reminder.StartHour,
		"NOTIFICATION_END_HOUR":   c.Reminder.EndHour,
	} {
		if h < 0 || h > 23 {
			return errors.Errorf("%s must be between 0 and 23, got %d", name, h)
		}
	}
	return nil
}

// Debug reports whether the app runs in debug mode.
func (c *Config) Debug() bool {
	return c.App.Mode == "debug"
}
