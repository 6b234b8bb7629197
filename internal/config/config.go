package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string   `mapstructure:"JWT_SECRET"`
	TokenTTLHours   int      `mapstructure:"TOKEN_TTL_HOURS"`
	DevPatientID    string   `mapstructure:"DEV_PATIENT_ID"`
	ParserProvider  string   `mapstructure:"PARSER_PROVIDER"`
	AnthropicAPIKey string   `mapstructure:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string   `mapstructure:"OPENAI_API_KEY"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`

	// Meal clock times used as anchors for dose scheduling, "HH:MM".
	BreakfastTime string `mapstructure:"BREAKFAST_TIME"`
	LunchTime     string `mapstructure:"LUNCH_TIME"`
	DinnerTime    string `mapstructure:"DINNER_TIME"`
	BedtimeTime   string `mapstructure:"BEDTIME_TIME"`

	MissedSweepSpec string `mapstructure:"MISSED_SWEEP_SPEC"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL_HOURS", 72)
	v.SetDefault("PARSER_PROVIDER", "anthropic")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BREAKFAST_TIME", "08:00")
	v.SetDefault("LUNCH_TIME", "13:00")
	v.SetDefault("DINNER_TIME", "19:00")
	v.SetDefault("BEDTIME_TIME", "22:00")
	v.SetDefault("MISSED_SWEEP_SPEC", "*/30 * * * *")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("TOKEN_TTL_HOURS")
	v.BindEnv("DEV_PATIENT_ID")
	v.BindEnv("PARSER_PROVIDER")
	v.BindEnv("ANTHROPIC_API_KEY")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("BREAKFAST_TIME")
	v.BindEnv("LUNCH_TIME")
	v.BindEnv("DINNER_TIME")
	v.BindEnv("BEDTIME_TIME")
	v.BindEnv("MISSED_SWEEP_SPEC")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a JWT
// secret must be set, the selected parser provider must have an API key, and
// the meal anchor times must parse.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	switch c.ParserProvider {
	case "anthropic":
		if c.IsProduction() && c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when PARSER_PROVIDER is \"anthropic\"")
		}
	case "openai":
		if c.IsProduction() && c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when PARSER_PROVIDER is \"openai\"")
		}
	case "none":
	default:
		return fmt.Errorf("PARSER_PROVIDER must be \"anthropic\", \"openai\", or \"none\", got %q", c.ParserProvider)
	}

	for _, mt := range []struct{ name, val string }{
		{"BREAKFAST_TIME", c.BreakfastTime},
		{"LUNCH_TIME", c.LunchTime},
		{"DINNER_TIME", c.DinnerTime},
		{"BEDTIME_TIME", c.BedtimeTime},
	} {
		if _, err := time.Parse("15:04", mt.val); err != nil {
			return fmt.Errorf("%s must be HH:MM, got %q", mt.name, mt.val)
		}
	}

	return nil
}
