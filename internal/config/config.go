package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	DatabaseURL  string `env:"DATABASE_URL,required"`
	RedisURL     string `env:"REDIS_URL,required"`
	GatewayToken string `env:"GATEWAY_TOKEN,required"`
	CoreAPIURL   string `env:"CORE_API_URL,required"`
	CoreAPIToken string `env:"CORE_API_TOKEN"`

	SessionDurationMins int     `env:"SESSION_DURATION_MINS" envDefault:"30"`
	FuzzRadiusMeters    float64 `env:"FUZZ_RADIUS_METERS" envDefault:"500"`
	GracePeriodMins     int     `env:"GRACE_PERIOD_MINS" envDefault:"30"`
	SweepIntervalSecs   int     `env:"SWEEP_INTERVAL_SECS" envDefault:"60"`
	RetentionHours      int     `env:"RETENTION_HOURS" envDefault:"24"`
	CandidateLimit      int     `env:"CANDIDATE_LIMIT" envDefault:"20"`
	RateLimitPerMin     int     `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel            string  `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationMins) * time.Minute
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMins) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.SessionDurationMins <= 0 {
		return fmt.Errorf("SESSION_DURATION_MINS must be positive")
	}
	if c.FuzzRadiusMeters <= 0 {
		return fmt.Errorf("FUZZ_RADIUS_METERS must be positive")
	}
	if c.GracePeriodMins < 0 {
		return fmt.Errorf("GRACE_PERIOD_MINS must not be negative")
	}
	if c.CandidateLimit <= 0 {
		return fmt.Errorf("CANDIDATE_LIMIT must be positive")
	}
	if len(c.GatewayToken) < 32 {
		return fmt.Errorf("GATEWAY_TOKEN must be at least 32 characters (generate with: openssl rand -base64 32)")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
