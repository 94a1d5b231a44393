package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Database struct {
		// sqlite or postgres
		Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
		Path   string `env:"DB_PATH" envDefault:"data/tribebot.db"`
		URL    string `env:"DATABASE_URL" envDefault:""`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Session struct {
		// memory or redis
		Backend string        `env:"SESSION_BACKEND" envDefault:"memory"`
		TTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	}

	Registration struct {
		UserSecretKey  string  `env:"USER_SECRET_KEY,required"`
		AdminSecretKey string  `env:"ADMIN_SECRET_KEY,required"`
		SuperuserIDs   []int64 `env:"SUPERUSER_IDS" envSeparator:","`
	}

	Locale struct {
		Default   string   `env:"DEFAULT_LOCALE" envDefault:"en"`
		Supported []string `env:"SUPPORTED_LOCALES" envSeparator:"," envDefault:"en,ru"`
	}

	Import struct {
		Enabled bool   `env:"IMPORT_USERS" envDefault:"false"`
		Path    string `env:"IMPORT_FILE" envDefault:"data/users.txt"`
	}

	Tribes struct {
		// fixed or random
		Assigner  string `env:"TRIBE_ASSIGNER" envDefault:"random"`
		DefaultID int64  `env:"DEFAULT_TRIBE_ID" envDefault:"1"`
	}
}

func Load() (*Config, error) {
	// Missing .env is fine: in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
