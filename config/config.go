// Package config loads process configuration once at start-up.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the API process needs. It is built once in main
// and handed to constructors.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMaxIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"false"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"marketplace-api"`

	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	PhoneIndexTTL time.Duration `env:"PHONE_INDEX_TTL" envDefault:"24h"`

	AWS     AWS
	Cognito Cognito

	S3Bucket string `env:"AWS_S3_BUCKET_NAME"`
}

// AWS carries the static credentials shared by the Cognito and S3 clients.
type AWS struct {
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// Cognito holds both user pools. The general pool serves customers and
// vendors; the admin pool serves administrators.
type Cognito struct {
	UserPoolID   string `env:"AWS_COGNITO_USER_POOL_ID"`
	ClientID     string `env:"AWS_COGNITO_CLIENT_ID"`
	ClientSecret string `env:"AWS_COGNITO_CLIENT_SECRET"`

	AdminUserPoolID   string `env:"AWS_COGNITO_ADMIN_USER_POOL_ID"`
	AdminClientID     string `env:"AWS_COGNITO_ADMIN_CLIENT_ID"`
	AdminClientSecret string `env:"AWS_COGNITO_ADMIN_CLIENT_SECRET"`
}

// Load reads an optional .env file and then parses the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements the struct tags cannot express.
func (c Config) Validate() error {
	if c.Cognito.UserPoolID == "" || c.Cognito.ClientID == "" {
		return errors.New("config: general cognito pool and client are required")
	}
	if c.Cognito.AdminUserPoolID == "" || c.Cognito.AdminClientID == "" {
		return errors.New("config: admin cognito pool and client are required")
	}
	return nil
}
