package config

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/utils"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/crypto/bcrypt"
)

// maxAccessTokenExpiry bounds JWT_ACCESS_TOKEN_EXPIRY; access tokens never outlive one hour.
const maxAccessTokenExpiry = time.Hour

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Auth     AuthConfig     `env:",prefix=AUTH_"`
	Seed     SeedConfig     `env:",prefix=SEED_ADMIN_"`
	Security SecurityConfig `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host           string `env:"HOST,default=localhost"`
	Port           string `env:"PORT,default=5432"`
	User           string `env:"USER,default=blog_auth"`
	Password       string `env:"PASSWORD,default=blog_auth_password"`
	DBName         string `env:"DB,default=blog_auth_db"`
	SSLMode        string `env:"SSLMODE,default=disable"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START,default=true"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	Issuer             string   `env:"ISSUER,default=blog-auth-service"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=1h"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=365d"`
}

// AuthConfig holds session policy switches.
type AuthConfig struct {
	// RegisterAutoLogin issues a credential pair straight from registration.
	RegisterAutoLogin   bool     `env:"REGISTER_AUTO_LOGIN,default=false"`
	RotateRefreshTokens bool     `env:"ROTATE_REFRESH_TOKENS,default=true"`
	CleanupInterval     Duration `env:"CLEANUP_INTERVAL,default=1h"`
}

// SeedConfig describes the bootstrap admin account. Seeding is skipped when Password is empty.
type SeedConfig struct {
	Username string `env:"USERNAME,default=admin"`
	Fullname string `env:"FULLNAME,default=Administrator"`
	Email    string `env:"EMAIL,default=admin@example.com"`
	Password string `env:"PASSWORD,default="`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:4200"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// SeedEnabled reports whether an admin account should be seeded on start.
func (s SeedConfig) SeedEnabled() bool {
	return s.Password != ""
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.JWT.AccessTokenExpiry.Duration <= 0 || c.JWT.AccessTokenExpiry.Duration > maxAccessTokenExpiry {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY must be within (0, %s], got %s",
			maxAccessTokenExpiry, c.JWT.AccessTokenExpiry)
	}

	if c.JWT.RefreshTokenExpiry.Duration < c.JWT.AccessTokenExpiry.Duration {
		return fmt.Errorf("JWT_REFRESH_TOKEN_EXPIRY must not be shorter than JWT_ACCESS_TOKEN_EXPIRY")
	}

	if c.Auth.CleanupInterval.Duration <= 0 {
		return fmt.Errorf("AUTH_CLEANUP_INTERVAL must be positive")
	}

	if c.Security.BCryptCost < bcrypt.MinCost || c.Security.BCryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be within [%d, %d], got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Security.BCryptCost)
	}

	if c.Security.RateLimitRequests <= 0 || c.Security.RateLimitWindow.Duration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	if c.Seed.SeedEnabled() && !utils.ValidatePassword(c.Seed.Password) {
		return fmt.Errorf("SEED_ADMIN_PASSWORD is too weak")
	}

	return nil
}
