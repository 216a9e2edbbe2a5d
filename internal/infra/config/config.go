package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	AlgHS256 = "HS256"
	AlgRS256 = "RS256"

	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"
)

type Config struct {
	StorageBackend string
	DatabaseURL    string

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	JWTAlgorithm      string
	JWTSecret         string
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	AccessTokenTTL    time.Duration
	Issuer            string
	Audience          string

	PasswordScheme string
	BcryptCost     int

	HTTPAddress      string
	GRPCAddress      string
	HTTPSCertFile    string
	HTTPSKeyFile     string
	AllowedOrigins   []string
	AllowCredentials bool

	LogLevel string
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.HTTPSCertFile != "" && c.HTTPSKeyFile != ""
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")

	v.SetDefault("STORAGE_BACKEND", BackendPostgres)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ALGORITHM", AlgHS256)
	v.SetDefault("ACCESS_TOKEN_TTL", "30m")
	v.SetDefault("PASSWORD_SCHEME", SchemeBcrypt)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("GRPC_ADDRESS", ":50051")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "debug")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	ttl, err := time.ParseDuration(v.GetString("ACCESS_TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL: %w", err)
	}

	cfg := &Config{
		StorageBackend:    strings.ToLower(v.GetString("STORAGE_BACKEND")),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		RedisAddress:      v.GetString("REDIS_ADDRESS"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		JWTAlgorithm:      strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTPrivateKeyPath: v.GetString("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:  v.GetString("JWT_PUBLIC_KEY_PATH"),
		AccessTokenTTL:    ttl,
		Issuer:            v.GetString("JWT_ISSUER"),
		Audience:          v.GetString("JWT_AUDIENCE"),
		PasswordScheme:    strings.ToLower(v.GetString("PASSWORD_SCHEME")),
		BcryptCost:        v.GetInt("BCRYPT_COST"),
		HTTPAddress:       v.GetString("HTTP_ADDRESS"),
		GRPCAddress:       v.GetString("GRPC_ADDRESS"),
		HTTPSCertFile:     v.GetString("HTTPS_CERT_FILE"),
		HTTPSKeyFile:      v.GetString("HTTPS_KEY_FILE"),
		AllowedOrigins:    parseList(v.GetString("ALLOWED_ORIGINS")),
		AllowCredentials:  v.GetBool("ALLOW_CREDENTIALS"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required for the %s backend", BackendRedis)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND: unknown backend %q", c.StorageBackend)
	}

	switch c.JWTAlgorithm {
	case AlgHS256:
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes for %s", AlgHS256)
		}
	case AlgRS256:
		if c.JWTPrivateKeyPath == "" || c.JWTPublicKeyPath == "" {
			return fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH are required for %s", AlgRS256)
		}
	default:
		return fmt.Errorf("JWT_ALGORITHM: unsupported algorithm %q", c.JWTAlgorithm)
	}

	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}

	switch c.PasswordScheme {
	case SchemeBcrypt:
		if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
			return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case SchemeArgon2id:
	default:
		return fmt.Errorf("PASSWORD_SCHEME: unknown scheme %q", c.PasswordScheme)
	}

	if (c.HTTPSCertFile == "") != (c.HTTPSKeyFile == "") {
		return fmt.Errorf("HTTPS_CERT_FILE and HTTPS_KEY_FILE must be set together")
	}
	return nil
}

// parseList accepts either a JSON-style list (["a","b"]) or a comma separated string.
func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
