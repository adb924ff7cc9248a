package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	S3         S3Config         `mapstructure:"s3"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Versions   VersionsConfig   `mapstructure:"versions"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Generation GenerationConfig `mapstructure:"generation"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// S3Config configures the bucket that keeps raw generation output for audit.
type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// RedisConfig enables the cross-process chain lock. When disabled an
// in-process lock is used, which is only correct for a single replica.
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type MatcherConfig struct {
	DurationToleranceWeeks int `mapstructure:"duration_tolerance_weeks"`
	MaxAlternatives        int `mapstructure:"max_alternatives"`
}

type VersionsConfig struct {
	KeepPredecessors int `mapstructure:"keep_predecessors"`
}

type RetentionConfig struct {
	InstanceDays int `mapstructure:"instance_days"`
}

// GenerationConfig points at an OpenAI-compatible chat completions endpoint.
type GenerationConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	BaseURL              string        `mapstructure:"base_url"`
	APIKey               string        `mapstructure:"api_key"`
	Model                string        `mapstructure:"model"`
	Temperature          float64       `mapstructure:"temperature"`
	MaxTokens            int           `mapstructure:"max_tokens"`
	PromptPricePer1K     float64       `mapstructure:"prompt_price_per_1k"`
	CompletionPricePer1K float64       `mapstructure:"completion_price_per_1k"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, redis.lock_ttl -> REDIS_LOCK_TTL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Running on defaults and env vars only.
		err = nil
	} else if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "fitgen")
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", "10s")
	v.SetDefault("log.mode", "development")
	v.SetDefault("matcher.duration_tolerance_weeks", 2)
	v.SetDefault("matcher.max_alternatives", 5)
	v.SetDefault("versions.keep_predecessors", 3)
	v.SetDefault("retention.instance_days", 180)
	v.SetDefault("generation.timeout", "90s")
	v.SetDefault("generation.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.max_tokens", 4096)
}
