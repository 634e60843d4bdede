package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	AssistantBaseURL   string        `mapstructure:"ASSISTANT_BASE_URL"`
	AssistantModel     string        `mapstructure:"ASSISTANT_MODEL"`
	AssistantAPIKey    string        `mapstructure:"ASSISTANT_API_KEY"`
	AssistantMaxTokens int           `mapstructure:"ASSISTANT_MAX_TOKENS"`
	ClassifierTimeout  time.Duration `mapstructure:"CLASSIFIER_TIMEOUT"`

	AssignmentPolicy     string `mapstructure:"ASSIGNMENT_POLICY"`
	LoadSource           string `mapstructure:"LOAD_SOURCE"`
	ReferenceMaxAttempts int    `mapstructure:"REFERENCE_MAX_ATTEMPTS"`

	RedisURL string        `mapstructure:"REDIS_URL"`
	LockTTL  time.Duration `mapstructure:"LOCK_TTL"`
	LockWait time.Duration `mapstructure:"LOCK_WAIT"`

	NATSURL           string `mapstructure:"NATS_URL"`
	NATSSubjectPrefix string `mapstructure:"NATS_SUBJECT_PREFIX"`

	S3Bucket        string        `mapstructure:"S3_BUCKET"`
	S3Endpoint      string        `mapstructure:"S3_ENDPOINT"`
	S3Region        string        `mapstructure:"S3_REGION"`
	S3AccessKey     string        `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey     string        `mapstructure:"S3_SECRET_KEY"`
	S3PresignExpiry time.Duration `mapstructure:"S3_PRESIGN_EXPIRY"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`
}

var defaults = map[string]any{
	"ENV":                    "dev",
	"PORT":                   "8080",
	"REQUEST_TIMEOUT":        "30s",
	"LOG_LEVEL":              "info",
	"CORS_ALLOWED_ORIGINS":   "*",
	"ASSISTANT_MAX_TOKENS":   800,
	"CLASSIFIER_TIMEOUT":     "20s",
	"ASSIGNMENT_POLICY":      "best_effort",
	"LOAD_SOURCE":            "derived",
	"REFERENCE_MAX_ATTEMPTS": 5,
	"LOCK_TTL":               "15s",
	"LOCK_WAIT":              "5s",
	"NATS_SUBJECT_PREFIX":    "complaints",
	"S3_REGION":              "us-east-1",
	"S3_PRESIGN_EXPIRY":      "15m",
	"MAX_UPLOAD_MB":          20,
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// AutomaticEnv only answers keys viper already knows about.
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envOnlyKeys = []string{
	"DATABASE_URL", "ADMIN_KEY", "JWT_SECRET",
	"ASSISTANT_BASE_URL", "ASSISTANT_MODEL", "ASSISTANT_API_KEY",
	"REDIS_URL", "NATS_URL",
	"S3_BUCKET", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
}

func (c Config) Validate() error {
	switch c.AssignmentPolicy {
	case "best_effort", "strict":
	default:
		return fmt.Errorf("ASSIGNMENT_POLICY must be best_effort or strict, got %q", c.AssignmentPolicy)
	}
	switch c.LoadSource {
	case "derived", "counter":
	default:
		return fmt.Errorf("LOAD_SOURCE must be derived or counter, got %q", c.LoadSource)
	}
	if c.ReferenceMaxAttempts < 1 {
		return fmt.Errorf("REFERENCE_MAX_ATTEMPTS must be at least 1")
	}
	if c.IsProduction() {
		// Without these the principal headers and admin routes are unauthenticated.
		for key, value := range map[string]string{
			"DATABASE_URL": c.DatabaseURL,
			"JWT_SECRET":   c.JWTSecret,
			"ADMIN_KEY":    c.AdminKey,
		} {
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("%s is required when ENV=%s", key, c.Env)
			}
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}
