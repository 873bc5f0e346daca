package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Workflow      WorkflowConfig
	Payment       PaymentConfig
	Mail          MailConfig
	Storage       StorageConfig
	RateLimit     RateLimitConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Driver         string
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	ReadRetries    int
	ReadRetryDelay time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WorkflowConfig holds the editorial policy knobs of the article lifecycle.
type WorkflowConfig struct {
	UTRTokenTTL        time.Duration
	CoAuthorTokenTTL   time.Duration
	MaxCoAuthors       int
	RejectionReasonMin int
	PersistTimeout     time.Duration
	NotifyTimeout      time.Duration
}

// PaymentConfig carries the bank transfer instructions mailed to approved authors.
type PaymentConfig struct {
	Fee           string
	AccountName   string
	AccountNumber string
	IFSC          string
	BankName      string
}

// MailConfig configures outbound email. An empty SMTPHost routes mail to the log.
type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	JournalName  string
	EditorEmails []string
}

// StorageConfig controls where manuscripts and watermarked copies live.
type StorageConfig struct {
	ManuscriptDir   string
	MaxUploadBytes  int64
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// RateLimitConfig throttles the public token endpoints per client IP.
type RateLimitConfig struct {
	Enabled bool
	Limit   int64
	Window  time.Duration
}

// NotificationConfig governs background retries of failed emails.
type NotificationConfig struct {
	RetryWorkers int
	MaxRetries   int
	RetryDelay   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Driver:         v.GetString("DB_DRIVER"),
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		ReadRetries:    v.GetInt("DB_READ_RETRIES"),
		ReadRetryDelay: parseDuration(v.GetString("DB_READ_RETRY_DELAY"), 100*time.Millisecond),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Workflow = WorkflowConfig{
		UTRTokenTTL:        parseDuration(v.GetString("UTR_TOKEN_TTL"), 48*time.Hour),
		CoAuthorTokenTTL:   parseDuration(v.GetString("COAUTHOR_TOKEN_TTL"), 30*24*time.Hour),
		MaxCoAuthors:       v.GetInt("MAX_COAUTHORS"),
		RejectionReasonMin: v.GetInt("REJECTION_REASON_MIN"),
		PersistTimeout:     parseDuration(v.GetString("PERSIST_TIMEOUT"), 5*time.Second),
		NotifyTimeout:      parseDuration(v.GetString("NOTIFY_TIMEOUT"), 10*time.Second),
	}

	cfg.Payment = PaymentConfig{
		Fee:           v.GetString("PUBLICATION_FEE"),
		AccountName:   v.GetString("PAYMENT_ACCOUNT_NAME"),
		AccountNumber: v.GetString("PAYMENT_ACCOUNT_NUMBER"),
		IFSC:          v.GetString("PAYMENT_IFSC"),
		BankName:      v.GetString("PAYMENT_BANK_NAME"),
	}

	cfg.Mail = MailConfig{
		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUser:     v.GetString("SMTP_USER"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		From:         v.GetString("MAIL_FROM"),
		JournalName:  v.GetString("JOURNAL_NAME"),
		EditorEmails: splitAndTrim(v.GetString("EDITOR_EMAILS")),
	}

	maxUpload := v.GetInt64("MANUSCRIPT_MAX_BYTES")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		ManuscriptDir:   v.GetString("MANUSCRIPT_STORAGE_DIR"),
		MaxUploadBytes:  maxUpload,
		SignedURLSecret: v.GetString("DOWNLOAD_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DOWNLOAD_SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled: v.GetBool("ENABLE_PUBLIC_RATE_LIMIT"),
		Limit:   v.GetInt64("PUBLIC_RATE_LIMIT"),
		Window:  parseDuration(v.GetString("PUBLIC_RATE_WINDOW"), time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		RetryWorkers: v.GetInt("NOTIFY_RETRY_WORKERS"),
		MaxRetries:   v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "legal_journal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_READ_RETRIES", 3)
	v.SetDefault("DB_READ_RETRY_DELAY", "100ms")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "journal-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UTR_TOKEN_TTL", "48h")
	v.SetDefault("COAUTHOR_TOKEN_TTL", "720h")
	v.SetDefault("MAX_COAUTHORS", 2)
	v.SetDefault("REJECTION_REASON_MIN", 10)
	v.SetDefault("PERSIST_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_TIMEOUT", "10s")

	v.SetDefault("PUBLICATION_FEE", "INR 2,500")
	v.SetDefault("PAYMENT_ACCOUNT_NAME", "")
	v.SetDefault("PAYMENT_ACCOUNT_NUMBER", "")
	v.SetDefault("PAYMENT_IFSC", "")
	v.SetDefault("PAYMENT_BANK_NAME", "")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "editorial@localhost")
	v.SetDefault("JOURNAL_NAME", "Legal Journal")
	v.SetDefault("EDITOR_EMAILS", "")

	v.SetDefault("MANUSCRIPT_STORAGE_DIR", "./manuscripts")
	v.SetDefault("MANUSCRIPT_MAX_BYTES", 20*1024*1024)
	v.SetDefault("DOWNLOAD_SIGNED_URL_SECRET", "dev_download_secret")
	v.SetDefault("DOWNLOAD_SIGNED_URL_TTL", "15m")

	v.SetDefault("ENABLE_PUBLIC_RATE_LIMIT", true)
	v.SetDefault("PUBLIC_RATE_LIMIT", 30)
	v.SetDefault("PUBLIC_RATE_WINDOW", "1m")

	v.SetDefault("NOTIFY_RETRY_WORKERS", 1)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "30s")
}

// isMissingFile treats an absent .env as "no overrides" rather than a failure.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
