package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL  string `mapstructure:"DB_DSN"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`
	TxMaxRetries int    `mapstructure:"TX_MAX_RETRIES"`
	RedisURL     string `mapstructure:"REDIS_URL"`

	ClinicTimezone        string `mapstructure:"CLINIC_TIMEZONE"`
	DefaultServiceMinutes int    `mapstructure:"DEFAULT_SERVICE_MINUTES"`
	StrictCompletion      bool   `mapstructure:"STRICT_COMPLETION"`

	OTPLength              int  `mapstructure:"OTP_LENGTH"`
	OTPTTLSeconds          int  `mapstructure:"OTP_TTL_SECONDS"`
	OTPSMSTTLSeconds       int  `mapstructure:"OTP_SMS_TTL_SECONDS"`
	OTPMaxAttempts         int  `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPResendWindowSeconds int  `mapstructure:"OTP_RESEND_WINDOW_SECONDS"`
	OTPExposeCode          bool `mapstructure:"OTP_EXPOSE_CODE"`

	SearchDefaultLimit int `mapstructure:"SEARCH_DEFAULT_LIMIT"`
	SearchMaxLimit     int `mapstructure:"SEARCH_MAX_LIMIT"`

	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`

	SMSProvider      string `mapstructure:"SMS_PROVIDER"`
	SMSTimeoutSecs   int    `mapstructure:"SMS_TIMEOUT_SECONDS"`
	SMSWebhookURL    string `mapstructure:"SMS_WEBHOOK_URL"`
	SMSWebhookToken  string `mapstructure:"SMS_WEBHOOK_TOKEN"`
	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`

	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"ENV":                       "production",
	"LOG_LEVEL":                 "info",
	"DB_MAX_CONNS":              20,
	"DB_MIN_CONNS":              2,
	"TX_MAX_RETRIES":            5,
	"CLINIC_TIMEZONE":           "UTC",
	"DEFAULT_SERVICE_MINUTES":   30,
	"STRICT_COMPLETION":         false,
	"OTP_LENGTH":                6,
	"OTP_TTL_SECONDS":           300,
	"OTP_SMS_TTL_SECONDS":       600,
	"OTP_MAX_ATTEMPTS":          3,
	"OTP_RESEND_WINDOW_SECONDS": 30,
	"OTP_EXPOSE_CODE":           false,
	"SEARCH_DEFAULT_LIMIT":      50,
	"SEARCH_MAX_LIMIT":          100,
	"RATE_LIMIT_PER_MIN":        120,
	"RATE_LIMIT_BURST":          30,
	"SMS_PROVIDER":              "log",
	"SMS_TIMEOUT_SECONDS":       5,
}

var unset = []string{
	"DB_DSN", "REDIS_URL",
	"SMS_WEBHOOK_URL", "SMS_WEBHOOK_TOKEN",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
}

// Load reads configuration from the environment, falling back to an optional
// .env file and then to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	for _, key := range unset {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.TxMaxRetries < 1 {
		return fmt.Errorf("TX_MAX_RETRIES must be at least 1, got %d", c.TxMaxRetries)
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTPLength)
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", c.OTPMaxAttempts)
	}
	if c.OTPTTLSeconds <= 0 || c.OTPSMSTTLSeconds <= 0 {
		return fmt.Errorf("OTP_TTL_SECONDS and OTP_SMS_TTL_SECONDS must be positive")
	}
	if c.SearchDefaultLimit < 1 || c.SearchDefaultLimit > c.SearchMaxLimit {
		return fmt.Errorf("SEARCH_DEFAULT_LIMIT must be between 1 and SEARCH_MAX_LIMIT (%d)", c.SearchMaxLimit)
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	switch c.SMSProvider {
	case "log", "noop", "fail", "webhook", "twilio":
	default:
		return fmt.Errorf("SMS_PROVIDER must be one of log, noop, fail, webhook, twilio, got %q", c.SMSProvider)
	}
	if c.SMSTimeoutSecs <= 0 {
		return fmt.Errorf("SMS_TIMEOUT_SECONDS must be positive")
	}
	if c.SMSProvider == "webhook" && c.SMSWebhookURL == "" {
		return fmt.Errorf("SMS_WEBHOOK_URL is required when SMS_PROVIDER is webhook")
	}
	if c.SMSProvider == "twilio" && (c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "") {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required when SMS_PROVIDER is twilio")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) OTPTTL() time.Duration {
	return seconds(c.OTPTTLSeconds)
}

func (c *Config) SMSTimeout() time.Duration {
	return seconds(c.SMSTimeoutSecs)
}

func (c *Config) OTPSMSTTL() time.Duration {
	return seconds(c.OTPSMSTTLSeconds)
}

func (c *Config) OTPResendWindow() time.Duration {
	return seconds(c.OTPResendWindowSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
