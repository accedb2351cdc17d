package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends for challenges.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Email backends for notification delivery.
const (
	EmailLog  = "log"
	EmailFile = "file"
	EmailSMTP = "smtp"
)

// Config holds the application configuration
type Config struct {
	Port string

	// Challenge lifecycle
	ChallengeTTL  time.Duration
	SweepInterval time.Duration

	// Risk rules
	SupportedCurrencies []string
	HighRiskCountries   []string
	HomeCountry         string
	DisposableFragments []string
	MFAAmountThreshold  float64
	MaxAmount           float64

	// Backends
	ChallengeStore string
	DatabaseURL    string
	RedisAddr      string

	// Merchant credentials, "merchant_id:api_key" pairs. Used by the static
	// validator; the postgres validator reads from DATABASE_URL instead.
	MerchantKeys map[string]string

	// Signed verification receipts
	ReceiptSecret string
	ReceiptTTL    time.Duration

	// Notification delivery
	EmailBackend  string
	EmailFilePath string
	SMTPServer    string
	SMTPPort      int
	SenderEmail   string
	SenderPass    string
	CompanyName   string

	// External MFA provider (Duo-style). Empty base URL means the static
	// directory (PROVIDER_CARDS) is used instead.
	ProviderBaseURL string
	ProviderCards   map[string]string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                "8080",
		ChallengeTTL:        15 * time.Minute,
		SweepInterval:       time.Minute,
		SupportedCurrencies: []string{"USD", "EUR", "GBP"},
		HighRiskCountries:   []string{"NG", "PK", "IR"},
		HomeCountry:         "US",
		DisposableFragments: []string{"temp", "tempmail", "10minutemail"},
		MFAAmountThreshold:  100,
		MaxAmount:           1000,
		ChallengeStore:      StoreMemory,
		ReceiptTTL:          24 * time.Hour,
		EmailBackend:        EmailLog,
		EmailFilePath:       "tmp_emails",
		SMTPServer:          "smtp.gmail.com",
		SMTPPort:            587,
		CompanyName:         "SecurePayments",
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if v := os.Getenv("CHALLENGE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CHALLENGE_TTL %q", v)
		}
		cfg.ChallengeTTL = d
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL %q", v)
		}
		cfg.SweepInterval = d
	}

	if v := os.Getenv("SUPPORTED_CURRENCIES"); v != "" {
		cfg.SupportedCurrencies = splitUpper(v)
	}
	if v := os.Getenv("HIGH_RISK_COUNTRIES"); v != "" {
		cfg.HighRiskCountries = splitUpper(v)
	}
	if v := os.Getenv("HOME_COUNTRY"); v != "" {
		cfg.HomeCountry = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("DISPOSABLE_EMAIL_FRAGMENTS"); v != "" {
		cfg.DisposableFragments = splitLower(v)
	}

	var err error
	if cfg.MFAAmountThreshold, err = loadFloat("MFA_AMOUNT_THRESHOLD", cfg.MFAAmountThreshold); err != nil {
		return nil, err
	}
	if cfg.MaxAmount, err = loadFloat("MAX_AMOUNT", cfg.MaxAmount); err != nil {
		return nil, err
	}
	if cfg.MaxAmount < cfg.MFAAmountThreshold {
		return nil, fmt.Errorf("MAX_AMOUNT (%v) must not be below MFA_AMOUNT_THRESHOLD (%v)", cfg.MaxAmount, cfg.MFAAmountThreshold)
	}

	if v := os.Getenv("CHALLENGE_STORE"); v != "" {
		switch v {
		case StoreMemory, StorePostgres, StoreRedis:
			cfg.ChallengeStore = v
		default:
			return nil, fmt.Errorf("invalid CHALLENGE_STORE %q (want memory, postgres or redis)", v)
		}
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.ChallengeStore == StorePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required for the postgres challenge store")
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.ChallengeStore == StoreRedis && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR environment variable is required for the redis challenge store")
	}

	// Merchant API keys are never defaulted: a missing credential must fail
	// the request, not fall back to a demo key.
	cfg.MerchantKeys, err = parsePairs(os.Getenv("MERCHANT_API_KEYS"))
	if err != nil {
		return nil, err
	}
	if len(cfg.MerchantKeys) == 0 && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("MERCHANT_API_KEYS environment variable is required (\"merchant_id:api_key\" pairs, comma separated)")
	}

	cfg.ReceiptSecret = os.Getenv("RECEIPT_SECRET")
	if cfg.ReceiptSecret == "" {
		return nil, fmt.Errorf("RECEIPT_SECRET environment variable is required")
	}
	if v := os.Getenv("RECEIPT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RECEIPT_TTL %q", v)
		}
		cfg.ReceiptTTL = d
	}

	if v := os.Getenv("EMAIL_BACKEND"); v != "" {
		switch v {
		case EmailLog, EmailFile, EmailSMTP:
			cfg.EmailBackend = v
		default:
			return nil, fmt.Errorf("invalid EMAIL_BACKEND %q (want log, file or smtp)", v)
		}
	}
	if v := os.Getenv("EMAIL_FILE_PATH"); v != "" {
		cfg.EmailFilePath = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		cfg.SMTPServer = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 {
			return nil, fmt.Errorf("invalid SMTP_PORT %q", v)
		}
		cfg.SMTPPort = p
	}
	cfg.SenderEmail = os.Getenv("SENDER_EMAIL")
	cfg.SenderPass = os.Getenv("SENDER_PASSWORD")
	if cfg.EmailBackend == EmailSMTP && cfg.SenderEmail == "" {
		return nil, fmt.Errorf("SENDER_EMAIL environment variable is required for the smtp email backend")
	}
	if v := os.Getenv("COMPANY_NAME"); v != "" {
		cfg.CompanyName = v
	}

	cfg.ProviderBaseURL = strings.TrimRight(os.Getenv("PROVIDER_BASE_URL"), "/")
	cfg.ProviderCards, err = parsePairs(os.Getenv("PROVIDER_CARDS"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return f, nil
}

func splitUpper(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitLower(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parsePairs parses "key:value" pairs separated by commas.
func parsePairs(v string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(v) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid pair %q (want \"key:value\")", pair)
		}
		out[key] = value
	}
	return out, nil
}
