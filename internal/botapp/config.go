// Package botapp assembles the permit bot process: storage, domain services, chat transport and HTTP surface.
package botapp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
)

const (
	defaultListenAddr      = ":8000"
	defaultDatabaseURL     = "sqlite://data/permitbot.db"
	defaultWebhookPath     = "/webhook"
	defaultAdminTag        = "SERO"
	defaultOutputDir       = "documents"
	defaultMainTemplate    = "templates/permiso.pdf"
	defaultReceiptTemplate = "templates/comprobante.pdf"
	defaultTimeZone        = "America/Mexico_City"
	defaultPrice           = "el mismo de siempre"
	defaultSessionTTL      = 24 * time.Hour
	defaultSweepInterval   = 5 * time.Minute
	defaultHeartbeat       = 10 * time.Minute
	defaultAllowedOrigin   = "*"

	// SessionBackendMemory keeps intake sessions in process.
	SessionBackendMemory = "memory"
	// SessionBackendRedis keeps intake sessions in Redis.
	SessionBackendRedis = "redis"
)

// Config aggregates runtime settings for the bot process.
type Config struct {
	BotToken            string
	DatabaseURL         string
	BaseURL             string
	WebhookPath         string
	ListenAddr          string
	GRPCHealthAddr      string
	AdminIDs            []int64
	AdminTag            string
	FolioPrefix         string
	FolioMaxAttempts    int
	PaymentWindow       time.Duration
	ReminderMarks       int
	FinalNotice         time.Duration
	ValidityDays        int
	OutputDir           string
	MainTemplate        string
	ReceiptTemplate     string
	TimeZone            string
	SessionBackend      string
	RedisURL            string
	SessionTTL          time.Duration
	S3Bucket            string
	S3Prefix            string
	ConfirmBeforeIssue  bool
	Price               string
	PaymentInstructions string
	SweepInterval       time.Duration
	HeartbeatInterval   time.Duration
	AllowedOrigins      []string
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.WebhookPath = defaultIfEmpty(cfg.WebhookPath, defaultWebhookPath)
	cfg.AdminTag = strings.ToUpper(defaultIfEmpty(cfg.AdminTag, defaultAdminTag))
	cfg.FolioPrefix = strings.ToUpper(defaultIfEmpty(cfg.FolioPrefix, permit.DefaultFolioPrefix))
	cfg.OutputDir = defaultIfEmpty(cfg.OutputDir, defaultOutputDir)
	cfg.MainTemplate = defaultIfEmpty(cfg.MainTemplate, defaultMainTemplate)
	cfg.ReceiptTemplate = defaultIfEmpty(cfg.ReceiptTemplate, defaultReceiptTemplate)
	cfg.TimeZone = defaultIfEmpty(cfg.TimeZone, defaultTimeZone)
	cfg.SessionBackend = strings.ToLower(defaultIfEmpty(cfg.SessionBackend, SessionBackendMemory))
	cfg.Price = defaultIfEmpty(cfg.Price, defaultPrice)
	if cfg.FolioMaxAttempts <= 0 {
		cfg.FolioMaxAttempts = permit.DefaultFolioAttempts
	}
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = permit.DefaultPaymentWindow
	}
	if cfg.ReminderMarks <= 0 {
		cfg.ReminderMarks = permit.DefaultReminderMarks
	}
	if cfg.FinalNotice < 0 {
		cfg.FinalNotice = permit.DefaultFinalNotice
	}
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = permit.DefaultValidityDays
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		cfg.WebhookPath = "/" + cfg.WebhookPath
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if strings.TrimSpace(cfg.BotToken) == "" {
		return fmt.Errorf("bot token is required")
	}
	if strings.TrimSpace(cfg.AdminTag) == "" {
		return fmt.Errorf("admin tag is required")
	}
	if strings.HasPrefix(cfg.AdminTag, cfg.FolioPrefix) {
		return fmt.Errorf("admin tag %q must not start with folio prefix %q", cfg.AdminTag, cfg.FolioPrefix)
	}
	switch cfg.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return fmt.Errorf("redis url is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unsupported session backend %q", cfg.SessionBackend)
	}
	if err := cfg.ReminderPlan().Validate(); err != nil {
		return err
	}
	return nil
}

// ReminderPlan builds the payment reminder schedule.
func (cfg Config) ReminderPlan() permit.ReminderPlan {
	return permit.ReminderPlan{
		Deadline:    cfg.PaymentWindow,
		Marks:       cfg.ReminderMarks,
		FinalNotice: cfg.FinalNotice,
	}
}

// WebhookURL returns the public update endpoint, or "" when the bot should poll.
func (cfg Config) WebhookURL() string {
	if cfg.BaseURL == "" {
		return ""
	}
	return cfg.BaseURL + cfg.WebhookPath
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseList splits comma-delimited values into a slice.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// ParseAdminIDs parses comma-delimited numeric chat ids.
func ParseAdminIDs(raw string) ([]int64, error) {
	parts := ParseList(raw)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid admin id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
