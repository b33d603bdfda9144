package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/permitbot/internal/botapp"
	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagBotToken            = "bot-token"
	flagDatabaseURL         = "database-url"
	flagBaseURL             = "base-url"
	flagWebhookPath         = "webhook-path"
	flagListenAddr          = "listen-addr"
	flagGRPCHealthAddr      = "grpc-health-addr"
	flagAdminIDs            = "admin-ids"
	flagAdminTag            = "admin-tag"
	flagFolioPrefix         = "folio-prefix"
	flagFolioMaxAttempts    = "folio-max-attempts"
	flagPaymentWindow       = "payment-window"
	flagReminderMarks       = "reminder-marks"
	flagFinalNotice         = "final-notice"
	flagValidityDays        = "validity-days"
	flagOutputDir           = "output-dir"
	flagMainTemplate        = "main-template"
	flagReceiptTemplate     = "receipt-template"
	flagTimeZone            = "time-zone"
	flagSessionBackend      = "session-backend"
	flagRedisURL            = "redis-url"
	flagSessionTTL          = "session-ttl"
	flagS3Bucket            = "s3-bucket"
	flagS3Prefix            = "s3-prefix"
	flagConfirmBeforeIssue  = "confirm-before-issue"
	flagPrice               = "price"
	flagPaymentInstructions = "payment-instructions"
	flagSweepInterval       = "sweep-interval"
	flagHeartbeatInterval   = "heartbeat-interval"
	flagAllowedOrigins      = "allowed-origins"
	envPrefix               = "PERMITBOT"
)

var serveFlags = []string{
	flagBotToken, flagBaseURL, flagWebhookPath, flagListenAddr, flagGRPCHealthAddr, flagAdminIDs, flagAdminTag,
	flagFolioPrefix, flagFolioMaxAttempts, flagPaymentWindow, flagReminderMarks, flagFinalNotice, flagValidityDays,
	flagOutputDir, flagMainTemplate, flagReceiptTemplate, flagTimeZone, flagSessionBackend, flagRedisURL,
	flagSessionTTL, flagS3Bucket, flagS3Prefix, flagConfirmBeforeIssue, flagPrice, flagPaymentInstructions,
	flagSweepInterval, flagHeartbeatInterval, flagAllowedOrigins,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "permitbot: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "permitbot",
		Short:         "Chat bot issuing digital circulation permits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String(flagDatabaseURL, "sqlite://data/permitbot.db", "database URL (postgres:// or sqlite path)")
	cmd.AddCommand(newServeCommand(), newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var cfg botapp.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, its HTTP surface and background jobs",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadServeConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return botapp.Run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(flagBotToken, "", "Telegram bot token (required)")
	flags.String(flagBaseURL, "", "public base URL; when set the bot registers a webhook, otherwise it polls")
	flags.String(flagWebhookPath, "/webhook", "HTTP path receiving webhook updates")
	flags.String(flagListenAddr, ":8000", "HTTP listen address")
	flags.String(flagGRPCHealthAddr, "", "gRPC health listen address (disabled when empty)")
	flags.String(flagAdminIDs, "", "comma-separated chat ids allowed to run the admin override")
	flags.String(flagAdminTag, "SERO", "admin override command tag")
	flags.String(flagFolioPrefix, permit.DefaultFolioPrefix, "folio prefix")
	flags.Int(flagFolioMaxAttempts, permit.DefaultFolioAttempts, "folio collision retries per allocation")
	flags.Duration(flagPaymentWindow, permit.DefaultPaymentWindow, "time allowed to pay before a folio expires")
	flags.Int(flagReminderMarks, permit.DefaultReminderMarks, "number of equal reminder intervals in the payment window")
	flags.Duration(flagFinalNotice, permit.DefaultFinalNotice, "final notice lead time before expiry")
	flags.Int(flagValidityDays, permit.DefaultValidityDays, "days an issued permit stays valid")
	flags.String(flagOutputDir, "documents", "directory for rendered documents")
	flags.String(flagMainTemplate, "templates/permiso.pdf", "main permit PDF template")
	flags.String(flagReceiptTemplate, "templates/comprobante.pdf", "receipt PDF template")
	flags.String(flagTimeZone, "America/Mexico_City", "time zone for printed dates")
	flags.String(flagSessionBackend, botapp.SessionBackendMemory, "intake session backend: memory or redis")
	flags.String(flagRedisURL, "", "redis:// URL for the redis session backend")
	flags.Duration(flagSessionTTL, 0, "idle intake session lifetime (default 24h)")
	flags.String(flagS3Bucket, "", "S3 bucket archiving rendered documents (disabled when empty)")
	flags.String(flagS3Prefix, "permits", "S3 key prefix for archived documents")
	flags.Bool(flagConfirmBeforeIssue, false, "ask the applicant to confirm the data before issuing")
	flags.String(flagPrice, "", "price quoted to applicants")
	flags.String(flagPaymentInstructions, "", "payment instructions appended to the issue message")
	flags.Duration(flagSweepInterval, 0, "overdue permit sweep interval (default 5m)")
	flags.Duration(flagHeartbeatInterval, 0, "heartbeat log interval (default 10m)")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the permit tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newViper()
			if err := v.BindPFlag(flagDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
				return err
			}
			db, cleanup, driver, err := botapp.OpenDatabase(cmd.Context(), v.GetString(flagDatabaseURL))
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := botapp.PrepareSchema(db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", driver)
			return nil
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func loadServeConfig(cmd *cobra.Command) (botapp.Config, error) {
	v := newViper()
	for _, flagName := range append([]string{flagDatabaseURL}, serveFlags...) {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return botapp.Config{}, err
		}
	}

	adminIDs, err := botapp.ParseAdminIDs(v.GetString(flagAdminIDs))
	if err != nil {
		return botapp.Config{}, err
	}

	cfg := botapp.Config{}

	cfg.BotToken = strings.TrimSpace(v.GetString(flagBotToken))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.BaseURL = strings.TrimSpace(v.GetString(flagBaseURL))
	cfg.WebhookPath = strings.TrimSpace(v.GetString(flagWebhookPath))
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.GRPCHealthAddr = strings.TrimSpace(v.GetString(flagGRPCHealthAddr))
	cfg.AdminIDs = adminIDs
	cfg.AdminTag = v.GetString(flagAdminTag)
	cfg.FolioPrefix = v.GetString(flagFolioPrefix)
	cfg.FolioMaxAttempts = v.GetInt(flagFolioMaxAttempts)
	cfg.PaymentWindow = v.GetDuration(flagPaymentWindow)
	cfg.ReminderMarks = v.GetInt(flagReminderMarks)
	cfg.FinalNotice = v.GetDuration(flagFinalNotice)
	cfg.ValidityDays = v.GetInt(flagValidityDays)
	cfg.OutputDir = v.GetString(flagOutputDir)
	cfg.MainTemplate = v.GetString(flagMainTemplate)
	cfg.ReceiptTemplate = v.GetString(flagReceiptTemplate)
	cfg.TimeZone = v.GetString(flagTimeZone)
	cfg.SessionBackend = v.GetString(flagSessionBackend)
	cfg.RedisURL = strings.TrimSpace(v.GetString(flagRedisURL))
	cfg.SessionTTL = v.GetDuration(flagSessionTTL)
	cfg.S3Bucket = strings.TrimSpace(v.GetString(flagS3Bucket))
	cfg.S3Prefix = v.GetString(flagS3Prefix)
	cfg.ConfirmBeforeIssue = v.GetBool(flagConfirmBeforeIssue)
	cfg.Price = v.GetString(flagPrice)
	cfg.PaymentInstructions = v.GetString(flagPaymentInstructions)
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.HeartbeatInterval = v.GetDuration(flagHeartbeatInterval)
	cfg.AllowedOrigins = botapp.ParseList(v.GetString(flagAllowedOrigins))

	if err := cfg.Validate(); err != nil {
		return botapp.Config{}, err
	}
	return cfg, nil
}
