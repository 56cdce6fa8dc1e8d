package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"clinicq/queue-service/internal/checkin"
	"clinicq/queue-service/internal/config"
	"clinicq/queue-service/internal/httpapi"
	"clinicq/queue-service/internal/notify"
	"clinicq/queue-service/internal/otp"
	"clinicq/queue-service/internal/queue"
	"clinicq/queue-service/internal/store/postgres"
	"clinicq/queue-service/internal/telemetry"
)

const serviceName = "clinicq"

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Clinic visit queue and check-in service",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *postgres.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s).\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *postgres.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied " + s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%03d  %-40s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(ctx context.Context, dir string, fn func(context.Context, *postgres.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DB_DSN is required")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, postgres.NewMigrator(pool, dir))
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level).With().Timestamp().Str("service", serviceName).Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	shutdownTracing := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	}, logger)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	throttle, closeThrottle, err := newThrottle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeThrottle()

	calendar, err := queue.NewCalendar(cfg.ClinicTimezone)
	if err != nil {
		return err
	}

	svc := checkin.New(checkin.Deps{
		Store: postgres.NewStore(pool, postgres.Options{TxMaxRetries: cfg.TxMaxRetries}),
		Verifier: otp.NewVerifier(otp.Config{
			CodeLength:  cfg.OTPLength,
			TTL:         cfg.OTPTTL(),
			MaxAttempts: cfg.OTPMaxAttempts,
		}),
		Admitter:  queue.NewAdmitter(cfg.DefaultServiceMinutes),
		Lifecycle: queue.NewLifecycle(queue.WithStrictCompletion(cfg.StrictCompletion)),
		Calendar:  calendar,
		Sender: notify.New(notify.Config{
			Provider:     cfg.SMSProvider,
			WebhookURL:   cfg.SMSWebhookURL,
			WebhookToken: cfg.SMSWebhookToken,
			TwilioSID:    cfg.TwilioAccountSID,
			TwilioToken:  cfg.TwilioAuthToken,
			TwilioFrom:   cfg.TwilioFromNumber,
			Timeout:      cfg.SMSTimeout(),
		}, logger),
		Throttle: throttle,
		Logger:   logger,
	}, checkin.Options{
		SMSCodeTTL:         cfg.OTPSMSTTL(),
		ExposeCode:         cfg.OTPExposeCode,
		SearchDefaultLimit: cfg.SearchDefaultLimit,
		SearchMaxLimit:     cfg.SearchMaxLimit,
	})

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})
	e := httpapi.NewServer(httpapi.NewHandler(svc, logger), logger, limiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(e, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newThrottle connects the OTP resend throttle when REDIS_URL is set.
func newThrottle(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (otp.Throttle, func(), error) {
	if cfg.RedisURL == "" || cfg.OTPResendWindow() <= 0 {
		return otp.NopThrottle{}, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info().Msg("connected to redis")
	return otp.NewRedisThrottle(client, cfg.OTPResendWindow()), func() { _ = client.Close() }, nil
}
