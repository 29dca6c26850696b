package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/handlers"
	"github.com/khabaroff/hwid-license-server/src/metrics"
	"github.com/khabaroff/hwid-license-server/src/middleware"
	"github.com/khabaroff/hwid-license-server/src/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the license server",
		Example: `  license-server serve
  STORE_DRIVER=sqlite SQLITE_PATH=./keys.db license-server serve --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides PORT)")

	return cmd
}

func runServe(ctx context.Context, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}

	log.Info().
		Int("port", cfg.Port).
		Str("store_driver", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("starting server")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	log.Info().Str("store_driver", cfg.StoreDriver).Msg("store connected")

	// Initialize JWT secret in middleware
	if err := middleware.SetJWTSecret(cfg.JWTSecret); err != nil {
		return fmt.Errorf("failed to initialize JWT secret: %w", err)
	}

	policy := fraudPolicy(cfg)
	if err := policy.Validate(); err != nil {
		return err
	}

	// Initialize services
	registry := metrics.NewRegistry()
	validationService := services.NewValidationService(store, policy, metrics.New(registry))
	keyService := services.NewKeyService(store, cfg.ResetClearsBinding)
	blacklistService := services.NewBlacklistService(store)
	adminService := services.NewAdminService(store.Admins())
	cleanupService := services.NewCleanupService(keyService, cfg.EnableAutoCleanup, cfg.ExpiredKeyRetention)

	// Auto-seed admin user on first run (if ADMIN_USERNAME and ADMIN_PASSWORD are set)
	created, err := adminService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		log.Error().Err(err).Msg("failed to create initial admin user")
	} else if created {
		log.Info().Str("username", cfg.AdminUsername).Msg("initial admin user created")
	}

	// Start background services
	cleanupService.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router, err := handlers.NewRouter(handlers.Dependencies{
		Store:             store,
		ValidationService: validationService,
		KeyService:        keyService,
		BlacklistService:  blacklistService,
		AdminService:      adminService,
		Registry:          registry,
		AllowedOrigins:    cfg.Origins(),
		TrustedProxies:    cfg.Proxies(),
		ValidateRateLimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.ValidateRequestsPerMinute,
			Burst:             cfg.ValidateBurst,
		},
		Driver:       cfg.StoreDriver,
		Version:      appVersion,
		SecureCookie: cfg.SecureCookie,
	})
	if err != nil {
		return err
	}
	defer router.Close()

	// Create HTTP server with timeouts (G112: protect from Slowloris attack)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		cleanupService.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	cleanupService.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server shut down successfully")
	return nil
}
