package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/formwell/formwell-portal/cmd/portal/cli"
	"github.com/formwell/formwell-portal/internal/app"
	"github.com/formwell/formwell-portal/internal/auth"
	"github.com/formwell/formwell-portal/internal/bundles"
	"github.com/formwell/formwell-portal/internal/observability"
	"github.com/formwell/formwell-portal/internal/platform/cache"
	"github.com/formwell/formwell-portal/internal/platform/db"
	"github.com/formwell/formwell-portal/internal/pricing"
	pricinghttp "github.com/formwell/formwell-portal/internal/pricing/http"
	"github.com/formwell/formwell-portal/internal/rbac"
	"github.com/formwell/formwell-portal/internal/shared"
)

type exitCodeError int

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portal",
		Short:         "Formwell client portal: pricing, bundles and access control",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newQuoteCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newQuoteCmd() *cobra.Command {
	var opts cli.QuoteOptions
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a formation package offline",
		Long: `Compute a quote from the built-in catalogue.

Unknown states price at factor 1.0 and unknown add-ons are ignored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := cli.NewQuoteCLI(nil).QuoteCommand(opts); code != 0 {
				return exitCodeError(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.TierID, "tier", "", "service tier id (starter, growth, scale)")
	cmd.Flags().StringVar(&opts.Jurisdiction, "state", "", "formation state, e.g. Wyoming")
	cmd.Flags().StringSliceVar(&opts.AddonIDs, "addon", nil, "add-on id; repeat or comma-separate")
	cmd.Flags().StringVar(&opts.Locale, "locale", "en-US", "display locale for amounts")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON instead of a table")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var code exitCodeError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		slog.Default().Error("portal", slog.Any("error", err))
		os.Exit(1)
	}
}

func runServer(ctx context.Context) error {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return nil
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, rbac.NewGrantCache(redisClient, cfg.GrantCacheTTL), logger, metrics)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, tokens, sessionManager, csrfManager)

	engine := pricing.NewEngine(pricing.DefaultCatalog())
	pricingHandler := pricinghttp.NewHandler(logger, engine, pricing.NewFormatter(cfg.PricingLocale), metrics)
	bundlesHandler := bundles.NewHandler(logger, bundles.DefaultCatalog(), rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Tokens:             tokens,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		PricingHandler:     pricingHandler,
		BundlesHandler:     bundlesHandler,
		PermissionsHandler: permissionsHandler,
		Metrics:            metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis": app.PingerFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
