package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/upb/yapi/app"
	"github.com/upb/yapi/config"
	"github.com/upb/yapi/internal/observability"
	"github.com/upb/yapi/routes"
	"github.com/upb/yapi/services/bootstrap"
	"go.uber.org/zap"
)

// options are the command line flags
type options struct {
	envFile     string
	migrateOnly bool
	seed        bool
	seedFile    string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("yapi-server", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", "", "load environment from this file instead of .env")
	flagSet.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply database migrations (and --seed) then exit")
	flagSet.BoolVar(&opts.seed, "seed", false, "seed the default permissions, roles, groups and administrator")
	flagSet.StringVar(&opts.seedFile, "seed-file", "", "YAML catalogue used by --seed instead of the built-in one")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if opts.seedFile != "" && !opts.seed {
		return opts, fmt.Errorf("--seed-file requires --seed")
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, opts.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.migrateOnly {
		cfg.Database.AutoMigrate = true
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if opts.migrateOnly || opts.seed {
		if deps.Unavailable != nil {
			return fmt.Errorf("database unavailable: %w", deps.Unavailable)
		}
	}
	if opts.seed {
		if err := seed(ctx, deps, opts.seedFile); err != nil {
			return err
		}
	}
	if opts.migrateOnly {
		logger.Info("migrations applied, exiting")
		return nil
	}

	return serve(ctx, cfg, deps, logger)
}

func seed(ctx context.Context, deps *app.Dependencies, seedFile string) error {
	catalogue, err := bootstrap.LoadCatalogue(seedFile)
	if err != nil {
		return err
	}

	result, err := deps.NewSeeder(catalogue).Run(ctx)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	deps.Logger.Info("catalogue seeded",
		zap.Int("permissions", result.Permissions),
		zap.Int("roles", result.Roles),
		zap.Int("grants", result.Grants),
		zap.Int("groups", result.Groups),
		zap.Bool("admin", result.Admin))
	return nil
}

func serve(ctx context.Context, cfg *config.Config, deps *app.Dependencies, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLS.Enabled),
			zap.Bool("database_available", deps.Unavailable == nil))
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
