package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edvin/homedock/internal/api"
	"github.com/edvin/homedock/internal/broadcast"
	"github.com/edvin/homedock/internal/compose"
	"github.com/edvin/homedock/internal/config"
	"github.com/edvin/homedock/internal/core"
	"github.com/edvin/homedock/internal/db"
	"github.com/edvin/homedock/internal/deploy"
	"github.com/edvin/homedock/internal/deployer"
	"github.com/edvin/homedock/internal/logging"
	"github.com/edvin/homedock/internal/metrics"
	"github.com/edvin/homedock/internal/runner"
	"github.com/edvin/homedock/internal/system"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "convert-run" {
		convertRun(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		applied, err := db.RunMigrations(ctx, cfg.DatabaseURL, *migrateDirFlag)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Ints64("versions", applied).Msg("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, pool); err != nil {
		logger.Warn().Err(err).Msg("failed to register pool metrics")
	}

	docker, err := deployer.NewDocker("")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create docker client")
	}
	defer docker.Close()

	services := core.NewServices(pool)
	actions := core.NewActionLog(pool, logger)
	defer actions.Close()

	poller := system.NewPoller(system.NewHostReader(), cfg.AppDataRoot, docker, services.InstalledApp, logger)
	hub := broadcast.NewHub(poller, cfg.PollInterval, cfg.ProgressExpiry, logger)

	resolver := compose.NewResolver(cfg.CustomAppsDir, services.Catalog, compose.NewStoreScanner(cfg.AppStoresDir), logger)
	orchestrator := deploy.NewOrchestrator(deploy.Deps{
		Installed:  services.InstalledApp,
		Catalog:    services.Catalog,
		Resolver:   resolver,
		Sanitizer:  compose.NewSanitizer(cfg.SanitizeDir, logger),
		Runner:     runner.New(logger),
		Puller:     runner.NewPullStreamer(logger, deploy.ProgressPullStart, deploy.ProgressPullDone),
		Containers: docker,
		Progress:   hub,
		Refresher:  hub,
		Actions:    actions,
	}, deploy.Options{
		DockerBinary: cfg.DockerBinary,
		Defaults: deploy.SystemDefaults{
			PUID:     cfg.DefaultPUID,
			PGID:     cfg.DefaultPGID,
			TZ:       cfg.DefaultTZ,
			DataRoot: cfg.AppDataRoot,
			RootDir:  cfg.RootDir,
		},
		HostEnv:        os.Environ(),
		CommandTimeout: cfg.CommandTimeout,
	}, logger)

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("state hub failed")
		}
	}()

	srv := api.NewServer(logger, api.Deps{
		Deployer: orchestrator,
		Apps:     services.InstalledApp,
		Hub:      hub,
		Ready: map[string]api.Pinger{
			"database": pool,
			"docker":   docker,
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting homedock API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown incomplete")
	}

	cancel()
	<-hubDone
	orchestrator.Wait()
}

// convertRun prints the compose file equivalent of a docker run command
// given as arguments or on stdin.
func convertRun(args []string) {
	command := strings.Join(args, " ")
	if strings.TrimSpace(command) == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read stdin: %v\n", err)
			os.Exit(1)
		}
		command = string(data)
	}
	if strings.TrimSpace(command) == "" {
		fmt.Fprintln(os.Stderr, "usage: homedock convert-run 'docker run ...'")
		os.Exit(1)
	}

	out, err := compose.ConvertRunCommand(command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
}
