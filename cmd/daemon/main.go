package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amtoaer/bili-sync-sub000/internal/api"
	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/config"
	"github.com/amtoaer/bili-sync-sub000/internal/log"
	"github.com/amtoaer/bili-sync-sub000/internal/pipeline"
	"github.com/amtoaer/bili-sync-sub000/internal/scheduler"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "config.yaml", "path to the bootstrap file")
	dryRun := flag.Bool("dry-run", false, "log planned downloads instead of writing them")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	boot, err := config.LoadBootstrap(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Configure(log.Config{Level: boot.LogLevel, Service: "bili-sync"})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(boot.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("event", "startup.failed").Msg("data dir not writable")
	}

	st, err := store.Open(ctx, filepath.Join(boot.DataDir, "bili-sync.db"), store.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.failed").Msg("store open failed")
	}
	defer st.Close()

	payload, cfgVersion, err := st.LoadConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.failed").Msg("config load failed")
	}
	cfg, err := config.Parse(payload)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.invalid").Msg("stored config rejected")
	}
	if cfgVersion == 0 {
		seed, err := json.Marshal(cfg)
		if err == nil {
			_, err = st.SaveConfig(ctx, string(seed))
		}
		if err != nil {
			logger.Fatal().Err(err).Str("event", "startup.failed").Msg("config seed failed")
		}
		logger.Info().Str("event", "config.seeded").Msg("stored default configuration")
	}

	client := bilibili.New(&cfg.Credential, cfg.RateLimit.Budget())

	upperBase := cfg.UpperPath
	if !filepath.IsAbs(upperBase) {
		upperBase = filepath.Join(boot.DataDir, upperBase)
	}
	p, err := pipeline.New(st, client, cfg, upperBase, *dryRun)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.failed").Msg("pipeline init failed")
	}

	sched := scheduler.New(p, client, st, cfg)
	srv := &http.Server{
		Addr:              boot.Bind,
		Handler:           api.NewServer(sched, st).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("addr", boot.Bind).
		Str("data_dir", boot.DataDir).
		Bool("dry_run", *dryRun).
		Msg("starting bili-sync")

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("event", "scheduler.stopped").Msg("scheduler exited")
			stop()
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("event", "server.failed").Msg("control server exited")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Str("event", "shutdown").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("control server shutdown incomplete")
	}
}
