// ClaimWatch - Fraud screening for multi-company insurance claims.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/claimwatch/internal/api"
	"github.com/opensource-finance/claimwatch/internal/audit"
	"github.com/opensource-finance/claimwatch/internal/bus"
	"github.com/opensource-finance/claimwatch/internal/cache"
	"github.com/opensource-finance/claimwatch/internal/claims"
	"github.com/opensource-finance/claimwatch/internal/config"
	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/flags"
	"github.com/opensource-finance/claimwatch/internal/repository"
	"github.com/opensource-finance/claimwatch/internal/rules"
	"github.com/opensource-finance/claimwatch/internal/search"
	"github.com/opensource-finance/claimwatch/internal/triage"
	"github.com/opensource-finance/claimwatch/internal/velocity"
	"github.com/opensource-finance/claimwatch/internal/worker"
)

// Build metadata, overridden with -ldflags -X.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLAIMWATCH_CONFIG"), "path to YAML config file")
	issueToken := flag.String("issue-token", "", "print a session token for this user id and exit")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "claimwatch: %v\n", err)
		os.Exit(1)
	}

	if err := config.ValidateSession(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "claimwatch: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	if *issueToken != "" {
		tok, err := api.NewSessionToken([]byte(cfg.Session.Secret), *issueToken, *tokenTTL)
		if err != nil {
			slog.Error("failed to sign session token", "error", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	slog.Info("starting claimwatch",
		"version", Version,
		"commit", Commit,
		"built", BuildDate,
		"tier", cfg.Tier,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		fatal("open repository", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		fatal("open cache", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		fatal("open event bus", err)
	}
	defer busImpl.Close()

	engine, err := rules.NewEngine(velocity.NewService(repo), cfg.Fraud)
	if err != nil {
		fatal("compile fraud rules", err)
	}
	slog.Info("backends ready",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"rules_count", engine.RulesCount(),
	)

	auditor := audit.NewLogger(repo)
	searchSvc := search.NewService(repo, cacheImpl, auditor, cfg.Search)
	claimSvc := claims.NewService(repo, engine, triage.NewProcessor(), auditor, busImpl, searchSvc)
	flagSvc := flags.NewService(repo, auditor)

	var reevaluator *worker.Worker
	if cfg.Worker.Enabled {
		reevaluator = worker.NewWorker(busImpl, claimSvc)
		if err := reevaluator.Start(worker.Config{WorkerCount: cfg.Worker.WorkerCount}); err != nil {
			slog.Error("re-evaluation worker not started", "error", err)
			reevaluator = nil
		} else {
			slog.Info("re-evaluation worker started", "workers", cfg.Worker.WorkerCount)
		}
	}

	srv := api.NewServer(cfg, api.Dependencies{
		Repo:   repo,
		Cache:  cacheImpl,
		Claims: claimSvc,
		Flags:  flagSvc,
		Search: searchSvc,
	}, Version)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	slog.Info("listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("signal received, draining")
	case err := <-serveErr:
		slog.Error("http server stopped", "error", err)
	}

	// Stop the worker first
	if reevaluator != nil {
		if err := reevaluator.Stop(); err != nil {
			slog.Error("failed to stop re-evaluation worker", "error", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		slog.Error("http shutdown incomplete", "error", err)
	}
	slog.Info("claimwatch stopped")
}

func fatal(step string, err error) {
	slog.Error("startup failed", "step", step, "error", err)
	os.Exit(1)
}

func setupLogger(cfg domain.LoggingConfig) {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ClaimWatch " + version)
	fmt.Println("  Insurance claim fraud screening")
	fmt.Println()
	fmt.Printf("  Tier:       %s\n", cfg.Tier)
	fmt.Printf("  Listening:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Storage:    %s\n", cfg.Repository.Driver)
	fmt.Printf("  Cache:      %s\n", cfg.Cache.Type)
	fmt.Printf("  Event bus:  %s\n", cfg.EventBus.Type)
	fmt.Println()
}
