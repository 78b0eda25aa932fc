// ClaimWatch - Fraud screening for multi-company insurance claims.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command reevaluate re-runs fraud detection for one stored claim, either
// directly against the store or by asking a running worker over the bus.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opensource-finance/claimwatch/internal/audit"
	"github.com/opensource-finance/claimwatch/internal/bus"
	"github.com/opensource-finance/claimwatch/internal/claims"
	"github.com/opensource-finance/claimwatch/internal/config"
	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/repository"
	"github.com/opensource-finance/claimwatch/internal/rules"
	"github.com/opensource-finance/claimwatch/internal/triage"
	"github.com/opensource-finance/claimwatch/internal/velocity"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLAIMWATCH_CONFIG"), "path to YAML config file")
	claimID := flag.String("claim", "", "claim id to re-evaluate (required)")
	publish := flag.Bool("publish", false, "queue the request for the worker instead of evaluating here")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if *claimID == "" {
		fmt.Fprintln(os.Stderr, "usage: reevaluate -claim <id> [-publish] [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *publish {
		err = queue(ctx, cfg, *claimID)
	} else {
		err = evaluate(ctx, cfg, *claimID)
	}
	if err != nil {
		slog.Error("re-evaluation failed", "claim_id", *claimID, "error", err)
		os.Exit(1)
	}
}

func queue(ctx context.Context, cfg *domain.Config, claimID string) error {
	b, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer b.Close()

	payload, err := json.Marshal(domain.ReevaluateRequest{ClaimID: claimID, RequestedBy: "reevaluate-cli"})
	if err != nil {
		return err
	}
	if err := b.Publish(ctx, domain.GlobalScope, domain.TopicReevaluate, payload); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	slog.Info("re-evaluation queued", "claim_id", claimID, "subject", bus.Subject(domain.GlobalScope, domain.TopicReevaluate))
	return nil
}

func evaluate(ctx context.Context, cfg *domain.Config, claimID string) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	engine, err := rules.NewEngine(velocity.NewService(repo), cfg.Fraud)
	if err != nil {
		return err
	}

	// The in-process bus has no subscribers here; events are only logged.
	b := bus.NewChannelBus(cfg.EventBus.ChannelBufferSize)
	defer b.Close()

	svc := claims.NewService(repo, engine, triage.NewProcessor(), audit.NewLogger(repo), b, nil)
	created, err := svc.EvaluateFraud(ctx, claimID)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(map[string]any{"claimId": claimID, "fraudFlags": created})
}
