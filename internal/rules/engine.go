// Package rules provides the fraud rule engine: CEL predicates over claim
// attributes plus rules that consult claimant history.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

var tracer = otel.Tracer("claimwatch/rules")

// Rule inspects one claim and returns at most one flag candidate.
type Rule interface {
	ID() string
	Evaluate(ctx context.Context, in *Input) (*domain.FlagCandidate, error)
}

// Input is the evaluation context shared by all rules of one pass.
type Input struct {
	Claim *domain.Claim
	Now   time.Time

	activation map[string]any
}

// Engine is the parallel fraud rule engine.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	predicates []*CompiledRule
	history    []Rule
	disposable []string
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL predicate.
type CompiledRule struct {
	Config   *domain.RuleConfig
	Severity domain.Severity
	Program  cel.Program
}

// NewEngine creates an engine loaded with the built-in predicates, the
// configured extra predicates and, when history is non-nil, the history rules.
func NewEngine(history History, cfg domain.FraudConfig) (*Engine, error) {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	disposable := cfg.DisposableDomains
	if disposable == nil {
		disposable = domain.DefaultDisposableDomains
	}

	// Create CEL environment with claim variables
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("report_gap_days", cel.IntType),
		cel.Variable("incident_weekday", cel.IntType),
		cel.Variable("email_domain", cel.StringType),
		cel.Variable("disposable_domains", cel.ListType(cel.StringType)),
		cel.Variable("claim_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:        env,
		disposable: append([]string(nil), disposable...),
		maxWorkers: maxWorkers,
	}

	if err := e.LoadRules(BuiltinRules()); err != nil {
		return nil, err
	}
	if err := e.LoadRules(cfg.Rules); err != nil {
		return nil, err
	}
	if history != nil {
		e.history = HistoryRules(history)
	}

	return e, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRules compiles and appends the enabled rules. Nothing is loaded when
// any of them fails to compile.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	var compiled []*CompiledRule
	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		c, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.predicates = append(e.predicates, compiled...)
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.predicates) + len(e.history)
}

// EvaluateAll runs every rule against claim in parallel. Rules that fail are
// logged and reported in the joined error; the candidates of the rules that
// succeeded are returned in rule order either way.
func (e *Engine) EvaluateAll(ctx context.Context, claim *domain.Claim, now time.Time) ([]domain.FlagCandidate, error) {
	ctx, span := tracer.Start(ctx, "rules.EvaluateAll",
		trace.WithAttributes(
			attribute.String("claim.id", claim.ID),
			attribute.String("claim.number", claim.ClaimNumber),
		),
	)
	defer span.End()

	e.mu.RLock()
	rules := make([]Rule, 0, len(e.predicates)+len(e.history))
	for _, p := range e.predicates {
		rules = append(rules, p)
	}
	rules = append(rules, e.history...)
	e.mu.RUnlock()

	in := &Input{Claim: claim, Now: now, activation: e.activation(claim)}

	// Parallel evaluation using worker pool pattern
	results := make([]*domain.FlagCandidate, len(rules))
	errs := make([]error, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx], errs[idx] = evaluateRule(ctx, r, in)
		}(i, rule)
	}

	wg.Wait()

	var flags []domain.FlagCandidate
	for _, c := range results {
		if c != nil {
			flags = append(flags, *c)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rule evaluation failed")
	}
	span.SetAttributes(
		attribute.Int("rules.count", len(rules)),
		attribute.Int("flags.count", len(flags)),
	)

	return flags, err
}

func evaluateRule(ctx context.Context, r Rule, in *Input) (c *domain.FlagCandidate, err error) {
	defer func() {
		if p := recover(); p != nil {
			c, err = nil, fmt.Errorf("rule %s panicked: %v", r.ID(), p)
		}
		if err != nil {
			slog.Warn("fraud rule failed",
				"rule_id", r.ID(),
				"claim_id", in.Claim.ID,
				"error", err,
			)
		}
	}()

	c, err = r.Evaluate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID(), err)
	}
	if c != nil && c.RuleID == "" {
		c.RuleID = r.ID()
	}
	return c, nil
}

// activation prepares the CEL variables for a claim.
func (e *Engine) activation(c *domain.Claim) map[string]any {
	gap := int64(c.ReportedDate.Sub(c.IncidentDate).Hours() / 24)
	if gap < 0 {
		gap = -gap
	}

	return map[string]any{
		"amount":             c.EstimatedAmount.InexactFloat64(),
		"report_gap_days":    gap,
		"incident_weekday":   int64(c.IncidentDate.Weekday()),
		"email_domain":       c.EmailDomain(),
		"disposable_domains": e.disposable,
		"claim_type":         string(c.Type),
	}
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if !cfg.FlagType.Valid() {
		return nil, fmt.Errorf("rule %s: unknown flag type %q", cfg.ID, cfg.FlagType)
	}
	severity, err := domain.ParseSeverity(cfg.Severity)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", cfg.ID, err)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:   cfg,
		Severity: severity,
		Program:  program,
	}, nil
}

// ID returns the rule id.
func (r *CompiledRule) ID() string {
	return r.Config.ID
}

// Evaluate runs the predicate and raises the configured flag when it holds.
func (r *CompiledRule) Evaluate(ctx context.Context, in *Input) (*domain.FlagCandidate, error) {
	out, _, err := r.Program.ContextEval(ctx, in.activation)
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	hit, ok := out.(types.Bool)
	if !ok {
		return nil, fmt.Errorf("expected bool result, got %v", out.Type())
	}
	if !hit {
		return nil, nil
	}

	return &domain.FlagCandidate{
		RuleID:      r.Config.ID,
		Type:        r.Config.FlagType,
		Severity:    r.Severity,
		Description: r.Config.Description,
		Confidence:  r.Config.Confidence,
	}, nil
}
