package rules

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// fakeHistory returns canned history answers.
type fakeHistory struct {
	company   []*domain.Claim
	claimant  []*domain.Claim
	frequency int
	err       error
}

func (f *fakeHistory) ClaimantClaims(context.Context, string, time.Time, string) ([]*domain.Claim, error) {
	return f.claimant, f.err
}

func (f *fakeHistory) ClaimantFrequency(context.Context, string, string, time.Duration, time.Time) (int, error) {
	return f.frequency, f.err
}

func (f *fakeHistory) CompanyClaims(context.Context, string, string) ([]*domain.Claim, error) {
	return f.company, f.err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// baseClaim is a Wednesday incident reported three days later with no email.
func baseClaim(amount int64) *domain.Claim {
	return &domain.Claim{
		ID:              "claim-1",
		ClaimNumber:     "CLM-2024-0001",
		ClaimantName:    "John Smith",
		IncidentDate:    day(2024, 1, 3),
		ReportedDate:    day(2024, 1, 6),
		Type:            domain.ClaimTypeAuto,
		EstimatedAmount: decimal.NewFromInt(amount),
		CompanyID:       "co-1",
	}
}

func flagSet(flags []domain.FlagCandidate) map[string]domain.FlagCandidate {
	out := make(map[string]domain.FlagCandidate, len(flags))
	for _, f := range flags {
		out[f.RuleID] = f
	}
	return out
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, domain.FraudConfig{})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != len(BuiltinRules()) {
		t.Errorf("expected %d rules, got %d", len(BuiltinRules()), engine.RulesCount())
	}

	withHistory, err := NewEngine(&fakeHistory{}, domain.FraudConfig{})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if withHistory.RulesCount() != len(BuiltinRules())+3 {
		t.Errorf("expected history rules to be loaded, got %d rules", withHistory.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, domain.FraudConfig{})

	tests := []struct {
		name string
		cfg  *domain.RuleConfig
	}{
		{"BadSyntax", &domain.RuleConfig{ID: "bad", Expression: "this is not valid CEL !!!",
			FlagType: domain.FlagAmountAnomaly, Severity: "low", Enabled: true}},
		{"NotBool", &domain.RuleConfig{ID: "num", Expression: "amount * 2.0",
			FlagType: domain.FlagAmountAnomaly, Severity: "low", Enabled: true}},
		{"UnknownVariable", &domain.RuleConfig{ID: "var", Expression: "debtor_id == 'x'",
			FlagType: domain.FlagAmountAnomaly, Severity: "low", Enabled: true}},
		{"BadSeverity", &domain.RuleConfig{ID: "sev", Expression: "amount > 1.0",
			FlagType: domain.FlagAmountAnomaly, Severity: "extreme", Enabled: true}},
		{"BadFlagType", &domain.RuleConfig{ID: "type", Expression: "amount > 1.0",
			FlagType: "odd", Severity: "low", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.ValidateRule(tt.cfg); err == nil {
				t.Error("expected validation error")
			}
			before := engine.RulesCount()
			if err := engine.LoadRules([]*domain.RuleConfig{tt.cfg}); err == nil {
				t.Error("expected load error")
			}
			if engine.RulesCount() != before {
				t.Error("failed load must not change the rule set")
			}
		})
	}
}

func TestPredicateRules(t *testing.T) {
	engine, err := NewEngine(nil, domain.FraudConfig{})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	ctx := context.Background()
	now := day(2024, 2, 1)

	t.Run("NoFlags", func(t *testing.T) {
		flags, err := engine.EvaluateAll(ctx, baseClaim(40000), now)
		if err != nil {
			t.Fatalf("EvaluateAll failed: %v", err)
		}
		if len(flags) != 0 {
			t.Errorf("expected no flags, got %+v", flags)
		}
	})

	t.Run("AmountHighAndCritical", func(t *testing.T) {
		flags, err := engine.EvaluateAll(ctx, baseClaim(150000), now)
		if err != nil {
			t.Fatalf("EvaluateAll failed: %v", err)
		}
		got := flagSet(flags)
		if len(got) != 2 {
			t.Fatalf("expected 2 flags, got %+v", flags)
		}
		if f := got["amount-high"]; f.Type != domain.FlagAmountAnomaly || f.Severity != domain.SeverityHigh {
			t.Errorf("unexpected high flag: %+v", f)
		}
		if f := got["amount-critical"]; f.Type != domain.FlagAmountAnomaly || f.Severity != domain.SeverityCritical {
			t.Errorf("unexpected critical flag: %+v", f)
		}
	})

	t.Run("AmountThresholdExclusive", func(t *testing.T) {
		flags, _ := engine.EvaluateAll(ctx, baseClaim(50000), now)
		if len(flags) != 0 {
			t.Errorf("exactly 50000 must not flag, got %+v", flags)
		}
	})

	t.Run("SameDayReport", func(t *testing.T) {
		c := baseClaim(1000)
		c.ReportedDate = c.IncidentDate
		flags, _ := engine.EvaluateAll(ctx, c, now)
		got := flagSet(flags)
		f, ok := got["same-day-report"]
		if !ok || len(got) != 1 {
			t.Fatalf("expected only same-day flag, got %+v", flags)
		}
		if f.Type != domain.FlagTimingAnomaly || f.Severity != domain.SeverityMedium {
			t.Errorf("unexpected same-day flag: %+v", f)
		}
		if f.Description != "Claim reported on same day as incident" {
			t.Errorf("unexpected description %q", f.Description)
		}
	})

	t.Run("WeekendIncident", func(t *testing.T) {
		for _, d := range []time.Time{day(2024, 1, 6), day(2024, 1, 7)} {
			c := baseClaim(1000)
			c.IncidentDate = d
			c.ReportedDate = d.AddDate(0, 0, 2)
			got := flagSet(mustEvaluate(t, engine, c, now))
			if f, ok := got["weekend-incident"]; !ok || f.Severity != domain.SeverityLow {
				t.Errorf("expected low weekend flag for %s, got %+v", d.Weekday(), got)
			}
		}
	})

	t.Run("DisposableEmail", func(t *testing.T) {
		c := baseClaim(1000)
		c.ClaimantEmail = "someone@TempMail.com"
		got := flagSet(mustEvaluate(t, engine, c, now))
		if f, ok := got["disposable-email"]; !ok || f.Type != domain.FlagDocumentAnomaly || f.Severity != domain.SeverityMedium {
			t.Errorf("expected document flag, got %+v", got)
		}

		c.ClaimantEmail = "someone@example.com"
		if got := flagSet(mustEvaluate(t, engine, c, now)); len(got) != 0 {
			t.Errorf("expected no flags for regular email, got %+v", got)
		}
	})
}

func TestConfiguredRules(t *testing.T) {
	engine, err := NewEngine(nil, domain.FraudConfig{
		DisposableDomains: []string{"throwaway.test"},
		Rules: []*domain.RuleConfig{
			{
				ID:          "life-large",
				Description: "Large life claim",
				Expression:  `claim_type == "life" && amount > 20000.0`,
				FlagType:    domain.FlagAmountAnomaly,
				Severity:    "medium",
				Confidence:  0.5,
				Enabled:     true,
			},
			{
				ID:         "disabled",
				Expression: "true",
				FlagType:   domain.FlagAmountAnomaly,
				Severity:   "low",
				Enabled:    false,
			},
		},
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	c := baseClaim(30000)
	c.Type = domain.ClaimTypeLife
	c.ClaimantEmail = "x@throwaway.test"
	got := flagSet(mustEvaluate(t, engine, c, day(2024, 2, 1)))

	if _, ok := got["life-large"]; !ok {
		t.Error("expected configured rule to fire")
	}
	if _, ok := got["disposable-email"]; !ok {
		t.Error("expected configured disposable domain to be used")
	}
	if _, ok := got["disabled"]; ok {
		t.Error("disabled rule must not load")
	}
}

func TestHistoryRules(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 1)

	t.Run("SimilarClaimant", func(t *testing.T) {
		h := &fakeHistory{company: []*domain.Claim{
			{ID: "o-1", ClaimNumber: "CLM-2023-0001", ClaimantName: "Jon Smith"},
			{ID: "o-2", ClaimNumber: "CLM-2023-0002", ClaimantName: "Mary Jones"},
		}}
		engine, _ := NewEngine(h, domain.FraudConfig{})

		got := flagSet(mustEvaluate(t, engine, baseClaim(1000), now))
		f, ok := got["similar-claimant"]
		if !ok {
			t.Fatalf("expected similar claimant flag, got %+v", got)
		}
		// "john smith" vs "jon smith": 9 shared characters of 19 → 94.7%
		if f.Severity != domain.SeverityHigh {
			t.Errorf("expected high severity above 90%%, got %s", f.Severity)
		}
		if !strings.HasPrefix(f.Description, "Found 1 claims with similar claimant names") {
			t.Errorf("unexpected description %q", f.Description)
		}
		if f.Confidence > 0.9 || f.Confidence < 0.3 {
			t.Errorf("confidence out of range: %.2f", f.Confidence)
		}
		list, ok := f.Metadata["similar_claims"].([]map[string]any)
		if !ok || len(list) != 1 || list[0]["claim_number"] != "CLM-2023-0001" {
			t.Errorf("unexpected metadata: %+v", f.Metadata)
		}
	})

	t.Run("SimilarClaimantMedium", func(t *testing.T) {
		h := &fakeHistory{company: []*domain.Claim{
			{ID: "o-1", ClaimNumber: "CLM-2023-0001", ClaimantName: "John Smythe"},
		}}
		engine, _ := NewEngine(h, domain.FraudConfig{})

		got := flagSet(mustEvaluate(t, engine, baseClaim(1000), now))
		// "john smith" vs "john smythe": 9 shared of 21 → 85.7%
		if f, ok := got["similar-claimant"]; !ok || f.Severity != domain.SeverityMedium {
			t.Errorf("expected medium similar claimant flag, got %+v", got)
		}
	})

	t.Run("DuplicateClaim", func(t *testing.T) {
		h := &fakeHistory{claimant: []*domain.Claim{
			{ID: "p-1", ClaimNumber: "CLM-2023-0009", EstimatedAmount: decimal.NewFromInt(1500)},
		}}
		engine, _ := NewEngine(h, domain.FraudConfig{})

		got := flagSet(mustEvaluate(t, engine, baseClaim(1000), now))
		f, ok := got["duplicate-claim"]
		if !ok || f.Severity != domain.SeverityCritical || f.Type != domain.FlagDuplicateClaim {
			t.Fatalf("expected critical duplicate flag, got %+v", got)
		}
		if f.Metadata["duplicate_claim_number"] != "CLM-2023-0009" {
			t.Errorf("unexpected metadata: %+v", f.Metadata)
		}

		h.claimant[0].EstimatedAmount = decimal.NewFromInt(2000)
		if got := flagSet(mustEvaluate(t, engine, baseClaim(1000), now)); len(got) != 0 {
			t.Errorf("expected no flag at a 1000 difference, got %+v", got)
		}
	})

	t.Run("FrequentClaimant", func(t *testing.T) {
		h := &fakeHistory{frequency: 3}
		engine, _ := NewEngine(h, domain.FraudConfig{})

		got := flagSet(mustEvaluate(t, engine, baseClaim(1000), now))
		f, ok := got["frequent-claimant"]
		if !ok || f.Type != domain.FlagSuspiciousPattern || f.Severity != domain.SeverityHigh {
			t.Fatalf("expected suspicious pattern flag, got %+v", got)
		}
		if f.Description != "Claimant has submitted multiple claims this year (4 claims)" {
			t.Errorf("unexpected description %q", f.Description)
		}

		h.frequency = 2
		if got := flagSet(mustEvaluate(t, engine, baseClaim(1000), now)); len(got) != 0 {
			t.Errorf("expected no flag below threshold, got %+v", got)
		}
	})

	t.Run("FailingRuleKeepsOthers", func(t *testing.T) {
		boom := errors.New("history unavailable")
		engine, _ := NewEngine(&fakeHistory{err: boom}, domain.FraudConfig{})

		flags, err := engine.EvaluateAll(ctx, baseClaim(150000), now)
		if !errors.Is(err, boom) {
			t.Fatalf("expected joined history error, got %v", err)
		}
		if len(flagSet(flags)) != 2 {
			t.Errorf("expected the two amount flags to survive, got %+v", flags)
		}
	})
}

func mustEvaluate(t *testing.T, engine *Engine, c *domain.Claim, now time.Time) []domain.FlagCandidate {
	t.Helper()
	flags, err := engine.EvaluateAll(context.Background(), c, now)
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	return flags
}
