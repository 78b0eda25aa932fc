package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/guard"
	"github.com/opensource-finance/claimwatch/internal/similarity"
	"github.com/opensource-finance/claimwatch/internal/velocity"
)

// History is the claimant history the history rules consult.
// velocity.Service implements it.
type History interface {
	ClaimantClaims(ctx context.Context, name string, incident time.Time, excludeID string) ([]*domain.Claim, error)
	ClaimantFrequency(ctx context.Context, name, excludeID string, window time.Duration, now time.Time) (int, error)
	CompanyClaims(ctx context.Context, companyID, excludeID string) ([]*domain.Claim, error)
}

// Thresholds of the history rules.
const (
	SimilarNameThreshold  = 75.0
	HighSimilarityPercent = 90.0
	FrequentClaimantCount = 3
)

// HistoryRules returns the rules that query claimant history.
func HistoryRules(h History) []Rule {
	return []Rule{
		&similarClaimantRule{history: h},
		&duplicateClaimRule{history: h},
		&frequentClaimantRule{history: h},
	}
}

// similarClaimantRule flags claims whose claimant name closely resembles
// another claimant of the same company.
type similarClaimantRule struct {
	history History
}

func (r *similarClaimantRule) ID() string { return "similar-claimant" }

func (r *similarClaimantRule) Evaluate(ctx context.Context, in *Input) (*domain.FlagCandidate, error) {
	c := in.Claim
	others, err := r.history.CompanyClaims(ctx, c.CompanyID, c.ID)
	if err != nil {
		return nil, err
	}

	var similar []map[string]any
	var best float64
	for _, o := range others {
		pct := similarity.NamePercent(c.ClaimantName, o.ClaimantName)
		if pct <= SimilarNameThreshold {
			continue
		}
		similar = append(similar, map[string]any{
			"claim_id":      o.ID,
			"claim_number":  o.ClaimNumber,
			"claimant_name": o.ClaimantName,
			"similarity":    math.Round(pct*100) / 100,
		})
		best = math.Max(best, pct)
	}
	if len(similar) == 0 {
		return nil, nil
	}

	severity := domain.SeverityMedium
	if best > HighSimilarityPercent {
		severity = domain.SeverityHigh
	}

	return &domain.FlagCandidate{
		RuleID:      r.ID(),
		Type:        domain.FlagSimilarClaimant,
		Severity:    severity,
		Description: fmt.Sprintf("Found %d claims with similar claimant names (up to %.1f%% similar)", len(similar), best),
		Confidence:  math.Min(0.3+best/200, 0.9),
		Metadata: map[string]any{
			"similar_claims": similar,
			"max_similarity": math.Round(best*100) / 100,
		},
	}, nil
}

// duplicateClaimRule flags a claim that repeats a recent claim of the same
// claimant with nearly the same amount.
type duplicateClaimRule struct {
	history History
}

func (r *duplicateClaimRule) ID() string { return "duplicate-claim" }

func (r *duplicateClaimRule) Evaluate(ctx context.Context, in *Input) (*domain.FlagCandidate, error) {
	c := in.Claim
	prior, err := r.history.ClaimantClaims(ctx, c.ClaimantName, c.IncidentDate, c.ID)
	if err != nil {
		return nil, err
	}

	for _, p := range prior {
		if !guard.AmountsClose(p.EstimatedAmount, c.EstimatedAmount) {
			continue
		}
		return &domain.FlagCandidate{
			RuleID:      r.ID(),
			Type:        domain.FlagDuplicateClaim,
			Severity:    domain.SeverityCritical,
			Description: "Similar claim found for same claimant within 30 days",
			Confidence:  0.9,
			Metadata: map[string]any{
				"duplicate_claim_id":     p.ID,
				"duplicate_claim_number": p.ClaimNumber,
			},
		}, nil
	}
	return nil, nil
}

// frequentClaimantRule flags claimants filing many claims in a year.
type frequentClaimantRule struct {
	history History
}

func (r *frequentClaimantRule) ID() string { return "frequent-claimant" }

func (r *frequentClaimantRule) Evaluate(ctx context.Context, in *Input) (*domain.FlagCandidate, error) {
	c := in.Claim
	others, err := r.history.ClaimantFrequency(ctx, c.ClaimantName, c.ID, velocity.FrequencyWindow, in.Now)
	if err != nil {
		return nil, err
	}
	if others < FrequentClaimantCount {
		return nil, nil
	}

	return &domain.FlagCandidate{
		RuleID:      r.ID(),
		Type:        domain.FlagSuspiciousPattern,
		Severity:    domain.SeverityHigh,
		Description: fmt.Sprintf("Claimant has submitted multiple claims this year (%d claims)", others+1),
		Confidence:  0.85,
		Metadata:    map[string]any{"claims_in_window": others + 1},
	}, nil
}
