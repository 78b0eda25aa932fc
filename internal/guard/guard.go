// Package guard refuses claim submissions that repeat an existing claim.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/velocity"
)

// Names of the guard checks, in evaluation order.
const (
	CheckExact    = "exact"
	CheckNear     = "near"
	CheckVelocity = "email_velocity"
)

// NearAmountTolerance is the largest amount difference still treated as the
// same claim by the near check (exclusive).
var NearAmountTolerance = decimal.NewFromInt(1000)

// Match describes the existing claim that caused a rejection.
type Match struct {
	Check       string
	ClaimID     string
	ClaimNumber string
}

// Rejection converts the match into the error returned to callers.
func (m *Match) Rejection() *domain.DuplicateRejectedError {
	return &domain.DuplicateRejectedError{ClaimNumber: m.ClaimNumber, Check: m.Check}
}

// Check runs the three duplicate checks against store for an unsaved claim.
// The first check that finds a claim wins; nil means the claim may be stored.
func Check(ctx context.Context, store domain.ClaimFinder, c *domain.Claim, now time.Time) (*Match, error) {
	incident := c.IncidentDate
	exact, err := store.FindClaims(ctx, domain.ClaimQuery{
		ClaimantName: c.ClaimantName,
		PolicyNumber: c.PolicyNumber,
		IncidentDate: &incident,
		Limit:        1,
	})
	if err != nil {
		return nil, fmt.Errorf("exact duplicate check: %w", err)
	}
	if len(exact) > 0 {
		return matchOf(CheckExact, exact[0]), nil
	}

	history := velocity.NewService(store)

	near, err := history.ClaimantClaims(ctx, c.ClaimantName, c.IncidentDate, c.ID)
	if err != nil {
		return nil, fmt.Errorf("near duplicate check: %w", err)
	}
	for _, prior := range near {
		if AmountsClose(prior.EstimatedAmount, c.EstimatedAmount) {
			return matchOf(CheckNear, prior), nil
		}
	}

	recent, err := history.RecentByEmail(ctx, c.ClaimantEmail, velocity.EmailWindow, now)
	if err != nil {
		return nil, fmt.Errorf("email velocity check: %w", err)
	}
	if recent != nil {
		return matchOf(CheckVelocity, recent), nil
	}

	return nil, nil
}

// AmountsClose reports whether a and b differ by less than NearAmountTolerance.
func AmountsClose(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(NearAmountTolerance)
}

func matchOf(check string, c *domain.Claim) *Match {
	return &Match{Check: check, ClaimID: c.ID, ClaimNumber: c.ClaimNumber}
}
