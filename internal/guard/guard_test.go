package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// memFinder is an in-memory domain.ClaimFinder honouring the query fields
// the guard uses.
type memFinder struct {
	claims []*domain.Claim
	err    error
}

func (m *memFinder) FindClaims(_ context.Context, q domain.ClaimQuery) ([]*domain.Claim, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Claim
	for _, c := range m.claims {
		if q.ClaimantName != "" && c.ClaimantName != q.ClaimantName {
			continue
		}
		if q.ClaimantEmail != "" && c.ClaimantEmail != q.ClaimantEmail {
			continue
		}
		if q.PolicyNumber != "" && c.PolicyNumber != q.PolicyNumber {
			continue
		}
		if q.IncidentDate != nil && !c.IncidentDate.Equal(*q.IncidentDate) {
			continue
		}
		if q.IncidentFrom != nil && c.IncidentDate.Before(*q.IncidentFrom) {
			continue
		}
		if q.IncidentTo != nil && c.IncidentDate.After(*q.IncidentTo) {
			continue
		}
		if q.CreatedSince != nil && c.CreatedAt.Before(*q.CreatedSince) {
			continue
		}
		if q.ExcludeID != "" && c.ID == q.ExcludeID {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *memFinder) CountClaims(ctx context.Context, q domain.ClaimQuery) (int, error) {
	claims, err := m.FindClaims(ctx, q)
	return len(claims), err
}

func date(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	now := date(2024, 6, 15).Add(12 * time.Hour)

	existing := &domain.Claim{
		ID:              "claim-1",
		ClaimNumber:     "CLM-2024-0001",
		PolicyNumber:    "POL-1",
		ClaimantName:    "John Smith",
		ClaimantEmail:   "john@example.com",
		IncidentDate:    date(2024, 6, 1),
		EstimatedAmount: decimal.NewFromInt(5000),
		CreatedAt:       now.Add(-30 * 24 * time.Hour),
	}
	store := &memFinder{claims: []*domain.Claim{existing}}

	t.Run("ExactReturnsExistingNumber", func(t *testing.T) {
		c := &domain.Claim{
			ClaimantName:    "John Smith",
			PolicyNumber:    "POL-1",
			IncidentDate:    date(2024, 6, 1),
			EstimatedAmount: decimal.NewFromInt(99999),
		}
		m, err := Check(ctx, store, c, now)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if m == nil || m.Check != CheckExact || m.ClaimNumber != "CLM-2024-0001" {
			t.Fatalf("expected exact match on CLM-2024-0001, got %+v", m)
		}

		var dup *domain.DuplicateRejectedError
		if err := error(m.Rejection()); !errors.As(err, &dup) || dup.ClaimNumber != "CLM-2024-0001" {
			t.Errorf("unexpected rejection error: %v", err)
		}
		if m.Rejection().Error() != "Potential duplicate claim detected. Similar claim found: CLM-2024-0001" {
			t.Errorf("unexpected message: %s", m.Rejection().Error())
		}
	})

	t.Run("NearWithinAmountAndWindow", func(t *testing.T) {
		c := &domain.Claim{
			ClaimantName:    "John Smith",
			PolicyNumber:    "POL-2",
			IncidentDate:    date(2024, 6, 20),
			EstimatedAmount: decimal.NewFromFloat(5999.99),
		}
		m, err := Check(ctx, store, c, now)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if m == nil || m.Check != CheckNear {
			t.Fatalf("expected near match, got %+v", m)
		}
	})

	t.Run("NearAmountBoundaryExclusive", func(t *testing.T) {
		c := &domain.Claim{
			ClaimantName:    "John Smith",
			PolicyNumber:    "POL-2",
			IncidentDate:    date(2024, 6, 20),
			EstimatedAmount: decimal.NewFromInt(6000),
		}
		m, err := Check(ctx, store, c, now)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if m != nil {
			t.Errorf("a difference of exactly 1000 must not match, got %+v", m)
		}
	})

	t.Run("NearOutsideWindow", func(t *testing.T) {
		c := &domain.Claim{
			ClaimantName:    "John Smith",
			PolicyNumber:    "POL-3",
			IncidentDate:    date(2024, 7, 15),
			EstimatedAmount: decimal.NewFromInt(5000),
		}
		if m, _ := Check(ctx, store, c, now); m != nil {
			t.Errorf("expected no match 44 days later, got %+v", m)
		}

		before := &domain.Claim{
			ClaimantName:    "John Smith",
			PolicyNumber:    "POL-3",
			IncidentDate:    date(2024, 5, 20),
			EstimatedAmount: decimal.NewFromInt(5000),
		}
		if m, _ := Check(ctx, store, before, now); m != nil {
			t.Errorf("expected no match for an earlier incident, got %+v", m)
		}
	})

	t.Run("EmailVelocity", func(t *testing.T) {
		recent := &domain.Claim{
			ID:              "claim-2",
			ClaimNumber:     "CLM-2024-0002",
			ClaimantName:    "Jane Doe",
			ClaimantEmail:   "jane@example.com",
			IncidentDate:    date(2024, 1, 5),
			EstimatedAmount: decimal.NewFromInt(100),
			CreatedAt:       now.Add(-6 * 24 * time.Hour),
		}
		s := &memFinder{claims: []*domain.Claim{existing, recent}}

		c := &domain.Claim{
			ClaimantName:    "Janet Different",
			ClaimantEmail:   "jane@example.com",
			PolicyNumber:    "POL-9",
			IncidentDate:    date(2024, 6, 10),
			EstimatedAmount: decimal.NewFromInt(70000),
		}
		m, err := Check(ctx, s, c, now)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if m == nil || m.Check != CheckVelocity || m.ClaimNumber != "CLM-2024-0002" {
			t.Fatalf("expected email velocity match, got %+v", m)
		}

		if m, _ := Check(ctx, s, c, now.Add(2*24*time.Hour)); m != nil {
			t.Errorf("expected no match once the 7 day window passed, got %+v", m)
		}
	})

	t.Run("NoEmailSkipsVelocity", func(t *testing.T) {
		c := &domain.Claim{
			ClaimantName:    "Someone Else",
			PolicyNumber:    "POL-1",
			IncidentDate:    date(2024, 6, 1),
			EstimatedAmount: decimal.NewFromInt(5000),
		}
		if m, _ := Check(ctx, store, c, now); m != nil {
			t.Errorf("expected no match, got %+v", m)
		}
	})

	t.Run("StoreError", func(t *testing.T) {
		boom := errors.New("db down")
		_, err := Check(ctx, &memFinder{err: boom}, &domain.Claim{ClaimantName: "X"}, now)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped store error, got %v", err)
		}
	})
}
