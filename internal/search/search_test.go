package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimwatch/internal/audit"
	"github.com/opensource-finance/claimwatch/internal/cache"
	"github.com/opensource-finance/claimwatch/internal/domain"
)

type corpus struct {
	mu     sync.Mutex
	claims []*domain.Claim
	scans  int
}

func (c *corpus) FindClaims(_ context.Context, q domain.ClaimQuery) ([]*domain.Claim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans++
	return append([]*domain.Claim(nil), c.claims...), nil
}

func (c *corpus) CountClaims(_ context.Context, q domain.ClaimQuery) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims), nil
}

func (c *corpus) add(number, name, company string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims = append(c.claims, &domain.Claim{
		ID:              "id-" + number,
		ClaimNumber:     number,
		ClaimantName:    name,
		IncidentDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EstimatedAmount: decimal.NewFromInt(1000),
		CompanyID:       company,
		CompanyName:     company,
	})
}

type memWriter struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (m *memWriter) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

var reviewer = domain.Principal{UserID: "u-1", Name: "Rita Reviewer", Role: domain.RoleCompanyUser, CompanyID: "acme"}

func TestSearchSimilarClaims(t *testing.T) {
	ctx := context.Background()

	t.Run("RanksAcrossCompanies", func(t *testing.T) {
		c := &corpus{}
		for i := 0; i < 25; i++ {
			c.add(fmt.Sprintf("CLM-2024-%04d", i), "John Smith", fmt.Sprintf("company-%d", i%3))
		}
		c.add("CLM-2023-0001", "Jon Smith", "beacon")
		c.add("CLM-2023-0002", "Zed Quark", "acme")

		svc := NewService(c, nil, nil, domain.SearchConfig{})
		resp, err := svc.SearchSimilarClaims(ctx, reviewer, "  John   Smith ")
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if resp.SearchTerm != "John Smith" {
			t.Errorf("expected normalised term, got %q", resp.SearchTerm)
		}
		if len(resp.Results) != MaxResults {
			t.Fatalf("expected %d results, got %d", MaxResults, len(resp.Results))
		}
		companies := map[string]bool{}
		for i, r := range resp.Results {
			if r.Similarity < 60 {
				t.Errorf("result %d below threshold: %.2f", i, r.Similarity)
			}
			if i > 0 && resp.Results[i-1].Similarity < r.Similarity {
				t.Errorf("results not sorted at %d", i)
			}
			companies[r.CompanyName] = true
		}
		if len(companies) < 2 {
			t.Errorf("expected results from several companies, got %v", companies)
		}
		if resp.Results[0].Similarity != 100 || resp.Results[0].ClaimNumber != "CLM-2024-0000" {
			t.Errorf("unexpected best match %+v", resp.Results[0])
		}
	})

	t.Run("NearMatchScore", func(t *testing.T) {
		c := &corpus{}
		c.add("CLM-2023-0001", "Jon Smith", "beacon")

		resp, err := NewService(c, nil, nil, domain.SearchConfig{}).SearchSimilarClaims(ctx, reviewer, "John Smith")
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(resp.Results) != 1 || resp.Results[0].Similarity != 94.74 {
			t.Fatalf("expected one result at 94.74, got %+v", resp.Results)
		}
		if resp.Results[0].IncidentDate != "2024-01-01" {
			t.Errorf("unexpected incident date %q", resp.Results[0].IncidentDate)
		}
	})

	t.Run("EmptyName", func(t *testing.T) {
		c := &corpus{}
		c.add("CLM-2023-0001", "Jon Smith", "beacon")
		w := &memWriter{}

		resp, err := NewService(c, nil, audit.NewLogger(w), domain.SearchConfig{}).SearchSimilarClaims(ctx, reviewer, "   ")
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(resp.Results) != 0 || resp.Results == nil {
			t.Errorf("expected an empty result list, got %+v", resp.Results)
		}
		if c.scans != 0 {
			t.Errorf("expected no corpus scan, got %d", c.scans)
		}
		if len(w.entries) != 1 {
			t.Errorf("expected the empty search to be audited")
		}
	})
}

func TestSearchCache(t *testing.T) {
	ctx := context.Background()

	c := &corpus{}
	c.add("CLM-2024-0001", "Mary Jones", "acme")
	w := &memWriter{}
	svc := NewService(c, cache.NewLRUCache(100), audit.NewLogger(w), domain.SearchConfig{CacheTTL: time.Minute})

	first, err := svc.SearchSimilarClaims(ctx, reviewer, "Mary Jones")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if first.Cached || len(first.Results) != 1 {
		t.Fatalf("unexpected first response %+v", first)
	}

	second, err := svc.SearchSimilarClaims(ctx, reviewer, "Mary  Jones")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !second.Cached || len(second.Results) != 1 || second.Results[0].ClaimNumber != "CLM-2024-0001" {
		t.Fatalf("expected cached response, got %+v", second)
	}
	if c.scans != 1 {
		t.Errorf("expected 1 corpus scan, got %d", c.scans)
	}

	c.add("CLM-2024-0002", "Mary Jones", "beacon")
	svc.Invalidate(ctx)

	third, err := svc.SearchSimilarClaims(ctx, reviewer, "Mary Jones")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if third.Cached || len(third.Results) != 2 {
		t.Fatalf("expected a fresh scan with 2 results, got %+v", third)
	}
	if c.scans != 2 {
		t.Errorf("expected 2 corpus scans, got %d", c.scans)
	}

	if len(w.entries) != 3 {
		t.Fatalf("expected every search to be audited, got %d entries", len(w.entries))
	}
	e := w.entries[1]
	if e.Action != domain.ActionSearchSimilarClaims || e.UserID != reviewer.UserID {
		t.Errorf("unexpected audit entry %+v", e)
	}
	if e.Details["search_name"] != "Mary Jones" || e.Details["results_count"] != 1 || e.Details["min_similarity"] != 60.0 {
		t.Errorf("unexpected audit details %+v", e.Details)
	}
}

func TestNewServiceClampsLimit(t *testing.T) {
	svc := NewService(&corpus{}, nil, nil, domain.SearchConfig{MinSimilarity: 75, Limit: 500})
	if svc.limit != MaxResults {
		t.Errorf("expected limit %d, got %d", MaxResults, svc.limit)
	}
	if svc.minScore != 75 {
		t.Errorf("expected min score 75, got %v", svc.minScore)
	}
}
