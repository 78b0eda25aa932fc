// Package search finds claims whose claimant resembles a given name across
// every company's claims.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimwatch/internal/audit"
	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/similarity"
)

var tracer = otel.Tracer("claimwatch/search")

const (
	cacheScope = "search"
	versionKey = "corpus-version"

	// MaxResults caps every search regardless of configuration.
	MaxResults = 20

	versionTTL = 24 * time.Hour
)

// Result is one similar claim.
type Result struct {
	ClaimID         string          `json:"claimId"`
	ClaimNumber     string          `json:"claimNumber"`
	ClaimantName    string          `json:"claimantName"`
	IncidentDate    string          `json:"incidentDate"`
	EstimatedAmount decimal.Decimal `json:"estimatedAmount"`
	CompanyName     string          `json:"companyName"`
	Similarity      float64         `json:"similarity"`
}

// Response is the outcome of one search.
type Response struct {
	SearchTerm string   `json:"searchTerm"`
	Results    []Result `json:"similarClaims"`
	Cached     bool     `json:"-"`
}

// Service ranks the claim corpus against a name.
type Service struct {
	finder   domain.ClaimFinder
	cache    domain.Cache
	audit    *audit.Logger
	minScore float64
	limit    int
	ttl      time.Duration
}

// NewService creates a search service. A nil cache disables result caching.
func NewService(finder domain.ClaimFinder, cache domain.Cache, auditor *audit.Logger, cfg domain.SearchConfig) *Service {
	s := &Service{
		finder:   finder,
		cache:    cache,
		audit:    auditor,
		minScore: cfg.MinSimilarity,
		limit:    cfg.Limit,
		ttl:      cfg.CacheTTL,
	}
	if s.minScore <= 0 {
		s.minScore = similarity.DefaultMinScore
	}
	if s.limit <= 0 || s.limit > MaxResults {
		s.limit = MaxResults
	}
	return s
}

// SearchSimilarClaims returns up to 20 claims whose claimant name resembles
// name, best match first. Every call is audited, cached or not.
func (s *Service) SearchSimilarClaims(ctx context.Context, p domain.Principal, name string) (*Response, error) {
	term := similarity.Normalize(name)

	ctx, span := tracer.Start(ctx, "search.SearchSimilarClaims",
		trace.WithAttributes(attribute.Int("search.term_length", len(term))),
	)
	defer span.End()

	resp, err := s.lookup(ctx, term)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("search.results", len(resp.Results)),
		attribute.Bool("search.cached", resp.Cached),
	)

	s.audit.Record(ctx, p, domain.ActionSearchSimilarClaims, domain.ResourceSearch, "similar_claims", map[string]any{
		"search_name":    term,
		"results_count":  len(resp.Results),
		"min_similarity": s.minScore,
	})

	return resp, nil
}

func (s *Service) lookup(ctx context.Context, term string) (*Response, error) {
	resp := &Response{SearchTerm: term, Results: []Result{}}
	if term == "" {
		return resp, nil
	}

	key := ""
	if s.cache != nil && s.ttl > 0 {
		key = s.version(ctx) + ":" + term
		if raw, err := s.cache.Get(ctx, cacheScope, key); err != nil {
			slog.Warn("search cache read failed", "error", err)
		} else if raw != nil {
			var results []Result
			if err := json.Unmarshal(raw, &results); err == nil {
				resp.Results = results
				resp.Cached = true
				return resp, nil
			}
		}
	}

	corpus, err := s.finder.FindClaims(ctx, domain.ClaimQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}

	candidates := make([]similarity.Candidate, len(corpus))
	for i, c := range corpus {
		candidates[i] = similarity.Candidate{Key: c.ClaimNumber, Name: c.ClaimantName}
	}
	for _, m := range similarity.Rank(term, candidates, s.minScore, s.limit) {
		c := corpus[m.Index]
		resp.Results = append(resp.Results, Result{
			ClaimID:         c.ID,
			ClaimNumber:     c.ClaimNumber,
			ClaimantName:    c.ClaimantName,
			IncidentDate:    c.IncidentDate.Format(domain.DateLayout),
			EstimatedAmount: c.EstimatedAmount,
			CompanyName:     c.CompanyName,
			Similarity:      m.Score,
		})
	}

	if key != "" {
		if raw, err := json.Marshal(resp.Results); err == nil {
			if err := s.cache.Set(ctx, cacheScope, key, raw, s.ttl); err != nil {
				slog.Warn("search cache write failed", "error", err)
			}
		}
	}
	return resp, nil
}

// version returns the current corpus version, creating one if none is set.
func (s *Service) version(ctx context.Context) string {
	raw, err := s.cache.Get(ctx, cacheScope, versionKey)
	if err == nil && len(raw) > 0 {
		return string(raw)
	}
	return s.bump(ctx)
}

func (s *Service) bump(ctx context.Context) string {
	v := uuid.New().String()
	if err := s.cache.Set(ctx, cacheScope, versionKey, []byte(v), versionTTL); err != nil {
		slog.Warn("search cache version update failed", "error", err)
	}
	return v
}

// Invalidate retires every cached result. Called after any claim change.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.bump(ctx)
}
