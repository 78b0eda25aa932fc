package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "claimwatch-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedCompany(t *testing.T, repo *SQLRepository, id, name string) {
	t.Helper()
	err := repo.SaveCompany(context.Background(), &domain.Company{
		ID:            id,
		Name:          name,
		LicenseNumber: "LIC-" + id,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveCompany failed: %v", err)
	}
}

func testClaim(id, number, companyID string) *domain.Claim {
	now := time.Now().UTC()
	incident := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Claim{
		ID:              id,
		ClaimNumber:     number,
		PolicyNumber:    "POL-001",
		ClaimantName:    "John Smith",
		ClaimantEmail:   "john@example.com",
		IncidentDate:    incident,
		ReportedDate:    incident.AddDate(0, 0, 2),
		Type:            domain.ClaimTypeAuto,
		Status:          domain.StatusSubmitted,
		EstimatedAmount: decimal.RequireFromString("1234.50"),
		CompanyID:       companyID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCompany(t, repo, "co-1", "Acme Mutual")
	seedCompany(t, repo, "co-2", "Beacon Insurance")

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("InsertAndGetClaim", func(t *testing.T) {
		c := testClaim("claim-1", "CLM-2024-0001", "co-1")
		if err := repo.InsertClaim(ctx, c); err != nil {
			t.Fatalf("InsertClaim failed: %v", err)
		}

		got, err := repo.GetClaim(ctx, "claim-1")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.ClaimNumber != "CLM-2024-0001" {
			t.Errorf("expected claim number CLM-2024-0001, got %s", got.ClaimNumber)
		}
		if !got.EstimatedAmount.Equal(c.EstimatedAmount) {
			t.Errorf("expected amount %s, got %s", c.EstimatedAmount, got.EstimatedAmount)
		}
		if !got.IncidentDate.Equal(c.IncidentDate) {
			t.Errorf("expected incident %v, got %v", c.IncidentDate, got.IncidentDate)
		}
		if got.CompanyName != "Acme Mutual" {
			t.Errorf("expected company name from join, got %q", got.CompanyName)
		}
		if got.ApprovedAmount.Valid {
			t.Error("expected approved amount to be NULL")
		}
	})

	t.Run("ClaimNumberExists", func(t *testing.T) {
		exists, err := repo.ClaimNumberExists(ctx, "CLM-2024-0001")
		if err != nil || !exists {
			t.Errorf("expected CLM-2024-0001 to exist, got %v, %v", exists, err)
		}
		exists, err = repo.ClaimNumberExists(ctx, "CLM-2024-9999")
		if err != nil || exists {
			t.Errorf("expected CLM-2024-9999 to be free, got %v, %v", exists, err)
		}
	})

	t.Run("DuplicateClaimNumberRejected", func(t *testing.T) {
		c := testClaim("claim-dup", "CLM-2024-0001", "co-1")
		if err := repo.InsertClaim(ctx, c); err == nil {
			t.Error("expected unique index to reject a reused claim number")
		}
	})

	t.Run("FindClaims", func(t *testing.T) {
		other := testClaim("claim-2", "CLM-2024-0002", "co-2")
		other.ClaimantName = "Mary Jones"
		other.IncidentDate = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
		other.ReportedDate = other.IncidentDate
		if err := repo.InsertClaim(ctx, other); err != nil {
			t.Fatalf("InsertClaim failed: %v", err)
		}

		all, err := repo.FindClaims(ctx, domain.ClaimQuery{})
		if err != nil {
			t.Fatalf("FindClaims failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 claims, got %d", len(all))
		}

		byCompany, _ := repo.FindClaims(ctx, domain.ClaimQuery{CompanyID: "co-2"})
		if len(byCompany) != 1 || byCompany[0].ID != "claim-2" {
			t.Errorf("expected only claim-2 for co-2, got %d claims", len(byCompany))
		}

		from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
		inWindow, _ := repo.FindClaims(ctx, domain.ClaimQuery{IncidentFrom: &from, IncidentTo: &to})
		if len(inWindow) != 1 || inWindow[0].ClaimantName != "Mary Jones" {
			t.Errorf("expected Mary Jones in February window, got %d claims", len(inWindow))
		}

		excluded, _ := repo.FindClaims(ctx, domain.ClaimQuery{ClaimantName: "John Smith", ExcludeID: "claim-1"})
		if len(excluded) != 0 {
			t.Errorf("expected ExcludeID to drop claim-1, got %d claims", len(excluded))
		}

		since := time.Now().Add(-time.Hour)
		count, err := repo.CountClaims(ctx, domain.ClaimQuery{ClaimantEmail: "john@example.com", CreatedSince: &since})
		if err != nil {
			t.Fatalf("CountClaims failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 claims by email in the last hour, got %d", count)
		}

		future := time.Now().Add(time.Hour)
		count, _ = repo.CountClaims(ctx, domain.ClaimQuery{CreatedSince: &future})
		if count != 0 {
			t.Errorf("expected 0 claims created in the future, got %d", count)
		}
	})

	t.Run("UpdateClaim", func(t *testing.T) {
		c, _ := repo.GetClaim(ctx, "claim-1")
		c.Status = domain.StatusInvestigating
		c.ApprovedAmount = decimal.NewNullDecimal(decimal.NewFromInt(900))
		c.UpdatedAt = time.Now().UTC()
		if err := repo.UpdateClaim(ctx, c); err != nil {
			t.Fatalf("UpdateClaim failed: %v", err)
		}

		got, _ := repo.GetClaim(ctx, "claim-1")
		if got.Status != domain.StatusInvestigating {
			t.Errorf("expected status investigating, got %s", got.Status)
		}
		if !got.ApprovedAmount.Valid || !got.ApprovedAmount.Decimal.Equal(decimal.NewFromInt(900)) {
			t.Errorf("expected approved amount 900, got %+v", got.ApprovedAmount)
		}

		missing := testClaim("nope", "CLM-X", "co-1")
		if err := repo.UpdateClaim(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetClaim(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetFlag(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetUser(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestFraudFlags(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCompany(t, repo, "co-1", "Acme Mutual")
	seedCompany(t, repo, "co-2", "Beacon Insurance")

	if err := repo.InsertClaim(ctx, testClaim("claim-1", "CLM-2024-0001", "co-1")); err != nil {
		t.Fatalf("InsertClaim failed: %v", err)
	}
	if err := repo.InsertClaim(ctx, testClaim("claim-2", "CLM-2024-0002", "co-2")); err != nil {
		t.Fatalf("InsertClaim failed: %v", err)
	}

	now := time.Now().UTC()
	flags := []*domain.FraudFlag{
		{ID: "f-1", ClaimID: "claim-1", Type: domain.FlagAmountAnomaly, Severity: domain.SeverityHigh,
			Description: "high", Confidence: 0.8, FlaggedBy: "system", FlaggedAt: now},
		{ID: "f-2", ClaimID: "claim-1", Type: domain.FlagSimilarClaimant, Severity: domain.SeverityMedium,
			Description: "similar", Confidence: 0.6, FlaggedBy: "system", FlaggedAt: now,
			Metadata: map[string]any{"similar_claims": []any{"CLM-2023-0042"}}},
		{ID: "f-3", ClaimID: "claim-2", Type: domain.FlagTimingAnomaly, Severity: domain.SeverityMedium,
			Description: "same day", Confidence: 0.6, FlaggedBy: "system", FlaggedAt: now},
	}
	for _, f := range flags {
		if err := repo.InsertFlag(ctx, f); err != nil {
			t.Fatalf("InsertFlag %s failed: %v", f.ID, err)
		}
	}

	t.Run("GetFlagJoinsClaim", func(t *testing.T) {
		f, err := repo.GetFlag(ctx, "f-2")
		if err != nil {
			t.Fatalf("GetFlag failed: %v", err)
		}
		if f.Claim == nil || f.Claim.ClaimNumber != "CLM-2024-0001" || f.Claim.CompanyName != "Acme Mutual" {
			t.Errorf("unexpected claim summary: %+v", f.Claim)
		}
		if f.Severity != domain.SeverityMedium {
			t.Errorf("expected medium severity, got %s", f.Severity)
		}
		if _, ok := f.Metadata["similar_claims"]; !ok {
			t.Errorf("expected metadata to round-trip, got %v", f.Metadata)
		}
	})

	t.Run("ListFilters", func(t *testing.T) {
		all, err := repo.ListFlags(ctx, domain.FlagFilter{})
		if err != nil {
			t.Fatalf("ListFlags failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 flags, got %d", len(all))
		}

		medium, _ := repo.ListFlags(ctx, domain.FlagFilter{Severity: domain.SeverityMedium})
		if len(medium) != 2 {
			t.Errorf("expected 2 medium flags, got %d", len(medium))
		}

		company, _ := repo.ListFlags(ctx, domain.FlagFilter{CompanyID: "co-2"})
		if len(company) != 1 || company[0].ID != "f-3" {
			t.Errorf("expected only f-3 for co-2, got %d", len(company))
		}

		byClaim, _ := repo.ListFlags(ctx, domain.FlagFilter{ClaimID: "claim-1"})
		if len(byClaim) != 2 {
			t.Errorf("expected 2 flags for claim-1, got %d", len(byClaim))
		}
	})

	t.Run("ReviewOnce", func(t *testing.T) {
		first := time.Now().UTC()
		if err := repo.MarkFlagReviewed(ctx, "f-1", "Alice Auditor", "checked", first); err != nil {
			t.Fatalf("MarkFlagReviewed failed: %v", err)
		}

		err := repo.MarkFlagReviewed(ctx, "f-1", "Bob Admin", "again", first.Add(time.Hour))
		if !errors.Is(err, domain.ErrAlreadyReviewed) {
			t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
		}

		f, _ := repo.GetFlag(ctx, "f-1")
		if !f.Reviewed || f.ReviewedBy != "Alice Auditor" || f.Notes != "checked" {
			t.Errorf("original review overwritten: %+v", f)
		}
		if f.ReviewedAt == nil {
			t.Error("expected reviewed_at to be set")
		}

		reviewed := true
		done, _ := repo.ListFlags(ctx, domain.FlagFilter{Reviewed: &reviewed})
		if len(done) != 1 {
			t.Errorf("expected 1 reviewed flag, got %d", len(done))
		}

		if err := repo.MarkFlagReviewed(ctx, "missing", "x", "", first); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing flag, got %v", err)
		}
	})

	t.Run("DeleteClaimInTx", func(t *testing.T) {
		err := repo.WithTx(ctx, func(tx domain.Store) error {
			n, err := tx.DeleteFlagsForClaim(ctx, "claim-1")
			if err != nil {
				return err
			}
			if n != 2 {
				t.Errorf("expected 2 flags deleted, got %d", n)
			}
			return tx.DeleteClaim(ctx, "claim-1")
		})
		if err != nil {
			t.Fatalf("delete transaction failed: %v", err)
		}

		if _, err := repo.GetClaim(ctx, "claim-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected claim-1 to be gone, got %v", err)
		}
		left, _ := repo.ListFlags(ctx, domain.FlagFilter{ClaimID: "claim-1"})
		if len(left) != 0 {
			t.Errorf("expected no flags left for claim-1, got %d", len(left))
		}
	})

	t.Run("CascadeOnDelete", func(t *testing.T) {
		if err := repo.DeleteClaim(ctx, "claim-2"); err != nil {
			t.Fatalf("DeleteClaim failed: %v", err)
		}
		if _, err := repo.GetFlag(ctx, "f-3"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected f-3 to cascade, got %v", err)
		}
	})
}

func TestWithTxRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCompany(t, repo, "co-1", "Acme Mutual")

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx domain.Store) error {
		if err := tx.InsertClaim(ctx, testClaim("claim-tx", "CLM-2024-0100", "co-1")); err != nil {
			return err
		}
		exists, err := tx.ClaimNumberExists(ctx, "CLM-2024-0100")
		if err != nil || !exists {
			t.Errorf("expected claim visible inside transaction, got %v, %v", exists, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := repo.GetClaim(ctx, "claim-tx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected rollback to discard claim, got %v", err)
	}
}

func TestAuditAndDirectory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCompany(t, repo, "co-1", "Acme Mutual")

	t.Run("Users", func(t *testing.T) {
		admin := &domain.User{ID: "u-admin", Email: "admin@example.com", Name: "Ada Admin",
			Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()}
		member := &domain.User{ID: "u-1", Email: "clerk@acme.example", Name: "Carl Clerk",
			Role: domain.RoleCompanyUser, CompanyID: "co-1", Active: true, CreatedAt: time.Now().UTC()}
		for _, u := range []*domain.User{admin, member} {
			if err := repo.SaveUser(ctx, u); err != nil {
				t.Fatalf("SaveUser failed: %v", err)
			}
		}

		got, err := repo.GetUser(ctx, "u-admin")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.CompanyID != "" || got.Role != domain.RoleAdmin {
			t.Errorf("unexpected admin: %+v", got)
		}
		got, _ = repo.GetUser(ctx, "u-1")
		if got.CompanyID != "co-1" {
			t.Errorf("expected company co-1, got %q", got.CompanyID)
		}
	})

	t.Run("AppendAudit", func(t *testing.T) {
		entry := &domain.AuditEntry{
			ID:           "a-1",
			UserID:       "system",
			UserName:     "System",
			Action:       domain.ActionDuplicateClaimAttempt,
			ResourceType: domain.ResourceClaim,
			Details:      map[string]any{"risk_level": domain.RiskHigh},
			IPAddress:    "unknown",
			UserAgent:    "unknown",
			Timestamp:    time.Now().UTC(),
		}
		if err := repo.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}

		entries, err := repo.ListAuditEntries(ctx, domain.ActionDuplicateClaimAttempt)
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		if len(entries) != 1 || entries[0].Details["risk_level"] != domain.RiskHigh {
			t.Errorf("unexpected audit entries: %+v", entries)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{
		PostgresUser:     "claims",
		PostgresPassword: "it's secret",
	})

	for _, want := range []string{"host=localhost", "port=5432", "dbname=claimwatch", "sslmode=disable", `password='it\'s secret'`} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
