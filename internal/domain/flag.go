package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FlagType classifies why a claim was flagged.
type FlagType string

const (
	FlagSimilarClaimant   FlagType = "similar_claimant"
	FlagAmountAnomaly     FlagType = "amount_anomaly"
	FlagDuplicateClaim    FlagType = "duplicate_claim"
	FlagTimingAnomaly     FlagType = "timing_anomaly"
	FlagSuspiciousPattern FlagType = "suspicious_pattern"
	FlagDocumentAnomaly   FlagType = "document_anomaly"
)

// Valid reports whether t is a known flag type.
func (t FlagType) Valid() bool {
	switch t {
	case FlagSimilarClaimant, FlagAmountAnomaly, FlagDuplicateClaim,
		FlagTimingAnomaly, FlagSuspiciousPattern, FlagDocumentAnomaly:
		return true
	}
	return false
}

// Severity is an ordered risk level: low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// Compare returns -1, 0 or +1 ordering s against o.
func (s Severity) Compare(o Severity) int {
	switch {
	case s < o:
		return -1
	case s > o:
		return 1
	}
	return 0
}

// MaxSeverity returns the highest of the given levels, or 0 when none.
func MaxSeverity(levels ...Severity) Severity {
	var max Severity
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// ParseSeverity parses a lower-case severity name.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the severity by name.
func (s Severity) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return s.String(), nil
}

// Scan reads a severity stored by name.
func (s *Severity) Scan(src any) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Severity", src)
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FlagCandidate is a rule's verdict before it is persisted as a FraudFlag.
type FlagCandidate struct {
	RuleID      string         `json:"ruleId"`
	Type        FlagType       `json:"flagType"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FraudFlag is a persisted finding attached to a claim.
type FraudFlag struct {
	ID          string         `json:"id"`
	ClaimID     string         `json:"claimId"`
	Type        FlagType       `json:"flagType"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	FlaggedBy   string         `json:"flaggedBy"`
	FlaggedAt   time.Time      `json:"flaggedAt"`
	Reviewed    bool           `json:"reviewed"`
	ReviewedBy  string         `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time     `json:"reviewedAt,omitempty"`
	Notes       string         `json:"notes,omitempty"`

	// Claim is the joined claim summary on listing paths.
	Claim *FlagClaim `json:"claim,omitempty"`
}

// FlagClaim is the claim context shown next to a flag in review queues.
type FlagClaim struct {
	ClaimNumber     string          `json:"claimNumber"`
	ClaimantName    string          `json:"claimantName"`
	EstimatedAmount decimal.Decimal `json:"estimatedAmount"`
	Type            ClaimType       `json:"claimType"`
	CompanyID       string          `json:"companyId"`
	CompanyName     string          `json:"companyName"`
}

// FlagFilter narrows a flag listing. Zero-valued fields match everything.
type FlagFilter struct {
	Severity  Severity
	Reviewed  *bool
	ClaimID   string
	CompanyID string
}
