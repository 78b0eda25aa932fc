package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// ClaimType is the line of business a claim belongs to.
type ClaimType string

const (
	ClaimTypeAuto      ClaimType = "auto"
	ClaimTypeProperty  ClaimType = "property"
	ClaimTypeHealth    ClaimType = "health"
	ClaimTypeLife      ClaimType = "life"
	ClaimTypeLiability ClaimType = "liability"
)

// Valid reports whether t is a known claim type.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeAuto, ClaimTypeProperty, ClaimTypeHealth, ClaimTypeLife, ClaimTypeLiability:
		return true
	}
	return false
}

// ClaimStatus is the processing state of a claim.
type ClaimStatus string

const (
	StatusSubmitted     ClaimStatus = "submitted"
	StatusInvestigating ClaimStatus = "investigating"
	StatusApproved      ClaimStatus = "approved"
	StatusDeclined      ClaimStatus = "declined"
	StatusPaid          ClaimStatus = "paid"
	StatusRejected      ClaimStatus = "rejected"
)

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInvestigating, StatusApproved, StatusDeclined, StatusPaid, StatusRejected:
		return true
	}
	return false
}

// Claim is a persisted insurance claim.
type Claim struct {
	ID              string              `json:"id"`
	ClaimNumber     string              `json:"claimNumber"`
	PolicyNumber    string              `json:"policyNumber"`
	ClaimantName    string              `json:"claimantName"`
	ClaimantEmail   string              `json:"claimantEmail,omitempty"`
	ClaimantPhone   string              `json:"claimantPhone,omitempty"`
	IncidentDate    time.Time           `json:"incidentDate"`
	ReportedDate    time.Time           `json:"reportedDate"`
	Type            ClaimType           `json:"claimType"`
	Status          ClaimStatus         `json:"status"`
	Description     string              `json:"description,omitempty"`
	EstimatedAmount decimal.Decimal     `json:"estimatedAmount"`
	ApprovedAmount  decimal.NullDecimal `json:"approvedAmount"`
	AssignedTo      string              `json:"assignedTo,omitempty"`
	CompanyID       string              `json:"companyId"`
	CompanyName     string              `json:"companyName,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`

	// Flags is populated by read paths that attach fraud flags.
	Flags []*FraudFlag `json:"fraudFlags,omitempty"`
}

// EmailDomain returns the lower-cased domain part of the claimant email.
func (c *Claim) EmailDomain() string {
	at := strings.LastIndex(c.ClaimantEmail, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(c.ClaimantEmail[at+1:])
}

// ClaimInput is the submission payload for a new claim.
type ClaimInput struct {
	PolicyNumber    string          `json:"policyNumber"`
	ClaimantName    string          `json:"claimantName"`
	ClaimantEmail   string          `json:"claimantEmail,omitempty"`
	ClaimantPhone   string          `json:"claimantPhone,omitempty"`
	IncidentDate    string          `json:"incidentDate"`
	ReportedDate    string          `json:"reportedDate,omitempty"`
	ClaimType       string          `json:"claimType"`
	Status          string          `json:"status,omitempty"`
	Description     string          `json:"description,omitempty"`
	EstimatedAmount decimal.Decimal `json:"estimatedAmount"`

	// CompanyID is honoured for administrators only.
	CompanyID string `json:"companyId,omitempty"`
}

// Validate checks the input and builds an unsaved Claim from it.
// The reported date defaults to today.
func (in *ClaimInput) Validate(now time.Time) (*Claim, error) {
	today := truncateDay(now)

	c := &Claim{
		PolicyNumber:    strings.TrimSpace(in.PolicyNumber),
		ClaimantName:    strings.Join(strings.Fields(in.ClaimantName), " "),
		ClaimantEmail:   strings.ToLower(strings.TrimSpace(in.ClaimantEmail)),
		ClaimantPhone:   strings.TrimSpace(in.ClaimantPhone),
		Type:            ClaimType(strings.TrimSpace(in.ClaimType)),
		Status:          ClaimStatus(strings.TrimSpace(in.Status)),
		Description:     strings.TrimSpace(in.Description),
		EstimatedAmount: in.EstimatedAmount,
	}

	if c.PolicyNumber == "" {
		return nil, &ValidationError{Field: "policyNumber", Message: "is required"}
	}
	if c.ClaimantName == "" {
		return nil, &ValidationError{Field: "claimantName", Message: "is required"}
	}
	if c.ClaimantEmail != "" && !plausibleEmail(c.ClaimantEmail) {
		return nil, &ValidationError{Field: "claimantEmail", Message: "is not a valid email address"}
	}
	if !c.Type.Valid() {
		return nil, &ValidationError{Field: "claimType", Message: "must be one of auto, property, health, life, liability"}
	}
	if c.Status == "" {
		c.Status = StatusSubmitted
	} else if !c.Status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "is not a valid claim status"}
	}
	if !c.EstimatedAmount.IsPositive() {
		return nil, &ValidationError{Field: "estimatedAmount", Message: "must be positive"}
	}

	incident, err := ParseDate(in.IncidentDate)
	if err != nil {
		return nil, &ValidationError{Field: "incidentDate", Message: "must be a YYYY-MM-DD date"}
	}
	if incident.After(today) {
		return nil, &ValidationError{Field: "incidentDate", Message: "cannot be in the future"}
	}
	reported := today
	if strings.TrimSpace(in.ReportedDate) != "" {
		reported, err = ParseDate(in.ReportedDate)
		if err != nil {
			return nil, &ValidationError{Field: "reportedDate", Message: "must be a YYYY-MM-DD date"}
		}
	}
	if reported.Before(incident) {
		return nil, &ValidationError{Field: "reportedDate", Message: "cannot be before the incident date"}
	}
	if reported.After(today) {
		return nil, &ValidationError{Field: "reportedDate", Message: "cannot be in the future"}
	}
	c.IncidentDate = incident
	c.ReportedDate = reported

	return c, nil
}

// ClaimPatch carries the fields an update may change. Nil means unchanged.
type ClaimPatch struct {
	Status          *string          `json:"status,omitempty"`
	Description     *string          `json:"description,omitempty"`
	EstimatedAmount *decimal.Decimal `json:"estimatedAmount,omitempty"`
	ApprovedAmount  *decimal.Decimal `json:"approvedAmount,omitempty"`
	AssignedTo      *string          `json:"assignedTo,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p *ClaimPatch) Empty() bool {
	return p.Status == nil && p.Description == nil && p.EstimatedAmount == nil &&
		p.ApprovedAmount == nil && p.AssignedTo == nil
}

// Apply validates the patch and writes it onto c. It returns the names of
// the changed fields.
func (p *ClaimPatch) Apply(c *Claim) ([]string, error) {
	if p.Empty() {
		return nil, &ValidationError{Field: "body", Message: "no valid fields to update"}
	}

	var changed []string
	if p.Status != nil {
		s := ClaimStatus(strings.TrimSpace(*p.Status))
		if !s.Valid() {
			return nil, &ValidationError{Field: "status", Message: "is not a valid claim status"}
		}
		c.Status = s
		changed = append(changed, "status")
	}
	if p.Description != nil {
		c.Description = strings.TrimSpace(*p.Description)
		changed = append(changed, "description")
	}
	if p.EstimatedAmount != nil {
		if !p.EstimatedAmount.IsPositive() {
			return nil, &ValidationError{Field: "estimatedAmount", Message: "must be positive"}
		}
		c.EstimatedAmount = *p.EstimatedAmount
		changed = append(changed, "estimated_amount")
	}
	if p.ApprovedAmount != nil {
		if p.ApprovedAmount.IsNegative() {
			return nil, &ValidationError{Field: "approvedAmount", Message: "cannot be negative"}
		}
		c.ApprovedAmount = decimal.NewNullDecimal(*p.ApprovedAmount)
		changed = append(changed, "approved_amount")
	}
	if p.AssignedTo != nil {
		c.AssignedTo = strings.TrimSpace(*p.AssignedTo)
		changed = append(changed, "assigned_to")
	}
	return changed, nil
}

// ClaimQuery selects claims. Zero-valued fields do not constrain the result.
type ClaimQuery struct {
	CompanyID     string
	ClaimantName  string
	ClaimantEmail string
	PolicyNumber  string
	IncidentDate  *time.Time
	IncidentFrom  *time.Time
	IncidentTo    *time.Time
	CreatedSince  *time.Time
	ExcludeID     string
	Limit         int
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func plausibleEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}
