// Package triage condenses the flags of one fraud evaluation into the
// summary that is audited and published for reviewers.
package triage

import (
	"math"
	"sort"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// Processor aggregates flag candidates into a Summary.
type Processor struct {
	// EscalationScore is the combined risk at or above which a claim is
	// escalated even without a critical flag.
	EscalationScore float64
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		EscalationScore: 0.95,
	}
}

// Summary describes one evaluation pass.
type Summary struct {
	FlagsCount      int
	HighestSeverity domain.Severity
	FlagTypes       []domain.FlagType
	RiskScore       float64
	Escalate        bool
	Reasons         []string
}

// Summarize aggregates candidates. Flag types are distinct and sorted.
func (p *Processor) Summarize(candidates []domain.FlagCandidate) Summary {
	s := Summary{FlagsCount: len(candidates)}
	if len(candidates) == 0 {
		return s
	}

	seen := make(map[domain.FlagType]bool)
	clean := 1.0
	for _, c := range candidates {
		s.HighestSeverity = domain.MaxSeverity(s.HighestSeverity, c.Severity)
		if !seen[c.Type] {
			seen[c.Type] = true
			s.FlagTypes = append(s.FlagTypes, c.Type)
		}
		clean *= 1 - clamp01(c.Confidence)
		if c.Description != "" {
			s.Reasons = append(s.Reasons, c.Description)
		}
	}
	sort.Slice(s.FlagTypes, func(i, j int) bool { return s.FlagTypes[i] < s.FlagTypes[j] })

	// Independent findings: the claim is clean only if every flag is wrong.
	s.RiskScore = math.Round((1-clean)*1000) / 1000
	s.Escalate = s.HighestSeverity == domain.SeverityCritical || s.RiskScore >= p.EscalationScore

	return s
}

// AuditDetails renders the summary as FRAUD_FLAGS_GENERATED details.
func (s Summary) AuditDetails(claimID string) map[string]any {
	types := make([]string, len(s.FlagTypes))
	for i, t := range s.FlagTypes {
		types[i] = string(t)
	}
	return map[string]any{
		"claim_id":         claimID,
		"flags_count":      s.FlagsCount,
		"highest_severity": s.HighestSeverity.String(),
		"flag_types":       types,
		"risk_score":       s.RiskScore,
		"escalate":         s.Escalate,
	}
}

// Event renders the summary as a flags-generated bus event.
func (s Summary) Event(claimID string) domain.FlagsGeneratedEvent {
	return domain.FlagsGeneratedEvent{
		ClaimID:         claimID,
		FlagsCount:      s.FlagsCount,
		HighestSeverity: s.HighestSeverity,
		FlagTypes:       s.FlagTypes,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
