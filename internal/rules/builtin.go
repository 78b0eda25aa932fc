package rules

import "github.com/opensource-finance/claimwatch/internal/domain"

// BuiltinRules returns the predicate rules every deployment starts with.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "amount-high",
			Description: "Claim amount exceeds typical threshold ($50,000)",
			Expression:  "amount > 50000.0",
			FlagType:    domain.FlagAmountAnomaly,
			Severity:    "high",
			Confidence:  0.8,
			Enabled:     true,
		},
		{
			ID:          "amount-critical",
			Description: "Claim amount exceeds critical threshold ($100,000)",
			Expression:  "amount > 100000.0",
			FlagType:    domain.FlagAmountAnomaly,
			Severity:    "critical",
			Confidence:  0.95,
			Enabled:     true,
		},
		{
			ID:          "same-day-report",
			Description: "Claim reported on same day as incident",
			Expression:  "report_gap_days == 0",
			FlagType:    domain.FlagTimingAnomaly,
			Severity:    "medium",
			Confidence:  0.6,
			Enabled:     true,
		},
		{
			ID:          "weekend-incident",
			Description: "Incident occurred on weekend",
			Expression:  "incident_weekday == 0 || incident_weekday == 6",
			FlagType:    domain.FlagTimingAnomaly,
			Severity:    "low",
			Confidence:  0.4,
			Enabled:     true,
		},
		{
			ID:          "disposable-email",
			Description: "Claimant using temporary email service",
			Expression:  `email_domain != "" && email_domain in disposable_domains`,
			FlagType:    domain.FlagDocumentAnomaly,
			Severity:    "medium",
			Confidence:  0.7,
			Enabled:     true,
		},
	}
}
