package domain

// RuleConfig defines a predicate fraud rule: a CEL expression over claim
// attributes that raises one flag when it evaluates to true.
type RuleConfig struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`

	// CEL expression to evaluate; must return bool
	Expression string `yaml:"expression"`

	// Flag raised when the expression holds
	FlagType   FlagType `yaml:"flagType"`
	Severity   string   `yaml:"severity"`
	Confidence float64  `yaml:"confidence"`

	// Whether rule is active
	Enabled bool `yaml:"enabled"`
}
