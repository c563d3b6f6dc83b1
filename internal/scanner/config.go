package scanner

import "github.com/DHARANI2D/AEGIS/internal/model"

// Config maps finding types to severities. Severity thresholds are
// configuration, not code: operators can downgrade or upgrade a detector
// without touching the pipeline.
type Config struct {
	Severities map[string]model.RiskLevel `yaml:"severities"`
}

// DefaultConfig returns the built-in severity table.
func DefaultConfig() *Config {
	return &Config{
		Severities: map[string]model.RiskLevel{
			TypeSSN:         model.RiskCritical,
			TypeCreditCard:  model.RiskCritical,
			TypeCredential:  model.RiskCritical,
			TypeHighEntropy: model.RiskHigh,
			TypeInjection:   model.RiskHigh,
			TypeEmail:       model.RiskMedium,
			TypeIP:          model.RiskMedium,
		},
	}
}

// SeverityFor returns the configured severity for a finding type.
// Unknown types report HIGH rather than silently dropping to low risk.
func (c *Config) SeverityFor(typ string) model.RiskLevel {
	if s, ok := c.Severities[typ]; ok {
		return s
	}
	return model.RiskHigh
}
