package trust

import (
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// Config holds the tunable trust schedule. The exact magnitudes are
// deployment policy, not code: everything here can be overridden.
type Config struct {
	// Penalties per risk level for a DENY. Must be strictly increasing
	// with risk.
	Penalties map[model.RiskLevel]float64 `yaml:"penalties"`
	// RepeatWindow is how recently a prior DENY of the same intent must
	// have occurred to count as a repeat offense.
	RepeatWindow time.Duration `yaml:"repeat_window"`
	// RepeatMultiplier amplifies the penalty on a repeat offense.
	RepeatMultiplier float64 `yaml:"repeat_multiplier"`
	// RecoveryPerAllow is the trust gained per ALLOW, bounded at 100.
	// Recovery is event-driven, never wall-clock-driven, so replaying the
	// ledger reproduces trust exactly.
	RecoveryPerAllow float64 `yaml:"recovery_per_allow"`
	// TimelineDepth is how many recent events are retained per agent for
	// investigation evidence.
	TimelineDepth int `yaml:"timeline_depth"`
}

// DefaultConfig returns the built-in trust schedule.
func DefaultConfig() Config {
	return Config{
		Penalties: map[model.RiskLevel]float64{
			model.RiskLow:      5,
			model.RiskMedium:   10,
			model.RiskHigh:     20,
			model.RiskCritical: 34,
		},
		RepeatWindow:     30 * time.Second,
		RepeatMultiplier: 1.5,
		RecoveryPerAllow: 1.0,
		TimelineDepth:    20,
	}
}

// Penalty returns the deduction for a DENY at the given risk level.
func (c Config) Penalty(risk model.RiskLevel) float64 {
	if p, ok := c.Penalties[risk]; ok {
		return p
	}
	return c.Penalties[model.RiskCritical]
}
