package model

// Decision is the verdict for one proposed intent.
type Decision string

const (
	Allow    Decision = "ALLOW"
	Deny     Decision = "DENY"
	Escalate Decision = "ESCALATE"
)

// Restrictiveness orders decisions so that ties always resolve toward the
// most restrictive outcome: DENY > ESCALATE > ALLOW.
func (d Decision) Restrictiveness() int {
	switch d {
	case Deny:
		return 2
	case Escalate:
		return 1
	case Allow:
		return 0
	default:
		return 2 // unknown decisions are treated as DENY
	}
}

// MoreRestrictive returns the stricter of two decisions.
func MoreRestrictive(a, b Decision) Decision {
	if b.Restrictiveness() > a.Restrictiveness() {
		return b
	}
	return a
}

// RiskLevel classifies the blast radius of an intent.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskRank maps risk levels to comparable integers.
var RiskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Environment is the target environment of an intent.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
	EnvDev        Environment = "dev"
)

// KnownEnvironment reports whether e is one of the recognized environments.
func KnownEnvironment(e Environment) bool {
	switch e {
	case EnvProduction, EnvStaging, EnvDev:
		return true
	}
	return false
}
