package scanner

import (
	"math"
	"regexp"
	"strings"

	"github.com/DHARANI2D/AEGIS/internal/model"
)

// Finding types reported by the scanner.
const (
	TypeSSN         = "SSN"
	TypeCreditCard  = "CREDIT_CARD"
	TypeEmail       = "EMAIL"
	TypeIP          = "IP_ADDRESS"
	TypeCredential  = "CREDENTIAL"
	TypeHighEntropy = "HIGH_ENTROPY_TOKEN"
	TypeInjection   = "PROMPT_INJECTION"
)

// Compiled patterns for sensitive data detection.
var (
	// US SSN shape: 3-2-4 digit groups.
	ssnRe = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// Card-shaped digit runs, 13-19 digits with optional separators.
	// Candidates are Luhn-checked before being reported.
	cardRe = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

	// Email addresses.
	emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)

	// IPv4 addresses (shape only, no range validation).
	ipv4Re = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

	// Credentials: key=value pairs where the key suggests a secret.
	credKVRe = regexp.MustCompile(`(?i)(?:password|passwd|secret|token|api[_-]?key|apikey|auth)[ \t]*[=:][ \t]*\S+`)

	// Long unbroken tokens that are candidates for entropy analysis.
	tokenRe = regexp.MustCompile(`\b[A-Za-z0-9+/_\-]{24,}\b`)
)

// injectionCues are jailbreak and prompt-injection markers. Matches are
// reported as findings so the decision layer can act on them.
var injectionCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)sudo execute`),
	regexp.MustCompile(`(?i)base64 decode this`),
	regexp.MustCompile(`(?i)bypass policy`),
}

// entropyThreshold is the minimum Shannon entropy (bits per character)
// for a long token to count as a secret-like blob.
const entropyThreshold = 3.5

// Scan runs every detector independently over text and unions the results.
// Overlapping findings are all reported — completeness over neatness, since
// findings feed a deny decision. The raw matched text never appears in a
// Finding beyond its redacted form.
func Scan(text string, cfg *Config) []model.Finding {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var findings []model.Finding
	add := func(typ string, start, end int) {
		findings = append(findings, model.Finding{
			Type:     typ,
			Severity: cfg.SeverityFor(typ),
			Start:    start,
			End:      end,
			Redacted: RedactValue(text[start:end]),
		})
	}

	for _, loc := range ssnRe.FindAllStringIndex(text, -1) {
		add(TypeSSN, loc[0], loc[1])
	}

	for _, loc := range cardRe.FindAllStringIndex(text, -1) {
		if luhnValid(text[loc[0]:loc[1]]) {
			add(TypeCreditCard, loc[0], loc[1])
		}
	}

	for _, loc := range emailRe.FindAllStringIndex(text, -1) {
		add(TypeEmail, loc[0], loc[1])
	}

	for _, loc := range ipv4Re.FindAllStringIndex(text, -1) {
		add(TypeIP, loc[0], loc[1])
	}

	for _, loc := range credKVRe.FindAllStringIndex(text, -1) {
		add(TypeCredential, loc[0], loc[1])
	}

	for _, loc := range tokenRe.FindAllStringIndex(text, -1) {
		if shannonEntropy(text[loc[0]:loc[1]]) >= entropyThreshold {
			add(TypeHighEntropy, loc[0], loc[1])
		}
	}

	for _, cue := range injectionCues {
		for _, loc := range cue.FindAllStringIndex(text, -1) {
			add(TypeInjection, loc[0], loc[1])
		}
	}

	return findings
}

// MaxSeverity returns the highest severity across findings, or "" for none.
func MaxSeverity(findings []model.Finding) model.RiskLevel {
	var max model.RiskLevel
	rank := -1
	for _, f := range findings {
		if r := model.RiskRank[f.Severity]; r > rank {
			rank = r
			max = f.Severity
		}
	}
	return max
}

// RedactValue keeps only the first and last two characters of a match.
// This is the privacy boundary: everything between is collapsed to
// asterisks and nothing else of the raw value survives.
func RedactValue(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return v[:2] + strings.Repeat("*", 4) + v[len(v)-2:]
}

// luhnValid checks the Luhn checksum over the digits of s.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// shannonEntropy returns bits of entropy per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]float64)
	for _, r := range s {
		freq[r]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range freq {
		p := c / n
		h -= p * math.Log2(p)
	}
	return h
}
