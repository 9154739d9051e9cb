package analysis

import "strings"

const (
	recommendationClean  = "No significant anomalies detected. The contract appears to follow common patterns."
	recommendationHeader = "The contract contains unusual patterns that may indicate potential issues:"

	summaryClean     = "This contract follows common patterns and doesn't exhibit unusual characteristics."
	summaryNoFactors = "This contract deviates from common patterns, but no specific risk factors were identified."
)

// remediations holds one fixed advice line per factor name. Lines keep the
// wording downstream tooling matches on.
var remediations = map[string]string{
	"selfdestruct_calls":               "- Implement strict access controls for selfdestruct operations.",
	"external_calls":                   "- Review and limit external calls. Consider implementing the checks-effects-interactions pattern.",
	"tx_origin_uses":                   "- Replace tx.origin with msg.sender to prevent phishing attacks.",
	"assembly_blocks":                  "- Review inline assembly code carefully for potential bugs or vulnerabilities.",
	"missing_reentrancy_protection":    "- Implement reentrancy guards (like OpenZeppelin's ReentrancyGuard) for functions making external calls.",
	"missing_safe_math":                "- Use SafeMath library or Solidity 0.8.0+ for automatic overflow/underflow protection.",
	"high_complexity":                  "- Consider refactoring complex functions into smaller, more manageable pieces.",
	"large_contract_size":              "- Split large contracts into smaller, specialized contracts to improve readability and gas efficiency.",
	"low_require_checks":               "- Add thorough input validation with require statements for each function.",
	"high_external_calls_per_function": "- Review and possibly reduce the number of external calls per function to limit exposure.",
}

// highRiskFactors force a High rating on their own, independent of score.
var highRiskFactors = map[string]bool{
	"selfdestruct_calls":            true,
	"tx_origin_uses":                true,
	"missing_reentrancy_protection": true,
}

// summaryCategories groups factors for the narrative summary, in report
// order. A factor belongs to the first category that lists it.
var summaryCategories = []struct {
	label   string
	members map[string]bool
}{
	{"Security", map[string]bool{
		"selfdestruct_calls":            true,
		"tx_origin_uses":                true,
		"missing_reentrancy_protection": true,
		"missing_safe_math":             true,
	}},
	{"Complexity", map[string]bool{
		"high_complexity":     true,
		"large_contract_size": true,
	}},
	{"Structure", map[string]bool{
		"external_calls":                   true,
		"high_external_calls_per_function": true,
		"low_require_checks":               true,
		"assembly_blocks":                  true,
	}},
}

// Compose renders remediation text for the triggered factors, one advice
// line per factor in factor order.
func Compose(factors []AnomalyFactor) string {
	if len(factors) == 0 {
		return recommendationClean
	}

	lines := make([]string, 0, len(factors)+1)
	lines = append(lines, recommendationHeader)
	seen := make(map[string]bool, len(factors))
	for _, f := range factors {
		line, ok := remediations[f.Factor]
		if !ok || seen[f.Factor] {
			continue
		}
		seen[f.Factor] = true
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RiskFor grades a verdict into the ordinal reported to callers.
func RiskFor(anomalous bool, score float64, factors []AnomalyFactor) RiskLevel {
	if !anomalous {
		return RiskLow
	}
	for _, f := range factors {
		if highRiskFactors[f.Factor] {
			return RiskHigh
		}
	}
	switch {
	case score < -0.8:
		return RiskHigh
	case score < -0.6:
		return RiskMedium
	default:
		return RiskLowMedium
	}
}

// Summarize builds the category-grouped narrative for an analysis.
func Summarize(anomalous bool, factors []AnomalyFactor) string {
	if !anomalous {
		return summaryClean
	}
	if len(factors) == 0 {
		return summaryNoFactors
	}

	grouped := make(map[string][]string, len(summaryCategories))
	for _, f := range factors {
		for _, c := range summaryCategories {
			if c.members[f.Factor] {
				grouped[c.label] = append(grouped[c.label], f.Description)
				break
			}
		}
	}

	parts := make([]string, 0, len(summaryCategories))
	for _, c := range summaryCategories {
		if descs := grouped[c.label]; len(descs) > 0 {
			parts = append(parts, c.label+" issues: "+strings.Join(descs, ", "))
		}
	}
	return strings.Join(parts, " ")
}
