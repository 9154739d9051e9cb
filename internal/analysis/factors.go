package analysis

import (
	"strconv"
	"strings"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/features"
)

// factorRule pairs a feature predicate with the factor it reports.
// Rules run in declaration order so factor lists stay stable across runs.
type factorRule struct {
	name     string
	applies  func(features.Vector) bool
	value    func(features.Vector) float64
	describe func(value float64) string
}

var factorRules = []factorRule{
	{
		name:     "large_contract_size",
		applies:  func(v features.Vector) bool { return v["contract_size"] > 10000 },
		value:    valueOf("contract_size"),
		describe: fixedDescription("Contract is unusually large which may indicate complexity issues"),
	},
	countRule("selfdestruct_calls", 0),
	countRule("external_calls", 5),
	countRule("tx_origin_uses", 0),
	countRule("assembly_blocks", 3),
	{
		name: "missing_reentrancy_protection",
		applies: func(v features.Vector) bool {
			return v["reentrancy_protection"] == 0 && v["external_calls"] > 0
		},
		value:    valueOf("external_calls"),
		describe: fixedDescription("Contract makes external calls but has no reentrancy protection"),
	},
	{
		name:     "missing_safe_math",
		applies:  func(v features.Vector) bool { return v["using_safe_math"] == 0 },
		value:    func(features.Vector) float64 { return 0 },
		describe: fixedDescription("Contract does not use SafeMath which may indicate vulnerability to overflow/underflow"),
	},
	{
		name:     "high_complexity",
		applies:  func(v features.Vector) bool { return v["cyclomatic_complexity"] > 50 },
		value:    valueOf("cyclomatic_complexity"),
		describe: fixedDescription("Contract has high cyclomatic complexity which may indicate maintainability issues"),
	},
	{
		name:     "high_external_calls_per_function",
		applies:  func(v features.Vector) bool { return v["external_calls_per_function"] > 2 },
		value:    valueOf("external_calls_per_function"),
		describe: fixedDescription("Contract has unusually high ratio of external calls per function"),
	},
	{
		name: "low_require_checks",
		applies: func(v features.Vector) bool {
			return v["require_per_function"] < 0.5 && v["function_count"] > 5
		},
		value:    valueOf("require_per_function"),
		describe: fixedDescription("Contract has low number of require checks per function which may indicate missing validation"),
	},
}

// AnalyzeFactors reports which risk patterns a feature vector trips. The
// verdict gates the whole table: a contract the model considers normal gets
// an empty factor list even when individual thresholds are exceeded.
func AnalyzeFactors(v features.Vector, anomalous bool) []AnomalyFactor {
	factors := []AnomalyFactor{}
	if !anomalous {
		return factors
	}
	for _, r := range factorRules {
		if !r.applies(v) {
			continue
		}
		val := r.value(v)
		factors = append(factors, AnomalyFactor{
			Factor:      r.name,
			Description: r.describe(val),
			Value:       val,
		})
	}
	return factors
}

// countRule flags a raw count exceeding a fixed threshold. The factor is
// named after the feature key itself.
func countRule(key string, threshold float64) factorRule {
	label := strings.ReplaceAll(key, "_", " ")
	return factorRule{
		name:    key,
		applies: func(v features.Vector) bool { return v[key] > threshold },
		value:   valueOf(key),
		describe: func(val float64) string {
			return "Contract has unusual number of " + label + " (" + formatValue(val) + ")"
		},
	}
}

func valueOf(key string) func(features.Vector) float64 {
	return func(v features.Vector) float64 { return v[key] }
}

func fixedDescription(s string) func(float64) string {
	return func(float64) string { return s }
}

// formatValue renders counts without a trailing ".0" and ratios with their
// natural precision.
func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
