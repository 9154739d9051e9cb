// Package features turns raw Solidity source (and optionally deployed
// bytecode) into a fixed-schema numeric feature vector using a battery of
// independent pattern counts. Extraction is total: it never fails on
// malformed input, it just counts fewer matches.
package features

import (
	"regexp"
	"strings"
)

var (
	reFunction     = regexp.MustCompile(`function\s+\w+`)
	reEvent        = regexp.MustCompile(`event\s+\w+`)
	reModifier     = regexp.MustCompile(`modifier\s+\w+`)
	reConstructor  = regexp.MustCompile(`constructor\s*\(`)
	reStateVar     = regexp.MustCompile(`(?m)^\s*\w+\s+\w+\s*;`)
	reMapping      = regexp.MustCompile(`mapping\s*\(`)
	reArray        = regexp.MustCompile(`\[\]`)
	reInheritance  = regexp.MustCompile(`contract\s+\w+\s+is\s+`)
	reImport       = regexp.MustCompile(`import\s+`)
	reExternalCall = regexp.MustCompile(`\.call\{|\.\s*call\s*\(|\.delegatecall|\.staticcall`)
	reSendTransfer = regexp.MustCompile(`\.send\s*\(|\.transfer\s*\(`)
	reSelfdestruct = regexp.MustCompile(`selfdestruct\s*\(|suicide\s*\(`)
	reAssembly     = regexp.MustCompile(`assembly\s*\{`)
	reUnchecked    = regexp.MustCompile(`unchecked\s*\{`)
	reTxOrigin     = regexp.MustCompile(`tx\.origin`)
	reBlockValue   = regexp.MustCompile(`block\.timestamp|block\.number|block\.difficulty`)
	reRequire      = regexp.MustCompile(`require\s*\(`)
	reBalance      = regexp.MustCompile(`balance|balanceOf`)
	reEtherReceive = regexp.MustCompile(`receive\s*\(\s*\)|fallback\s*\(\s*\)`)
	reReentrancy   = regexp.MustCompile(`nonReentrant|ReentrancyGuard`)
	reIf           = regexp.MustCompile(`\bif\s*\(`)
	reFor          = regexp.MustCompile(`\bfor\s*\(`)
	reWhile        = regexp.MustCompile(`\bwhile\s*\(`)
	reDo           = regexp.MustCompile(`\bdo\s*\{`)

	// Brace-unaware: a nested brace inside a body truncates the capture
	// early. The anomaly thresholds were tuned against this output.
	reFunctionBody = regexp.MustCompile(`function\s+\w+[^{]*\{([^}]*)\}`)
)

// Extract scans the source text with the fixed pattern battery and returns
// the full base-key vector, plus one opcode_* key per tracked opcode when
// bytecode is non-empty.
func Extract(code string, bytecode string) Vector {
	functionCount := count(reFunction, code)
	externalCalls := count(reExternalCall, code)
	requires := count(reRequire, code)
	complexity := 1 + count(reIf, code) + count(reFor, code) + count(reWhile, code) + count(reDo, code)

	// Ratio denominators are floored to 1 so a zero-function contract
	// still yields well-formed ratios.
	perFn := functionCount
	if perFn < 1 {
		perFn = 1
	}

	v := Vector{
		"lines_of_code":               float64(len(strings.Split(code, "\n"))),
		"contract_size":               float64(len(code)),
		"function_count":              functionCount,
		"event_count":                 count(reEvent, code),
		"modifier_count":              count(reModifier, code),
		"constructor_count":           count(reConstructor, code),
		"state_variables":             count(reStateVar, code),
		"mappings":                    count(reMapping, code),
		"arrays":                      count(reArray, code),
		"inheritance_count":           count(reInheritance, code),
		"import_count":                count(reImport, code),
		"external_calls":              externalCalls,
		"send_transfer_calls":         count(reSendTransfer, code),
		"selfdestruct_calls":          count(reSelfdestruct, code),
		"assembly_blocks":             count(reAssembly, code),
		"unchecked_blocks":            count(reUnchecked, code),
		"tx_origin_uses":              count(reTxOrigin, code),
		"block_value_uses":            count(reBlockValue, code),
		"require_statements":          requires,
		"balance_checks":              count(reBalance, code),
		"ether_receive":               count(reEtherReceive, code),
		"reentrancy_protection":       count(reReentrancy, code),
		"using_safe_math":             boolToFloat(strings.Contains(code, "SafeMath")),
		"avg_function_length":         avgFunctionLength(code),
		"cyclomatic_complexity":       complexity,
		"external_calls_per_function": externalCalls / perFn,
		"require_per_function":        requires / perFn,
		"complexity_per_function":     complexity / perFn,
	}

	if bytecode != "" {
		upper := strings.ToUpper(bytecode)
		for _, op := range trackedOpcodes {
			v[opcodeKey(op)] = float64(strings.Count(upper, op))
		}
	}

	return v
}

func count(re *regexp.Regexp, s string) float64 {
	return float64(len(re.FindAllStringIndex(s, -1)))
}

// avgFunctionLength averages the line count of each captured function body,
// 0 when no body matches.
func avgFunctionLength(code string) float64 {
	bodies := reFunctionBody.FindAllStringSubmatch(code, -1)
	if len(bodies) == 0 {
		return 0
	}
	total := 0
	for _, m := range bodies {
		total += len(strings.Split(m[1], "\n"))
	}
	return float64(total) / float64(len(bodies))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func opcodeKey(op string) string {
	return "opcode_" + strings.ToLower(op)
}
