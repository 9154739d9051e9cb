package features

// SchemaVersion identifies the extractor's key schema. Persisted models
// record it; loading a blob written under a different version is rejected.
const SchemaVersion = "v1"

// Vector maps feature names to numeric values (counts, ratios, 0/1 flags).
type Vector map[string]float64

// baseKeys is the canonical order of the source-derived features. Every
// extraction emits exactly these keys; missing signals are zero, never absent.
var baseKeys = []string{
	"lines_of_code",
	"contract_size",
	"function_count",
	"event_count",
	"modifier_count",
	"constructor_count",
	"state_variables",
	"mappings",
	"arrays",
	"inheritance_count",
	"import_count",
	"external_calls",
	"send_transfer_calls",
	"selfdestruct_calls",
	"assembly_blocks",
	"unchecked_blocks",
	"tx_origin_uses",
	"block_value_uses",
	"require_statements",
	"balance_checks",
	"ether_receive",
	"reentrancy_protection",
	"using_safe_math",
	"avg_function_length",
	"cyclomatic_complexity",
	"external_calls_per_function",
	"require_per_function",
	"complexity_per_function",
}

// trackedOpcodes are counted in bytecode text when bytecode is supplied,
// emitted as opcode_<lowercase name>.
var trackedOpcodes = []string{
	"CALL",
	"DELEGATECALL",
	"STATICCALL",
	"SELFDESTRUCT",
	"SSTORE",
	"SLOAD",
	"CREATE",
	"CREATE2",
	"EXTCODESIZE",
	"EXTCODECOPY",
	"BALANCE",
}

// BaseKeys returns the source-feature keys in canonical order.
func BaseKeys() []string {
	keys := make([]string, len(baseKeys))
	copy(keys, baseKeys)
	return keys
}

// OpcodeKeys returns the bytecode-feature keys in canonical order.
func OpcodeKeys() []string {
	keys := make([]string, 0, len(trackedOpcodes))
	for _, op := range trackedOpcodes {
		keys = append(keys, opcodeKey(op))
	}
	return keys
}

// AllKeys returns the full schema order: base keys followed by opcode keys.
func AllKeys() []string {
	return append(BaseKeys(), OpcodeKeys()...)
}
