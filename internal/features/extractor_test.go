package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleStorageSource = `pragma solidity ^0.8.0; contract C { function set(uint x) public { data = x; } function get() public view returns (uint) { return data; } }`

func TestExtractAlwaysReturnsBaseKeySet(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{
			name: "empty source",
			code: "",
		},
		{
			name: "not solidity at all",
			code: "<<<%%% random garbage \x00 bytes",
		},
		{
			name: "simple storage contract",
			code: simpleStorageSource,
		},
		{
			name: "only whitespace",
			code: "   \n\t\n  ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Extract(tt.code, "")

			assert.Len(t, v, len(BaseKeys()))
			for _, key := range BaseKeys() {
				value, ok := v[key]
				require.True(t, ok, "expected key %s to be present", key)
				assert.GreaterOrEqual(t, value, 0.0, "feature %s must be non-negative", key)
			}
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	inputs := []string{"", simpleStorageSource, "function f() public {}"}

	for _, code := range inputs {
		assert.Equal(t, Extract(code, ""), Extract(code, ""))
		assert.Equal(t, Extract(code, "6080CALL"), Extract(code, "6080CALL"))
	}
}

func TestExtractSimpleStorageContract(t *testing.T) {
	v := Extract(simpleStorageSource, "")

	assert.Equal(t, 2.0, v["function_count"])
	assert.Equal(t, 0.0, v["external_calls"])
	assert.Equal(t, 0.0, v["using_safe_math"])
	assert.Equal(t, 0.0, v["selfdestruct_calls"])
	assert.Equal(t, 1.0, v["cyclomatic_complexity"]) // no branches, base complexity
}

func TestExtractEmptySource(t *testing.T) {
	v := Extract("", "")

	assert.Equal(t, 1.0, v["lines_of_code"]) // a single empty line
	assert.Equal(t, 0.0, v["contract_size"])
	assert.Equal(t, 0.0, v["function_count"])
	assert.Equal(t, 1.0, v["cyclomatic_complexity"])
	assert.Equal(t, 1.0, v["complexity_per_function"]) // denominator floored to 1
	assert.Equal(t, 0.0, v["avg_function_length"])
}

func TestExtractRiskPatterns(t *testing.T) {
	code := `
import "lib.sol";
contract Vault is Ownable {
	mapping(address => uint) balances;
	uint[] history;

	function drain(address payable target) public {
		if (tx.origin == owner) {
			target.call{value: 1 ether}("");
			target.delegatecall(abi.encode());
			payable(target).transfer(1);
			selfdestruct(payable(tx.origin));
		}
	}

	function peek() public view returns (uint) {
		require(block.timestamp > 0);
		return address(this).balance;
	}
}`

	v := Extract(code, "")

	assert.Equal(t, 2.0, v["function_count"])
	assert.Equal(t, 2.0, v["external_calls"]) // .call{ and .delegatecall
	assert.Equal(t, 1.0, v["send_transfer_calls"])
	assert.Equal(t, 1.0, v["selfdestruct_calls"])
	assert.Equal(t, 2.0, v["tx_origin_uses"])
	assert.Equal(t, 1.0, v["block_value_uses"])
	assert.Equal(t, 1.0, v["require_statements"])
	assert.Equal(t, 1.0, v["mappings"])
	assert.Equal(t, 1.0, v["arrays"])
	assert.Equal(t, 1.0, v["inheritance_count"])
	assert.Equal(t, 1.0, v["import_count"])
	assert.Equal(t, 0.0, v["reentrancy_protection"])
	assert.Equal(t, 2.0, v["cyclomatic_complexity"]) // 1 + one if
}

func TestExtractRatioFlooring(t *testing.T) {
	// Two external call sites but no function declarations: the ratio
	// denominator floors to 1 so the ratio equals the raw count.
	code := `x.call(data); y.delegatecall(other);`

	v := Extract(code, "")

	assert.Equal(t, 0.0, v["function_count"])
	assert.Equal(t, 2.0, v["external_calls"])
	assert.Equal(t, v["external_calls"], v["external_calls_per_function"])
	assert.Equal(t, v["require_statements"], v["require_per_function"])
}

func TestExtractBytecodeOpcodes(t *testing.T) {
	tests := []struct {
		name     string
		bytecode string
		expected map[string]float64
	}{
		{
			name:     "no bytecode adds no opcode keys",
			bytecode: "",
			expected: nil,
		},
		{
			name:     "case-insensitive substring counts",
			bytecode: "call DELEGATECALL sstore SSTORE create2",
			expected: map[string]float64{
				"opcode_call":         2, // standalone + inside DELEGATECALL
				"opcode_delegatecall": 1,
				"opcode_sstore":       2,
				"opcode_create":       1, // inside create2
				"opcode_create2":      1,
				"opcode_selfdestruct": 0,
				"opcode_balance":      0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Extract(simpleStorageSource, tt.bytecode)

			if tt.bytecode == "" {
				assert.Len(t, v, len(BaseKeys()))
				return
			}

			assert.Len(t, v, len(BaseKeys())+len(OpcodeKeys()))
			for key, want := range tt.expected {
				assert.Equal(t, want, v[key], "opcode key %s", key)
			}
		})
	}
}

func TestExtractBraceUnawareBodyCapture(t *testing.T) {
	// The body regex stops at the first closing brace, so a nested block
	// truncates the capture. This is intentional; the test pins it down.
	code := "function f() public {\nif (x) { y = 1; }\nz = 2;\n}"

	v := Extract(code, "")

	// Captured body is "\nif (x) { y = 1; " which spans two lines.
	assert.Equal(t, 2.0, v["avg_function_length"])
}

func TestSchemaKeyOrder(t *testing.T) {
	all := AllKeys()

	assert.Equal(t, len(baseKeys)+len(trackedOpcodes), len(all))
	assert.Equal(t, "lines_of_code", all[0])
	assert.Equal(t, "complexity_per_function", all[len(baseKeys)-1])
	assert.Equal(t, "opcode_call", all[len(baseKeys)])
	assert.Equal(t, "opcode_balance", all[len(all)-1])

	// Mutating returned slices must not affect the schema.
	keys := BaseKeys()
	keys[0] = "mutated"
	assert.Equal(t, "lines_of_code", BaseKeys()[0])
}
