package corpus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

func TestNewChainFetcherDisabled(t *testing.T) {
	fetcher, err := NewChainFetcher("", nil)
	require.NoError(t, err)
	assert.False(t, fetcher.IsEnabled())
}

func TestNewChainFetcherBadURL(t *testing.T) {
	fetcher, err := NewChainFetcher("://not-a-url", nil)
	require.Error(t, err)
	assert.False(t, fetcher.IsEnabled())
}

func TestFetchBytecodeDisabled(t *testing.T) {
	fetcher, err := NewChainFetcher("", nil)
	require.NoError(t, err)

	_, err = fetcher.FetchBytecode(context.Background(), "0x1234567890123456789012345678901234567890")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestFetchBytecodeInvalidAddress(t *testing.T) {
	// HTTP dial is lazy, so no node is contacted here
	fetcher, err := NewChainFetcher("http://127.0.0.1:1", nil)
	require.NoError(t, err)
	defer fetcher.Close()
	require.True(t, fetcher.IsEnabled())

	_, err = fetcher.FetchBytecode(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid contract address")
}

func TestNeedsEnrichment(t *testing.T) {
	tests := []struct {
		name     string
		record   types.ContractRecord
		expected bool
	}{
		{
			name:     "address without bytecode",
			record:   types.ContractRecord{Address: "0xabc"},
			expected: true,
		},
		{
			name:     "address with bytecode already",
			record:   types.ContractRecord{Address: "0xabc", Bytecode: "0x6080"},
			expected: false,
		},
		{
			name:     "source only",
			record:   types.ContractRecord{Code: "contract C {}"},
			expected: false,
		},
		{
			name:     "source with address",
			record:   types.ContractRecord{Code: "contract C {}", Address: "0xabc"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, needsEnrichment(tt.record))
		})
	}
}

func TestEnrichDisabledFetcher(t *testing.T) {
	fetcher, err := NewChainFetcher("", nil)
	require.NoError(t, err)

	records := []types.ContractRecord{
		{Code: "contract A {}"},
		{Address: "0x1234567890123456789012345678901234567890"}, // nothing to analyze without a fetch
		{Code: "contract B {}", Address: "0x1234567890123456789012345678901234567890"},
		{Bytecode: "0x6080604052"},
	}

	enriched := fetcher.Enrich(context.Background(), records)
	require.Len(t, enriched, 3)

	// The address-only record was dropped; the rest kept their content
	assert.Equal(t, "contract A {}", enriched[0].Code)
	assert.Equal(t, "contract B {}", enriched[1].Code)
	assert.Empty(t, enriched[1].Bytecode)
	assert.Equal(t, "0x6080604052", enriched[2].Bytecode)
}
