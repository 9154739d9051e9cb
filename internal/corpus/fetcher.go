package corpus

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/errors"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/monitoring"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/resilience"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

const fetchTimeout = 10 * time.Second

// ChainFetcher pulls deployed bytecode from an Ethereum node to enrich
// corpus records that carry an address but no bytecode. An empty RPC URL
// or a failed dial yields a disabled fetcher so training degrades to
// source-only records.
type ChainFetcher struct {
	client  *ethclient.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *monitoring.Metrics
	enabled bool
}

// NewChainFetcher connects to an Ethereum RPC endpoint.
func NewChainFetcher(rpcURL string, metrics *monitoring.Metrics) (*ChainFetcher, error) {
	if rpcURL == "" {
		slog.Warn("Ethereum RPC URL not configured, chain enrichment disabled")
		return &ChainFetcher{enabled: false, metrics: metrics}, nil
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		slog.Error("Failed to connect to Ethereum node, chain enrichment disabled", "error", err)
		return &ChainFetcher{enabled: false, metrics: metrics}, fmt.Errorf("failed to connect to ethereum node: %w", err)
	}

	slog.Info("Connected to Ethereum node", "url", rpcURL)

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.InitialDelay = 500 * time.Millisecond
	retry.MaxDelay = 5 * time.Second
	// RPC errors are worth retrying; an open breaker is not
	retry.RetryableErrors = func(err error) bool {
		var cbErr *resilience.CircuitBreakerError
		return !stderrors.As(err, &cbErr)
	}

	return &ChainFetcher{
		client: client,
		breaker: resilience.GetCircuitBreaker("ethereum_rpc", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
		}),
		retry:   retry,
		metrics: metrics,
		enabled: true,
	}, nil
}

// IsEnabled reports whether the fetcher has a live RPC connection.
func (f *ChainFetcher) IsEnabled() bool {
	return f.enabled
}

// FetchBytecode returns the deployed bytecode at address, hex-encoded with
// a 0x prefix. Addresses holding no code (EOAs, self-destructed contracts)
// are an error.
func (f *ChainFetcher) FetchBytecode(ctx context.Context, address string) (string, error) {
	if !f.enabled {
		return "", fmt.Errorf("chain fetcher is disabled")
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid contract address: %s", address)
	}

	var code []byte
	err := resilience.RetryWithConfig(ctx, f.retry, func() error {
		return f.breaker.Call(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			var err error
			code, err = f.client.CodeAt(fetchCtx, common.HexToAddress(address), nil)
			if f.metrics != nil {
				f.metrics.RecordExternalAPIRequest("ethereum_rpc", err == nil)
			}
			return err
		})
	})
	if err != nil {
		return "", errors.NewExternalAPIError("ethereum_rpc",
			fmt.Errorf("failed to fetch bytecode for %s: %w", address, err))
	}

	if len(code) == 0 {
		return "", fmt.Errorf("no bytecode at address %s", address)
	}

	if f.metrics != nil {
		f.metrics.IncrementChainFetch()
	}

	return fmt.Sprintf("0x%x", code), nil
}

// Enrich fills in bytecode for records that carry an address and none yet.
// Fetch failures leave the record source-only with a warning; records left
// with neither source nor bytecode are dropped.
func (f *ChainFetcher) Enrich(ctx context.Context, records []types.ContractRecord) []types.ContractRecord {
	enriched := make([]types.ContractRecord, 0, len(records))

	for _, record := range records {
		if needsEnrichment(record) && f.enabled {
			bytecode, err := f.FetchBytecode(ctx, record.Address)
			if err != nil {
				slog.Warn("Chain enrichment failed, continuing with source only",
					"address", record.Address, "error", err)
			} else {
				record.Bytecode = bytecode
			}
		}

		if record.Code == "" && record.Bytecode == "" {
			slog.Warn("Dropping corpus record with no source and no bytecode",
				"address", record.Address, "name", record.Name)
			continue
		}

		enriched = append(enriched, record)
	}

	return enriched
}

// Close releases the RPC connection.
func (f *ChainFetcher) Close() {
	if f.enabled && f.client != nil {
		f.client.Close()
	}
}

func needsEnrichment(record types.ContractRecord) bool {
	return record.Address != "" && record.Bytecode == ""
}
