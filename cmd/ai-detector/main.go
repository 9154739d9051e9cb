// AI anomaly detector CLI - isolation-forest screening for smart contracts.
// Serves the HTTP API and covers offline training, analysis, and token
// minting for CI pipelines.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/dinesh3456/smart-contract-auditing-system/docs"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/analysis"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/auth"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/corpus"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/server"
)

// @title Smart Contract Anomaly Detection API
// @version 1.0.0
// @description Isolation-forest anomaly screening for Solidity smart contracts: feature extraction, z-score normalization, outlier scoring, factor attribution, and audit recommendations.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	rootCmd := &cobra.Command{
		Use:     "ai-detector",
		Short:   "Anomaly detection for smart contracts",
		Long:    "Isolation-forest anomaly screening for Solidity smart contracts with rule-based factor attribution and audit recommendations.",
		Version: server.Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		port      string
		modelPath string
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the anomaly detection API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.LoadConfig()
			if port != "" {
				cfg.Port = port
			}
			if modelPath != "" {
				cfg.ModelPath = modelPath
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}

			s, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("server initialization failed: %w", err)
			}
			return s.Run()
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default PORT env or 5002)")
	cmd.Flags().StringVar(&modelPath, "model", "", "Model file path (default MODEL_PATH env)")
	cmd.Flags().StringVar(&dbPath, "db", "", "History database path (default DB_PATH env)")
	return cmd
}

func trainCmd() *cobra.Command {
	var (
		corpusPath string
		modelPath  string
		rpcURL     string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the anomaly model from a corpus and write it to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := corpus.Load(corpusPath)
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}

			ctx := context.Background()

			if rpcURL != "" {
				fetcher, err := corpus.NewChainFetcher(rpcURL, nil)
				if err != nil {
					return fmt.Errorf("failed to connect to ethereum node: %w", err)
				}
				defer fetcher.Close()
				records = fetcher.Enrich(ctx, records)
			}

			analyzer := analysis.NewAnalyzer(nil)
			info, err := analyzer.Train(ctx, records)
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}

			if err := analyzer.SaveModel(modelPath); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}

			fmt.Printf("Model trained on %d contracts (%d features, threshold %.4f)\n",
				info.CorpusSize, info.FeatureCount, info.Threshold)
			fmt.Printf("Model written to %s\n", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Corpus manifest (YAML), directory of .sol files, or JSON array")
	cmd.Flags().StringVar(&modelPath, "model", "models/anomaly_model.bin", "Output model path")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "Ethereum RPC endpoint for bytecode enrichment")
	cmd.MarkFlagRequired("corpus")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		modelPath    string
		bytecodePath string
		pretty       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <contract.sol>",
		Short: "Analyze a contract file and print the report",
		Long:  "Analyze a contract file against a trained model and print the JSON report. Exits 2 when the contract is flagged anomalous, for use as a CI gate.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read contract: %w", err)
			}

			bytecode := ""
			if bytecodePath != "" {
				raw, err := os.ReadFile(bytecodePath)
				if err != nil {
					return fmt.Errorf("failed to read bytecode: %w", err)
				}
				bytecode = strings.TrimSpace(string(raw))
			}

			analyzer := analysis.NewAnalyzer(nil)
			if err := analyzer.LoadModel(modelPath); err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}

			result, err := analyzer.AnalyzeContract(context.Background(), string(source), bytecode, nil)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			var out []byte
			if pretty {
				out, err = json.MarshalIndent(result, "", "  ")
			} else {
				out, err = json.Marshal(result)
			}
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if result.IsAnomaly {
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "models/anomaly_model.bin", "Model file path")
	cmd.Flags().StringVar(&bytecodePath, "bytecode", "", "File containing hex-encoded deployed bytecode")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON report")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the training endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("provide --secret or set AUTH_SECRET")
			}

			token, err := auth.NewTokenService(secret).Mint(subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to mint token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default AUTH_SECRET env)")
	cmd.Flags().StringVar(&subject, "subject", "ci", "Token subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 8760*time.Hour, "Token lifetime")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(server.Version)
		},
	}
}
