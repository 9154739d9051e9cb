package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

// manifest is the YAML corpus manifest layout. Each entry supplies inline
// source, a file reference resolved relative to the manifest, or an on-chain
// address for bytecode enrichment.
type manifest struct {
	Contracts []manifestEntry `yaml:"contracts"`
}

type manifestEntry struct {
	Name     string `yaml:"name"`
	Code     string `yaml:"code"`
	File     string `yaml:"file"`
	Address  string `yaml:"address"`
	Bytecode string `yaml:"bytecode"`
}

// Load reads a training corpus from path, dispatching on its form: a
// directory of .sol files, a YAML manifest, a JSON record array, or a
// single .sol file.
func Load(path string) ([]types.ContractRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus path: %w", err)
	}

	if info.IsDir() {
		return LoadDirectory(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadManifest(path)
	case ".json":
		return LoadJSON(path)
	case ".sol":
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return []types.ContractRecord{{
			Code: string(code),
			Name: contractName(path),
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported corpus format: %s", path)
	}
}

// LoadManifest reads a YAML manifest of contract entries.
func LoadManifest(path string) ([]types.ContractRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if len(m.Contracts) == 0 {
		return nil, fmt.Errorf("manifest %s has no contracts", path)
	}

	baseDir := filepath.Dir(path)
	records := make([]types.ContractRecord, 0, len(m.Contracts))

	for i, entry := range m.Contracts {
		if entry.Code == "" && entry.File == "" && entry.Address == "" {
			return nil, fmt.Errorf("contracts[%d]: entry needs code, file, or address", i)
		}

		record := types.ContractRecord{
			Code:     entry.Code,
			Bytecode: entry.Bytecode,
			Address:  entry.Address,
			Name:     entry.Name,
		}

		if entry.File != "" {
			filePath := entry.File
			if !filepath.IsAbs(filePath) {
				filePath = filepath.Join(baseDir, filePath)
			}
			code, err := os.ReadFile(filePath)
			if err != nil {
				return nil, fmt.Errorf("contracts[%d]: failed to read %s: %w", i, entry.File, err)
			}
			record.Code = string(code)
			if record.Name == "" {
				record.Name = contractName(filePath)
			}
		}

		records = append(records, record)
	}

	return records, nil
}

// LoadDirectory reads every .sol file in dir, non-recursively.
func LoadDirectory(dir string) ([]types.ContractRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	var records []types.ContractRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".sol") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		records = append(records, types.ContractRecord{
			Code: string(code),
			Name: contractName(path),
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no .sol files in %s", dir)
	}

	return records, nil
}

// LoadJSON reads a JSON array of contract records.
func LoadJSON(path string) ([]types.ContractRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	var records []types.ContractRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("corpus %s has no contracts", path)
	}

	for i, record := range records {
		if record.Code == "" && record.Bytecode == "" && record.Address == "" {
			return nil, fmt.Errorf("records[%d]: entry needs code, bytecode, or address", i)
		}
	}

	return records, nil
}

func contractName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
