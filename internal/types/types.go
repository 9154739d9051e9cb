package types

import "encoding/json"

// ContractRecord is one corpus entry used for training. Bytecode and ABI
// are optional; a record with source only still produces the full base
// feature set.
type ContractRecord struct {
	Code     string          `json:"code" yaml:"code" binding:"required"`
	Bytecode string          `json:"bytecode,omitempty" yaml:"bytecode,omitempty"`
	ABI      json.RawMessage `json:"abi,omitempty" yaml:"abi,omitempty"`
	Address  string          `json:"address,omitempty" yaml:"address,omitempty"`
	Name     string          `json:"name,omitempty" yaml:"name,omitempty"`
}

// AnalyzeRequest is the analyze endpoint payload.
type AnalyzeRequest struct {
	SourceCode string          `json:"sourceCode" binding:"required"`
	Bytecode   string          `json:"bytecode,omitempty"`
	ABI        json.RawMessage `json:"abi,omitempty"`
}

// TrainRequest is the train endpoint payload.
type TrainRequest struct {
	Contracts []ContractRecord `json:"contracts" binding:"required,min=1,dive"`
}
