package compressor

import (
	"bytes"
	"encoding/json"

	"gobridgecore/types"
)

const (
	wordSize     = 32
	selectorSize = 4
	minProofSize = 8 * wordSize
)

// Classify guesses the data type of a payload from its shape:
// JSON documents, ABI calls (selector followed by words), proofs
// (long runs of whole words), and anything else as binary.
func Classify(payload []byte) types.DataType {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return types.DataTypeStructuredText
	}
	n := len(payload)
	if n >= minProofSize && n%wordSize == 0 {
		return types.DataTypeProof
	}
	if n >= selectorSize+wordSize && (n-selectorSize)%wordSize == 0 {
		return types.DataTypeTransaction
	}
	return types.DataTypeBinary
}
