package compressor

import (
	"bytes"
	"encoding/hex"

	"gobridgecore/types"
)

const (
	DictionarySlots = 64
	MaxPatternLen   = 32
)

type Dictionary [DictionarySlots][]byte

// Params control how one data type is compressed
type Params struct {
	DictionarySize int  `yaml:"dictionary_size" json:"dictionarySize"`
	MinMatchLength int  `yaml:"min_match_length" json:"minMatchLength"`
	Level          int  `yaml:"level" json:"level"` // 0 stores literals only
	Entropy        bool `yaml:"entropy" json:"entropy"`
	BlockSize      int  `yaml:"block_size" json:"blockSize"`
}

// Stats are cumulative and only grow
type Stats struct {
	OriginalSize   uint64 `json:"originalSize"`
	CompressedSize uint64 `json:"compressedSize"`
	Count          uint64 `json:"count"`
}

// default compressed/original ratio in percent, used until a type has statistics
var defaultRatios = [types.NumDataTypes]uint64{
	types.DataTypeTransaction:    60,
	types.DataTypeProof:          85,
	types.DataTypeStructuredText: 45,
	types.DataTypeBinary:         90,
}

func DefaultParams(dt types.DataType) Params {
	switch dt {
	case types.DataTypeTransaction:
		return Params{DictionarySize: DictionarySlots, MinMatchLength: 4, Level: 6, Entropy: true, BlockSize: 64 << 10}
	case types.DataTypeProof:
		return Params{DictionarySize: 16, MinMatchLength: 8, Level: 6, Entropy: false, BlockSize: 64 << 10}
	case types.DataTypeStructuredText:
		return Params{DictionarySize: DictionarySlots, MinMatchLength: 3, Level: 9, Entropy: true, BlockSize: 64 << 10}
	default:
		return Params{DictionarySize: 16, MinMatchLength: 4, Level: 3, Entropy: false, BlockSize: 64 << 10}
	}
}

func zeros(n int) []byte {
	return make([]byte, n)
}

func ones(n int) []byte {
	return bytes.Repeat([]byte{0xff}, n)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// DefaultDictionary returns the seed patterns for a data type. Longer patterns
// come first, the matcher prefers the longest match anyway.
func DefaultDictionary(dt types.DataType) Dictionary {
	var patterns [][]byte

	switch dt {
	case types.DataTypeTransaction:
		patterns = [][]byte{
			zeros(32),
			zeros(31),
			zeros(28),
			zeros(24),
			zeros(16),
			zeros(12), // address padding
			zeros(8),
			zeros(4),
			ones(32),
			mustHex("a9059cbb"), // transfer(address,uint256)
			mustHex("095ea7b3"), // approve(address,uint256)
			mustHex("23b872dd"), // transferFrom(address,address,uint256)
			mustHex("70a08231"), // balanceOf(address)
		}
	case types.DataTypeProof:
		patterns = [][]byte{
			zeros(32),
			ones(32),
			zeros(16),
			zeros(8),
		}
	case types.DataTypeStructuredText:
		for _, s := range []string{
			`"recipient":"0x`,
			`"treasuryId":"0x`,
			`"expiration":`,
			`"timestamp":`,
			`"orderId":"0x`,
			`"tradeId":"0x`,
			`"sender":"0x`,
			`"side":"sell"`,
			`"side":"buy"`,
			`"chainId":`,
			`"amount":"`,
			`"status":"`,
			`"price":"`,
			`"user":"0x`,
			`"data":"0x`,
			`"type":"`,
			`0000000000`,
			`"id":`,
			`false`,
			`true`,
			`null`,
			`":"`,
			`","`,
			`"},{"`,
		} {
			patterns = append(patterns, []byte(s))
		}
	default:
		patterns = [][]byte{
			zeros(32),
			zeros(16),
			zeros(8),
			zeros(4),
			ones(16),
			ones(4),
		}
	}

	var d Dictionary
	for i, p := range patterns {
		d[i] = p
	}
	return d
}
