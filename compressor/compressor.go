// Package compressor implements the dictionary substitution codec used for
// blob encoded payloads, with per data type dictionaries and running statistics.
//
// Output layout: one header byte (data type tag in the low nibble, 0x80 when the
// body went through the Huffman stage) followed by the body. In the body,
// 0xFE introduces a reference: 0xFE <index> expands to dictionary slot <index>,
// 0xFE 0xFF is a literal 0xFE. Every other byte is a literal.
package compressor

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"gobridgecore/events"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/log"
	"github.com/klauspost/compress/huff0"
)

const (
	marker      byte = 0xFE
	escapeIndex byte = 0xFF
	entropyFlag byte = 0x80
	tagMask     byte = 0x0F

	// smaller bodies never shrink through the Huffman table overhead
	minEntropyInput = 64
)

type Compressor struct {
	mu     sync.RWMutex
	dicts  [types.NumDataTypes]Dictionary
	params [types.NumDataTypes]Params
	stats  [types.NumDataTypes]Stats

	events events.Emitter
	logger log.Logger
}

func New(emitter events.Emitter) *Compressor {
	c := &Compressor{
		events: events.OrNop(emitter),
		logger: log.New("module", "compressor"),
	}
	for dt := types.DataType(0); dt < types.NumDataTypes; dt++ {
		c.dicts[dt] = DefaultDictionary(dt)
		c.params[dt] = DefaultParams(dt)
	}
	return c
}

func checkType(dt types.DataType) error {
	if !dt.Valid() {
		return fmt.Errorf("%w: data type %d", types.ErrInvalidInput, dt)
	}
	return nil
}

// Compress encodes data with the dictionary of dt and records the sizes in the statistics of dt
func (c *Compressor) Compress(data []byte, dt types.DataType) ([]byte, error) {
	if err := checkType(dt); err != nil {
		return nil, err
	}

	c.mu.Lock()
	p := c.params[dt]
	body := substitute(data, &c.dicts[dt], p)
	header := byte(dt)

	if p.Entropy && len(body) >= minEntropyInput && len(body) <= p.BlockSize && len(body) <= huff0.BlockSizeMax {
		enc, _, err := huff0.Compress1X(body, &huff0.Scratch{})
		switch {
		case err == nil && len(enc) < len(body):
			body = enc
			header |= entropyFlag
		case err == nil, errors.Is(err, huff0.ErrIncompressible), errors.Is(err, huff0.ErrUseRLE):
		default:
			c.logger.Warn("Entropy stage failed, keeping substituted body", "dataType", dt, "err", err)
		}
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, header)
	out = append(out, body...)

	st := &c.stats[dt]
	st.OriginalSize += uint64(len(data))
	st.CompressedSize += uint64(len(out))
	st.Count++
	c.mu.Unlock()

	c.events.Emit(events.New(events.DataCompressed, 0, 0, map[string]string{
		"dataType":       dt.String(),
		"originalSize":   strconv.Itoa(len(data)),
		"compressedSize": strconv.Itoa(len(out)),
	}))
	return out, nil
}

func substitute(data []byte, dict *Dictionary, p Params) []byte {
	out := make([]byte, 0, len(data)+len(data)/8+1)
	size := p.DictionarySize
	if size > DictionarySlots {
		size = DictionarySlots
	}

	for i := 0; i < len(data); {
		if p.Level > 0 {
			best, bestLen := -1, 0
			rest := data[i:]
			for idx := 0; idx < size; idx++ {
				pat := dict[idx]
				if len(pat) < p.MinMatchLength || len(pat) <= bestLen || len(pat) > len(rest) {
					continue
				}
				if bytes.Equal(rest[:len(pat)], pat) {
					best, bestLen = idx, len(pat)
				}
			}
			if best >= 0 {
				out = append(out, marker, byte(best))
				i += bestLen
				continue
			}
		}

		if data[i] == marker {
			out = append(out, marker, escapeIndex)
		} else {
			out = append(out, data[i])
		}
		i++
	}
	return out
}

// Decompress reverses Compress. It uses the dictionaries as they are now,
// so entries must not be replaced while encoded payloads are still in flight.
func (c *Compressor) Decompress(enc []byte) ([]byte, error) {
	if len(enc) == 0 {
		return nil, fmt.Errorf("%w: empty input", types.ErrInvalidInput)
	}
	header := enc[0]
	if header&^(entropyFlag|tagMask) != 0 {
		return nil, fmt.Errorf("%w: bad header 0x%02x", types.ErrInvalidInput, header)
	}
	dt := types.DataType(header & tagMask)
	if err := checkType(dt); err != nil {
		return nil, err
	}

	body := enc[1:]
	if header&entropyFlag != 0 {
		s, remain, err := huff0.ReadTable(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: huffman table: %v", types.ErrInvalidInput, err)
		}
		body, err = s.Decompress1X(remain)
		if err != nil {
			return nil, fmt.Errorf("%w: huffman body: %v", types.ErrInvalidInput, err)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	dict := &c.dicts[dt]

	out := make([]byte, 0, len(body)*2)
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != marker {
			out = append(out, b)
			continue
		}
		if i+1 >= len(body) {
			return nil, fmt.Errorf("%w: dangling marker at %d", types.ErrInvalidInput, i)
		}
		i++
		idx := body[i]
		if idx == escapeIndex {
			out = append(out, marker)
			continue
		}
		if int(idx) >= DictionarySlots || len(dict[idx]) == 0 {
			return nil, fmt.Errorf("%w: unknown dictionary index %d", types.ErrInvalidInput, idx)
		}
		out = append(out, dict[idx]...)
	}
	return out, nil
}

// EstimateCompressedSize scales size by the observed ratio of dt, or by the
// static default ratio when nothing of that type was compressed yet
func (c *Compressor) EstimateCompressedSize(size uint64, dt types.DataType) uint64 {
	if !dt.Valid() {
		dt = types.DataTypeBinary
	}

	c.mu.RLock()
	st := c.stats[dt]
	c.mu.RUnlock()

	num, den := defaultRatios[dt], uint64(100)
	if st.Count > 0 && st.OriginalSize > 0 {
		num, den = st.CompressedSize, st.OriginalSize
	}
	est := new(big.Int).SetUint64(size)
	est.Mul(est, new(big.Int).SetUint64(num))
	est.Quo(est, new(big.Int).SetUint64(den))
	if !est.IsUint64() {
		return ^uint64(0)
	}
	return est.Uint64()
}

// SetDictionaryEntry replaces one slot, an empty pattern clears it
func (c *Compressor) SetDictionaryEntry(caller types.Caller, dt types.DataType, index int, pattern []byte) error {
	if err := caller.Require(types.RoleAdmin); err != nil {
		return err
	}
	if err := checkType(dt); err != nil {
		return err
	}
	if index < 0 || index >= DictionarySlots {
		return fmt.Errorf("%w: dictionary index %d", types.ErrInvalidInput, index)
	}
	if len(pattern) > MaxPatternLen {
		return fmt.Errorf("%w: pattern of %d bytes exceeds %d", types.ErrInvalidInput, len(pattern), MaxPatternLen)
	}

	c.mu.Lock()
	c.dicts[dt][index] = append([]byte(nil), pattern...)
	c.mu.Unlock()

	c.logger.Info("Dictionary updated", "dataType", dt, "index", index, "length", len(pattern))
	c.events.Emit(events.New(events.DictionaryUpdated, 0, 0, map[string]string{
		"dataType": dt.String(),
		"index":    strconv.Itoa(index),
	}))
	return nil
}

func ValidateParams(p Params) error {
	if p.DictionarySize < 0 || p.DictionarySize > DictionarySlots {
		return fmt.Errorf("%w: dictionary size %d", types.ErrInvalidInput, p.DictionarySize)
	}
	// a reference is two bytes, shorter matches would grow the output
	if p.MinMatchLength < 3 || p.MinMatchLength > MaxPatternLen {
		return fmt.Errorf("%w: min match length %d", types.ErrInvalidInput, p.MinMatchLength)
	}
	if p.Level < 0 || p.Level > 9 {
		return fmt.Errorf("%w: compression level %d", types.ErrInvalidInput, p.Level)
	}
	if p.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", types.ErrInvalidInput, p.BlockSize)
	}
	return nil
}

func (c *Compressor) SetParams(caller types.Caller, dt types.DataType, p Params) error {
	if err := caller.Require(types.RoleAdmin); err != nil {
		return err
	}
	if err := checkType(dt); err != nil {
		return err
	}
	if err := ValidateParams(p); err != nil {
		return err
	}

	c.mu.Lock()
	c.params[dt] = p
	c.mu.Unlock()

	c.logger.Info("Compression params updated", "dataType", dt, "dictionarySize", p.DictionarySize, "minMatch", p.MinMatchLength, "level", p.Level)
	return nil
}

func (c *Compressor) Params(dt types.DataType) (Params, error) {
	if err := checkType(dt); err != nil {
		return Params{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params[dt], nil
}

func (c *Compressor) Stats(dt types.DataType) (Stats, error) {
	if err := checkType(dt); err != nil {
		return Stats{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats[dt], nil
}

// Dictionary returns a copy of the slots of dt
func (c *Compressor) Dictionary(dt types.DataType) (Dictionary, error) {
	var d Dictionary
	if err := checkType(dt); err != nil {
		return d, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, p := range c.dicts[dt] {
		if p != nil {
			d[i] = append([]byte(nil), p...)
		}
	}
	return d, nil
}
