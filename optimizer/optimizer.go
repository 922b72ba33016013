// Package optimizer models the cost of delivering a payload to a destination
// chain and decides between blob and calldata encoding.
package optimizer

import (
	"fmt"
	"math"
	"math/big"
	"sync"

	"gobridgecore/events"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
)

const (
	// execution overhead of the bridge endpoint on the destination chain
	BaseGas    uint64 = 100_000
	PerByteGas uint64 = params.TxDataNonZeroGasEIP2028

	// assumed split of non-zero and zero bytes in calldata, in percent
	nonZeroShare = 80
	zeroShare    = 20

	BlobUnit = params.BlobTxBlobGasPerBlob // 2^17 bytes

	DefaultSizeThreshold    uint64 = 2048
	DefaultEfficiencyFactor uint64 = 80

	// largest payload whose gas limit fits in a uint64
	MaxDataSize = (math.MaxUint64 - BaseGas) / PerByteGas
)

var ether = big.NewInt(1e18)

type ChainSource interface {
	Chain(chainID uint64) (*types.ChainDescriptor, error)
}

type SizeEstimator interface {
	EstimateCompressedSize(size uint64, dt types.DataType) uint64
}

// Config holds the initial optimizer settings, nil threshold or factor select the defaults
type Config struct {
	SizeThreshold       *uint64
	EfficiencyFactor    *uint64
	DefaultGasPrice     *big.Int
	DefaultBlobGasPrice *big.Int
}

type GasEstimate struct {
	GasPrice     *big.Int `json:"gasPrice"`
	GasLimit     uint64   `json:"gasLimit"`
	CostWei      *big.Int `json:"costWei"`
	CostUSD      *big.Int `json:"costUsd"` // 18 fractional digits
	ETASeconds   uint64   `json:"etaSeconds"`
	BlobGasPrice *big.Int `json:"blobGasPrice"`
	BlobGasLimit uint64   `json:"blobGasLimit"`
	BlobCostWei  *big.Int `json:"blobCostWei"`
}

type prices struct {
	gas  *big.Int
	blob *big.Int
}

type Optimizer struct {
	mu               sync.RWMutex
	sizeThreshold    uint64
	efficiencyFactor uint64
	defaults         prices
	overrides        map[uint64]prices

	chains     ChainSource
	compressor SizeEstimator
	events     events.Emitter
	logger     log.Logger
}

func New(cfg Config, chains ChainSource, compressor SizeEstimator, emitter events.Emitter) *Optimizer {
	o := &Optimizer{
		sizeThreshold:    DefaultSizeThreshold,
		efficiencyFactor: DefaultEfficiencyFactor,
		defaults: prices{
			gas:  bigOrZero(cfg.DefaultGasPrice),
			blob: bigOrZero(cfg.DefaultBlobGasPrice),
		},
		overrides:  make(map[uint64]prices),
		chains:     chains,
		compressor: compressor,
		events:     events.OrNop(emitter),
		logger:     log.New("module", "optimizer"),
	}
	if cfg.SizeThreshold != nil {
		o.sizeThreshold = *cfg.SizeThreshold
	}
	if cfg.EfficiencyFactor != nil && *cfg.EfficiencyFactor <= 100 {
		o.efficiencyFactor = *cfg.EfficiencyFactor
	}
	return o
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// GasPrices returns the base and blob gas price used for a chain
func (o *Optimizer) GasPrices(chainID uint64) (gas, blob *big.Int) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p, ok := o.overrides[chainID]
	if !ok {
		p = o.defaults
	}
	return new(big.Int).Set(p.gas), new(big.Int).Set(p.blob)
}

// Estimate prices the delivery of dataSize bytes to chainID
func (o *Optimizer) Estimate(chainID uint64, dataSize uint64, useBlob bool) (*GasEstimate, error) {
	if dataSize > MaxDataSize {
		return nil, fmt.Errorf("%w: data size %d above %d", types.ErrInvalidInput, dataSize, MaxDataSize)
	}
	chain, err := o.chains.Chain(chainID)
	if err != nil {
		return nil, err
	}
	gasPrice, blobGasPrice := o.GasPrices(chainID)

	est := &GasEstimate{
		GasPrice:     gasPrice,
		GasLimit:     BaseGas + dataSize*PerByteGas,
		ETASeconds:   chain.VerificationBlocks * chain.AvgBlockTime,
		BlobGasPrice: blobGasPrice,
		BlobCostWei:  new(big.Int),
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(est.GasLimit))
	if useBlob {
		est.BlobGasLimit = dataSize
		est.BlobCostWei.Mul(blobGasPrice, new(big.Int).SetUint64(dataSize))
		cost.Add(cost, est.BlobCostWei)
	}
	est.CostWei = cost

	usd := new(big.Int).Mul(cost, bigOrZero(chain.NativeTokenPriceUSD))
	est.CostUSD = usd.Quo(usd, ether)
	return est, nil
}

// CalldataCost assumes 80% non-zero bytes at 16 gas and 20% zero bytes at 4 gas
func (o *Optimizer) CalldataCost(chainID uint64, size uint64) *big.Int {
	gasPrice, _ := o.GasPrices(chainID)

	gas := new(big.Int).SetUint64(size)
	gas.Mul(gas, big.NewInt(nonZeroShare*int64(params.TxDataNonZeroGasEIP2028)+zeroShare*int64(params.TxDataZeroGas)))
	gas.Quo(gas, big.NewInt(100))
	return gas.Mul(gas, gasPrice)
}

// BlobCost charges whole blobs
func (o *Optimizer) BlobCost(chainID uint64, size uint64) *big.Int {
	_, blobGasPrice := o.GasPrices(chainID)

	blobs := size / BlobUnit
	if size%BlobUnit != 0 {
		blobs++
	}
	cost := new(big.Int).SetUint64(blobs)
	cost.Mul(cost, new(big.Int).SetUint64(BlobUnit))
	return cost.Mul(cost, blobGasPrice)
}

// DecideEncoding decides for payloads of unknown shape
func (o *Optimizer) DecideEncoding(chainID uint64, size uint64) bool {
	return o.DecideEncodingFor(chainID, size, types.DataTypeBinary)
}

// DecideEncodingFor reports whether blob encoding should be used for a payload
// of size bytes and data type dt
func (o *Optimizer) DecideEncodingFor(chainID uint64, size uint64, dt types.DataType) bool {
	chain, err := o.chains.Chain(chainID)
	if err != nil || !chain.BlobEnabled {
		return false
	}

	estimated := size
	if o.compressor != nil {
		estimated = o.compressor.EstimateCompressedSize(size, dt)
	}

	o.mu.RLock()
	threshold, factor := o.sizeThreshold, o.efficiencyFactor
	o.mu.RUnlock()

	if estimated < threshold {
		return false
	}

	calldata := o.CalldataCost(chainID, estimated)
	blob := o.BlobCost(chainID, estimated)

	lhs := new(big.Int).Mul(blob, big.NewInt(100))
	rhs := new(big.Int).Mul(calldata, new(big.Int).SetUint64(factor))
	useBlob := lhs.Cmp(rhs) <= 0

	o.logger.Debug("Encoding decided", "chainId", chainID, "size", size, "estimated", estimated, "calldataCost", calldata, "blobCost", blob, "blob", useBlob)
	return useBlob
}

// SetGasPrice overrides the prices of one chain, a nil price keeps the current one
func (o *Optimizer) SetGasPrice(caller types.Caller, chainID uint64, gasPrice, blobGasPrice *big.Int) error {
	if err := caller.Require(types.RoleOperator); err != nil {
		return err
	}
	if _, err := o.chains.Chain(chainID); err != nil {
		return err
	}
	if (gasPrice != nil && gasPrice.Sign() < 0) || (blobGasPrice != nil && blobGasPrice.Sign() < 0) {
		return fmt.Errorf("%w: negative gas price", types.ErrInvalidInput)
	}

	o.mu.Lock()
	p, ok := o.overrides[chainID]
	if !ok {
		p = prices{gas: new(big.Int).Set(o.defaults.gas), blob: new(big.Int).Set(o.defaults.blob)}
	}
	if gasPrice != nil {
		p.gas = new(big.Int).Set(gasPrice)
	}
	if blobGasPrice != nil {
		p.blob = new(big.Int).Set(blobGasPrice)
	}
	o.overrides[chainID] = p
	o.mu.Unlock()

	o.logger.Info("Gas price updated", "chainId", chainID, "gasPrice", p.gas, "blobGasPrice", p.blob)
	o.events.Emit(events.New(events.GasPriceUpdated, 0, chainID, map[string]string{
		"gasPrice":     p.gas.String(),
		"blobGasPrice": p.blob.String(),
	}))
	return nil
}

func (o *Optimizer) SetSizeThreshold(caller types.Caller, threshold uint64) error {
	if err := caller.Require(types.RoleAdmin); err != nil {
		return err
	}

	o.mu.Lock()
	o.sizeThreshold = threshold
	o.mu.Unlock()

	o.logger.Info("Size threshold updated", "threshold", threshold)
	o.events.Emit(events.New(events.ThresholdUpdated, 0, 0, map[string]string{
		"sizeThreshold": fmt.Sprintf("%d", threshold),
	}))
	return nil
}

func (o *Optimizer) SetEfficiencyFactor(caller types.Caller, factor uint64) error {
	if err := caller.Require(types.RoleAdmin); err != nil {
		return err
	}
	if factor > 100 {
		return fmt.Errorf("%w: efficiency factor %d above 100", types.ErrInvalidInput, factor)
	}

	o.mu.Lock()
	o.efficiencyFactor = factor
	o.mu.Unlock()

	o.logger.Info("Efficiency factor updated", "factor", factor)
	o.events.Emit(events.New(events.ThresholdUpdated, 0, 0, map[string]string{
		"efficiencyFactor": fmt.Sprintf("%d", factor),
	}))
	return nil
}

func (o *Optimizer) SizeThreshold() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sizeThreshold
}

func (o *Optimizer) EfficiencyFactor() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.efficiencyFactor
}
