package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// base ledger is the source of every message created here,
// destination chains are registered at runtime

type ChainCategory string

const (
	CategoryL1        ChainCategory = "L1"
	CategoryRollup    ChainCategory = "Rollup"
	CategorySidechain ChainCategory = "Sidechain"
	CategoryAppChain  ChainCategory = "AppChain"
)

func (c ChainCategory) Valid() bool {
	switch c {
	case CategoryL1, CategoryRollup, CategorySidechain, CategoryAppChain:
		return true
	}
	return false
}

// ChainDescriptor is a destination chain with its cost and timing parameters.
// Name and Category never change after registration.
type ChainDescriptor struct {
	ChainID             uint64         `json:"chainId"`
	Name                string         `json:"name"`
	Category            ChainCategory  `json:"category"`
	Enabled             bool           `json:"enabled"`
	BridgeEndpoint      common.Address `json:"bridgeEndpoint"`
	RollupContract      common.Address `json:"rollupContract"`      // zero when not a rollup
	VerificationBlocks  uint64         `json:"verificationBlocks"`
	GasToken            string         `json:"gasToken"`
	NativeTokenPriceUSD *big.Int       `json:"nativeTokenPriceUsd"` // 18 fractional digits
	AvgBlockTime        uint64         `json:"avgBlockTime"`        // seconds
	BlobEnabled         bool           `json:"blobEnabled"`
	MaxMessageSize      uint64         `json:"maxMessageSize"`      // bytes, 0 = unlimited
}

func (c *ChainDescriptor) Copy() *ChainDescriptor {
	cp := *c
	if c.NativeTokenPriceUSD != nil {
		cp.NativeTokenPriceUSD = new(big.Int).Set(c.NativeTokenPriceUSD)
	}
	return &cp
}

// ChainUpdate holds the mutable part of a ChainDescriptor
type ChainUpdate struct {
	BridgeEndpoint      common.Address
	VerificationBlocks  uint64
	NativeTokenPriceUSD *big.Int
	AvgBlockTime        uint64
	Enabled             bool
	BlobEnabled         bool
}

// bounds keep verificationBlocks × avgBlockTime representable as a time.Duration
const (
	MaxVerificationBlocks uint64 = 1_000_000
	MaxAvgBlockTime       uint64 = 3600 // seconds
)

// CheckTiming validates the confirmation timing of a chain
func CheckTiming(chainID, verificationBlocks, avgBlockTime uint64) error {
	if verificationBlocks > MaxVerificationBlocks {
		return fmt.Errorf("%w: chain %d verification blocks %d above %d", ErrInvalidInput, chainID, verificationBlocks, MaxVerificationBlocks)
	}
	if avgBlockTime > MaxAvgBlockTime {
		return fmt.Errorf("%w: chain %d block time %ds above %ds", ErrInvalidInput, chainID, avgBlockTime, MaxAvgBlockTime)
	}
	return nil
}

type MessageStatus uint8

const (
	StatusPending MessageStatus = iota
	StatusConfirmed
	StatusFailed
	StatusRejected
)

func (s MessageStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal statuses accept no further transitions
func (s MessageStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

func ParseMessageStatus(s string) (MessageStatus, bool) {
	switch s {
	case "pending":
		return StatusPending, true
	case "confirmed":
		return StatusConfirmed, true
	case "failed":
		return StatusFailed, true
	case "rejected":
		return StatusRejected, true
	}
	return 0, false
}

func (s MessageStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MessageStatus) UnmarshalText(b []byte) error {
	st, ok := ParseMessageStatus(string(b))
	if !ok {
		return ErrInvalidInput
	}
	*s = st
	return nil
}

// DataType selects the dictionary and parameters used by the compressor
type DataType uint8

const (
	DataTypeTransaction DataType = iota
	DataTypeProof
	DataTypeStructuredText
	DataTypeBinary

	NumDataTypes = 4
)

func (d DataType) String() string {
	switch d {
	case DataTypeTransaction:
		return "transaction"
	case DataTypeProof:
		return "proof"
	case DataTypeStructuredText:
		return "structured-text"
	case DataTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

func (d DataType) Valid() bool {
	return d < NumDataTypes
}

func ParseDataType(s string) (DataType, bool) {
	for d := DataType(0); d < NumDataTypes; d++ {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DataType) UnmarshalText(b []byte) error {
	dt, ok := ParseDataType(string(b))
	if !ok {
		return ErrInvalidInput
	}
	*d = dt
	return nil
}

// CrossChainMessage is a single message from the base ledger to a destination chain.
// It is only mutated through status updates and retries.
type CrossChainMessage struct {
	ID                uint64         `json:"id"`
	SourceChain       uint64         `json:"sourceChain"`
	DestChain         uint64         `json:"destChain"`
	Sender            common.Address `json:"sender"`
	Recipient         common.Address `json:"recipient"`
	Amount            *big.Int       `json:"amount"`
	Payload           []byte         `json:"payload"`
	BlobEncoded       bool           `json:"blobEncoded"` // Payload holds compressor output
	DataType          DataType       `json:"dataType"`
	CreatedAt         int64          `json:"createdAt"`
	Nonce             uint64         `json:"nonce"`
	Status            MessageStatus  `json:"status"`
	OriginTxRef       common.Hash    `json:"originTxRef"`
	ConfirmedAt       int64          `json:"confirmedAt"`
	ConfirmationTxRef common.Hash    `json:"confirmationTxRef"`
	FailureReason     string         `json:"failureReason"`
	Retries           uint32         `json:"retries"`
}

func (m *CrossChainMessage) Copy() *CrossChainMessage {
	cp := *m
	if m.Amount != nil {
		cp.Amount = new(big.Int).Set(m.Amount)
	}
	cp.Payload = append([]byte(nil), m.Payload...)
	return &cp
}

type OrderSide uint8

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderBridgingRequest is supplied by the order subsystem, Signature is optional
type OrderBridgingRequest struct {
	OrderID     common.Hash
	TreasuryID  common.Hash
	User        common.Address
	Side        OrderSide
	Amount      *big.Int
	Price       *big.Int
	Expiration  uint64
	DestChainID uint64
	Signature   []byte
}

type TradeSettlementRequest struct {
	TradeID     common.Hash
	Buyer       common.Address
	Seller      common.Address
	Amount      *big.Int
	Price       *big.Int
	DestChainID uint64
}

// BridgeResult is returned to the order/trade subsystem
type BridgeResult struct {
	MessageID             uint64        `json:"messageId"`
	OriginTxRef           common.Hash   `json:"originTxRef"`
	EstimatedConfirmation int64         `json:"estimatedConfirmation"`
	EstimatedFee          *big.Int      `json:"estimatedFee"`
	Status                MessageStatus `json:"status"`
}

// BindingKind tells which idempotency map a key belongs to
type BindingKind string

const (
	BindingOrder BindingKind = "order"
	BindingTrade BindingKind = "trade"
)

// Binding links an idempotency key to the message created for it
type Binding struct {
	Kind      BindingKind      `json:"kind"`
	Key       common.Hash      `json:"key"`
	Users     []common.Address `json:"users"`
	MessageID uint64           `json:"messageId"`
}
