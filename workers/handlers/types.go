package handlers

import (
	"fmt"
	"math/big"

	"gobridgecore/compressor"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	SourceChain uint64   `json:"sourceChain"`
	Chains      []uint64 `json:"chains"`
	Messages    uint64   `json:"messages"`
	Pending     int      `json:"pending"`
}

// amounts are accepted as decimal or 0x prefixed hex strings
func toBig(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return nil
	}
	return (*big.Int)(v)
}

func fromBig(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return nil
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

type ChainRequest struct {
	ChainID             uint64                `json:"chainId"`
	Name                string                `json:"name"`
	Category            types.ChainCategory   `json:"category"`
	BridgeEndpoint      string                `json:"bridgeEndpoint"`
	RollupContract      string                `json:"rollupContract"`
	VerificationBlocks  uint64                `json:"verificationBlocks"`
	GasToken            string                `json:"gasToken"`
	NativeTokenPriceUSD *math.HexOrDecimal256 `json:"nativeTokenPriceUsd"`
	AvgBlockTime        uint64                `json:"avgBlockTime"`
	BlobEnabled         bool                  `json:"blobEnabled"`
	MaxMessageSize      uint64                `json:"maxMessageSize"`
}

type ChainUpdateRequest struct {
	BridgeEndpoint      string                `json:"bridgeEndpoint"`
	VerificationBlocks  uint64                `json:"verificationBlocks"`
	NativeTokenPriceUSD *math.HexOrDecimal256 `json:"nativeTokenPriceUsd"`
	AvgBlockTime        uint64                `json:"avgBlockTime"`
	Enabled             bool                  `json:"enabled"`
	BlobEnabled         bool                  `json:"blobEnabled"`
}

type ChainStats struct {
	ChainID       uint64 `json:"chainId"`
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	Messages      uint64 `json:"messages"`
	UniqueSenders uint64 `json:"uniqueSenders"`
}

type ChainStatsResponse struct {
	Total  uint64       `json:"total"`
	Chains []ChainStats `json:"chains"`
}

type MessageRequest struct {
	DestChain uint64                `json:"destChain"`
	Recipient string                `json:"recipient"`
	Payload   hexutil.Bytes         `json:"payload"`
	Amount    *math.HexOrDecimal256 `json:"amount"`
}

type BatchRequest struct {
	DestChain  uint64                  `json:"destChain"`
	Recipients []string                `json:"recipients"`
	Payloads   []hexutil.Bytes         `json:"payloads"`
	Amounts    []*math.HexOrDecimal256 `json:"amounts"`
}

type StatusRequest struct {
	Status            types.MessageStatus `json:"status"`
	Reason            string              `json:"reason"`
	ConfirmationTxRef common.Hash         `json:"confirmationTxRef"`
}

type MessageIDResponse struct {
	Status string   `json:"status"`
	IDs    []uint64 `json:"ids"`
}

// MessageView renders a message with hex payload and amount
type MessageView struct {
	*types.CrossChainMessage
	Amount  *math.HexOrDecimal256 `json:"amount"`
	Payload hexutil.Bytes         `json:"payload"`
}

func viewOf(msg *types.CrossChainMessage) MessageView {
	return MessageView{
		CrossChainMessage: msg,
		Amount:            fromBig(msg.Amount),
		Payload:           msg.Payload,
	}
}

func viewsOf(msgs []*types.CrossChainMessage) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, viewOf(m))
	}
	return out
}

type OrderRequest struct {
	OrderID     common.Hash           `json:"orderId"`
	TreasuryID  common.Hash           `json:"treasuryId"`
	User        string                `json:"user"`
	Side        string                `json:"side"`
	Amount      *math.HexOrDecimal256 `json:"amount"`
	Price       *math.HexOrDecimal256 `json:"price"`
	Expiration  uint64                `json:"expiration"`
	DestChainID uint64                `json:"destChainId"`
	Signature   hexutil.Bytes         `json:"signature"`
}

func parseSide(s string) (types.OrderSide, error) {
	switch s {
	case "buy":
		return types.SideBuy, nil
	case "sell":
		return types.SideSell, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", types.ErrInvalidInput, s)
}

type TradeRequest struct {
	TradeID     common.Hash           `json:"tradeId"`
	Buyer       string                `json:"buyer"`
	Seller      string                `json:"seller"`
	Amount      *math.HexOrDecimal256 `json:"amount"`
	Price       *math.HexOrDecimal256 `json:"price"`
	DestChainID uint64                `json:"destChainId"`
}

type BindingResponse struct {
	MessageID uint64      `json:"messageId"`
	Message   MessageView `json:"message"`
}

type HistoryResponse struct {
	User   common.Address `json:"user"`
	Orders []common.Hash  `json:"orders"`
	Trades []common.Hash  `json:"trades"`
}

type DecisionResponse struct {
	ChainID      uint64         `json:"chainId"`
	Size         uint64         `json:"size"`
	DataType     types.DataType `json:"dataType"`
	UseBlob      bool           `json:"useBlob"`
	CalldataCost *big.Int       `json:"calldataCost"`
	BlobCost     *big.Int       `json:"blobCost"`
}

type OptimizerRequest struct {
	SizeThreshold    *uint64 `json:"sizeThreshold"`
	EfficiencyFactor *uint64 `json:"efficiencyFactor"`
}

type OptimizerResponse struct {
	SizeThreshold    uint64 `json:"sizeThreshold"`
	EfficiencyFactor uint64 `json:"efficiencyFactor"`
}

type GasPriceRequest struct {
	GasPrice     *math.HexOrDecimal256 `json:"gasPrice"`
	BlobGasPrice *math.HexOrDecimal256 `json:"blobGasPrice"`
}

type GasPriceResponse struct {
	ChainID      uint64   `json:"chainId"`
	GasPrice     *big.Int `json:"gasPrice"`
	BlobGasPrice *big.Int `json:"blobGasPrice"`
}

type CompressRequest struct {
	DataType string        `json:"dataType"` // classified from the data when empty
	Data     hexutil.Bytes `json:"data"`
}

type CompressResponse struct {
	DataType       types.DataType `json:"dataType"`
	Data           hexutil.Bytes  `json:"data"`
	OriginalSize   int            `json:"originalSize"`
	CompressedSize int            `json:"compressedSize"`
}

type DictionaryEntryRequest struct {
	Pattern hexutil.Bytes `json:"pattern"`
}

type CompressorResponse struct {
	DataType   types.DataType    `json:"dataType"`
	Params     compressor.Params `json:"params"`
	Stats      compressor.Stats  `json:"stats"`
	Dictionary []hexutil.Bytes   `json:"dictionary"`
}
