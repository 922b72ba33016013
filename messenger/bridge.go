package messenger

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"gobridgecore/events"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	bytes32Ty = mustType("bytes32")
	addressTy = mustType("address")
	uint8Ty   = mustType("uint8")
	uint256Ty = mustType("uint256")

	orderArgs = abi.Arguments{
		{Name: "orderId", Type: bytes32Ty},
		{Name: "treasuryId", Type: bytes32Ty},
		{Name: "user", Type: addressTy},
		{Name: "side", Type: uint8Ty},
		{Name: "amount", Type: uint256Ty},
		{Name: "price", Type: uint256Ty},
		{Name: "expiration", Type: uint256Ty},
	}
	tradeArgs = abi.Arguments{
		{Name: "tradeId", Type: bytes32Ty},
		{Name: "buyer", Type: addressTy},
		{Name: "seller", Type: addressTy},
		{Name: "amount", Type: uint256Ty},
		{Name: "price", Type: uint256Ty},
		{Name: "settledAt", Type: uint256Ty},
	}

	orderSelector = crypto.Keccak256([]byte("bridgeOrder(bytes32,bytes32,address,uint8,uint256,uint256,uint256)"))[:4]
	tradeSelector = crypto.Keccak256([]byte("settleTrade(bytes32,address,address,uint256,uint256,uint256)"))[:4]
)

// EncodeOrder builds the calldata delivered to the bridge endpoint for an order
func EncodeOrder(req *types.OrderBridgingRequest) ([]byte, error) {
	body, err := orderArgs.Pack(
		[32]byte(req.OrderID),
		[32]byte(req.TreasuryID),
		req.User,
		uint8(req.Side),
		req.Amount,
		req.Price,
		new(big.Int).SetUint64(req.Expiration),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode order: %v", types.ErrInvalidInput, err)
	}
	return append(append([]byte(nil), orderSelector...), body...), nil
}

// EncodeTrade builds the calldata delivered to the bridge endpoint for a trade
func EncodeTrade(req *types.TradeSettlementRequest, settledAt int64) ([]byte, error) {
	body, err := tradeArgs.Pack(
		[32]byte(req.TradeID),
		req.Buyer,
		req.Seller,
		req.Amount,
		req.Price,
		big.NewInt(settledAt),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode trade: %v", types.ErrInvalidInput, err)
	}
	return append(append([]byte(nil), tradeSelector...), body...), nil
}

func validateTrade(req *types.TradeSettlementRequest) error {
	if req.Buyer == (common.Address{}) || req.Seller == (common.Address{}) {
		return fmt.Errorf("%w: zero counterparty", types.ErrInvalidInput)
	}
	if req.Buyer == req.Seller {
		return fmt.Errorf("%w: buyer and seller are both %s", types.ErrInvalidInput, req.Buyer.Hex())
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 || req.Price == nil || req.Price.Sign() <= 0 {
		return fmt.Errorf("%w: amount and price must be positive", types.ErrInvalidInput)
	}
	return nil
}

// bridge creates the message carrying payload to the bridge endpoint of chain and
// prices it. Caller holds m.mu and has validated the request.
func (m *Messenger) bridge(caller types.Caller, chain *types.ChainDescriptor, payload []byte, amount *big.Int) (*types.BridgeResult, error) {
	d := &draft{
		chain:     chain,
		sender:    caller.Address,
		recipient: chain.BridgeEndpoint,
		amount:    amount,
		payload:   payload,
	}
	if err := validateDraft(d); err != nil {
		return nil, err
	}
	if err := m.encode(d); err != nil {
		return nil, err
	}
	est, err := m.costs.Estimate(chain.ChainID, uint64(len(d.payload)), d.blob)
	if err != nil {
		return nil, err
	}

	msg := m.record(d)
	eta := time.Duration(chain.VerificationBlocks*chain.AvgBlockTime) * time.Second
	return &types.BridgeResult{
		MessageID:             msg.ID,
		OriginTxRef:           msg.OriginTxRef,
		EstimatedConfirmation: m.now().Add(eta).Unix(),
		EstimatedFee:          est.CostWei,
		Status:                msg.Status,
	}, nil
}

// BridgeOrder sends an order to its destination chain. An order id is bridged at most once.
func (m *Messenger) BridgeOrder(caller types.Caller, req *types.OrderBridgingRequest) (*types.BridgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, err := m.supportedChain(req.DestChainID)
	if err != nil {
		return nil, err
	}
	if id, ok := m.orders[req.OrderID]; ok {
		return nil, fmt.Errorf("%w: order %s already bridged as message %d", types.ErrConflict, req.OrderID.Hex(), id)
	}
	if err := m.validator.ValidateOrder(req); err != nil {
		return nil, err
	}
	payload, err := EncodeOrder(req)
	if err != nil {
		return nil, err
	}

	res, err := m.bridge(caller, chain, payload, req.Amount)
	if err != nil {
		return nil, err
	}

	m.orders[req.OrderID] = res.MessageID
	m.orderHistory[req.User] = append(m.orderHistory[req.User], req.OrderID)
	m.persistBinding(&types.Binding{
		Kind:      types.BindingOrder,
		Key:       req.OrderID,
		Users:     []common.Address{req.User},
		MessageID: res.MessageID,
	})

	m.logger.Info("Order bridged", "order", req.OrderID, "user", req.User, "dest", chain.ChainID, "message", res.MessageID, "fee", res.EstimatedFee)
	m.events.Emit(events.New(events.OrderBridged, res.MessageID, chain.ChainID, map[string]string{
		"orderId": req.OrderID.Hex(),
		"user":    req.User.Hex(),
		"fee":     res.EstimatedFee.String(),
		"eta":     strconv.FormatInt(res.EstimatedConfirmation, 10),
	}))
	return res, nil
}

// SettleTrade sends a matched trade to its destination chain. A trade id is settled at most once.
func (m *Messenger) SettleTrade(caller types.Caller, req *types.TradeSettlementRequest) (*types.BridgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, err := m.supportedChain(req.DestChainID)
	if err != nil {
		return nil, err
	}
	if id, ok := m.trades[req.TradeID]; ok {
		return nil, fmt.Errorf("%w: trade %s already settled as message %d", types.ErrConflict, req.TradeID.Hex(), id)
	}
	if err := validateTrade(req); err != nil {
		return nil, err
	}
	payload, err := EncodeTrade(req, m.now().Unix())
	if err != nil {
		return nil, err
	}

	res, err := m.bridge(caller, chain, payload, req.Amount)
	if err != nil {
		return nil, err
	}

	m.trades[req.TradeID] = res.MessageID
	m.tradeHistory[req.Buyer] = append(m.tradeHistory[req.Buyer], req.TradeID)
	m.tradeHistory[req.Seller] = append(m.tradeHistory[req.Seller], req.TradeID)
	m.persistBinding(&types.Binding{
		Kind:      types.BindingTrade,
		Key:       req.TradeID,
		Users:     []common.Address{req.Buyer, req.Seller},
		MessageID: res.MessageID,
	})

	m.logger.Info("Trade settled", "trade", req.TradeID, "buyer", req.Buyer, "seller", req.Seller, "dest", chain.ChainID, "message", res.MessageID)
	m.events.Emit(events.New(events.TradeSettled, res.MessageID, chain.ChainID, map[string]string{
		"tradeId": req.TradeID.Hex(),
		"buyer":   req.Buyer.Hex(),
		"seller":  req.Seller.Hex(),
		"fee":     res.EstimatedFee.String(),
	}))
	return res, nil
}
