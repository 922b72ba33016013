package messenger

import (
	"math/big"
	"testing"
	"time"

	"gobridgecore/compressor"
	"gobridgecore/events"
	"gobridgecore/optimizer"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func signedOrder(t *testing.T, e *env) *types.OrderBridgingRequest {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	req := &types.OrderBridgingRequest{
		OrderID:     crypto.Keccak256Hash([]byte(t.Name()), key.D.Bytes()),
		TreasuryID:  common.HexToHash("0x7e"),
		User:        crypto.PubkeyToAddress(key.PublicKey),
		Side:        types.SideSell,
		Amount:      big.NewInt(5_000),
		Price:       big.NewInt(101),
		Expiration:  uint64(now.Add(10 * time.Minute).Unix()),
		DestChainID: chainA,
	}
	req.Signature, err = e.val.SignOrder(key, req)
	require.NoError(t, err)
	return req
}

func trade() *types.TradeSettlementRequest {
	return &types.TradeSettlementRequest{
		TradeID:     common.HexToHash("0x77"),
		Buyer:       common.HexToAddress("0xb1"),
		Seller:      common.HexToAddress("0x51"),
		Amount:      big.NewInt(3),
		Price:       big.NewInt(250),
		DestChainID: chainA,
	}
}

func TestBridgeOrder(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	req := signedOrder(t, e)

	res, err := e.m.BridgeOrder(alice, req)
	require.NoError(err)
	require.Equal(uint64(1), res.MessageID)
	require.Equal(types.StatusPending, res.Status)
	require.Equal(now.Add(20*time.Second).Unix(), res.EstimatedConfirmation)

	msg, err := e.m.Message(res.MessageID)
	require.NoError(err)
	require.Equal(res.OriginTxRef, msg.OriginTxRef)
	require.Equal(common.HexToAddress("0x0a0a"), msg.Recipient)
	require.Equal(types.DataTypeTransaction, msg.DataType)
	require.Len(msg.Payload, 4+7*32)
	require.Equal(0, req.Amount.Cmp(msg.Amount))

	want, err := EncodeOrder(req)
	require.NoError(err)
	require.Equal(want, msg.Payload)

	est, err := e.opt.Estimate(chainA, uint64(len(msg.Payload)), false)
	require.NoError(err)
	require.Equal(0, est.CostWei.Cmp(res.EstimatedFee))

	id, ok := e.m.MessageForOrder(req.OrderID)
	require.True(ok)
	require.Equal(res.MessageID, id)
	require.Equal([]common.Hash{req.OrderID}, e.m.OrderHistory(req.User))
	require.Len(e.journal.bindings, 1)
	require.Equal(types.BindingOrder, e.journal.bindings[0].Kind)
	require.Equal(events.OrderBridged, e.kinds[len(e.kinds)-1])
}

func TestBridgeOrderIsIdempotent(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	req := signedOrder(t, e)

	_, err := e.m.BridgeOrder(alice, req)
	require.NoError(err)
	before := e.m.MessagesByChain(chainA)
	kinds := len(e.kinds)

	_, err = e.m.BridgeOrder(bob, req)
	require.ErrorIs(err, types.ErrConflict)
	require.Equal(before, e.m.MessagesByChain(chainA))
	require.Equal(uint64(1), e.m.TotalMessages())
	require.Len(e.m.OrderHistory(req.User), 1)
	require.Len(e.kinds, kinds)
}

func TestBridgeOrderRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.OrderBridgingRequest)
		err    error
	}{
		{"unsupported chain", func(r *types.OrderBridgingRequest) { r.DestChainID = 5 }, types.ErrUnsupported},
		{"tampered amount", func(r *types.OrderBridgingRequest) { r.Amount = big.NewInt(5_001) }, types.ErrSignatureInvalid},
		{"tampered user", func(r *types.OrderBridgingRequest) { r.User = bob.Address }, types.ErrSignatureInvalid},
		{"expired", func(r *types.OrderBridgingRequest) { r.Expiration = uint64(now.Unix() - 1) }, types.ErrExpired},
		{"unsigned zero price", func(r *types.OrderBridgingRequest) {
			r.Signature = nil
			r.Price = big.NewInt(0)
		}, types.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			req := signedOrder(t, e)
			tt.mutate(req)

			_, err := e.m.BridgeOrder(alice, req)
			require.ErrorIs(t, err, tt.err)
			require.Zero(t, e.m.TotalMessages())
			_, ok := e.m.MessageForOrder(req.OrderID)
			require.False(t, ok)
			require.Empty(t, e.journal.bindings)
		})
	}
}

func TestSettleTrade(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	req := trade()

	res, err := e.m.SettleTrade(operator, req)
	require.NoError(err)
	require.Equal(types.StatusPending, res.Status)
	require.Equal(now.Add(20*time.Second).Unix(), res.EstimatedConfirmation)
	require.Positive(res.EstimatedFee.Sign())

	msg, err := e.m.Message(res.MessageID)
	require.NoError(err)
	require.Len(msg.Payload, 4+6*32)
	require.Equal(operator.Address, msg.Sender)

	require.Equal([]common.Hash{req.TradeID}, e.m.TradeHistory(req.Buyer))
	require.Equal([]common.Hash{req.TradeID}, e.m.TradeHistory(req.Seller))
	id, ok := e.m.MessageForTrade(req.TradeID)
	require.True(ok)
	require.Equal(res.MessageID, id)
	require.Equal([]common.Address{req.Buyer, req.Seller}, e.journal.bindings[0].Users)

	_, err = e.m.SettleTrade(operator, req)
	require.ErrorIs(err, types.ErrConflict)
	require.Equal(uint64(1), e.m.TotalMessages())
	require.Equal(events.TradeSettled, e.kinds[len(e.kinds)-1])
}

func TestSettleTradeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.TradeSettlementRequest)
		err    error
	}{
		{"self trade", func(r *types.TradeSettlementRequest) { r.Seller = r.Buyer }, types.ErrInvalidInput},
		{"zero amount", func(r *types.TradeSettlementRequest) { r.Amount = new(big.Int) }, types.ErrInvalidInput},
		{"negative price", func(r *types.TradeSettlementRequest) { r.Price = big.NewInt(-1) }, types.ErrInvalidInput},
		{"missing price", func(r *types.TradeSettlementRequest) { r.Price = nil }, types.ErrInvalidInput},
		{"zero buyer", func(r *types.TradeSettlementRequest) { r.Buyer = common.Address{} }, types.ErrInvalidInput},
		{"unsupported chain", func(r *types.TradeSettlementRequest) { r.DestChainID = 5 }, types.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			req := trade()
			tt.mutate(req)

			_, err := e.m.SettleTrade(operator, req)
			require.ErrorIs(t, err, tt.err)
			require.Zero(t, e.m.TotalMessages())
			require.Empty(t, e.m.TradeHistory(req.Buyer))
		})
	}
}

func TestBridgeUsesBlobWhenWorthIt(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	// a tiny threshold makes order calldata eligible for blobs on chain B
	require.NoError(e.opt.SetSizeThreshold(admin, 64))
	require.NoError(e.opt.SetGasPrice(operator, chainB, big.NewInt(1e12), big.NewInt(1)))

	req := signedOrder(t, e)
	req.DestChainID = chainB
	req.Signature = nil

	res, err := e.m.BridgeOrder(alice, req)
	require.NoError(err)
	msg, _ := e.m.Message(res.MessageID)
	require.True(msg.BlobEncoded)

	back, err := e.comp.Decompress(msg.Payload)
	require.NoError(err)
	want, _ := EncodeOrder(req)
	require.Equal(want, back)

	est, err := e.opt.Estimate(chainB, uint64(len(msg.Payload)), true)
	require.NoError(err)
	require.Equal(0, est.CostWei.Cmp(res.EstimatedFee))
}

func TestEncodedPayloadsClassifyAsTransactions(t *testing.T) {
	e := newEnv(t)
	order, err := EncodeOrder(signedOrder(t, e))
	require.NoError(t, err)
	require.Equal(t, types.DataTypeTransaction, compressor.Classify(order))

	tr, err := EncodeTrade(trade(), now.Unix())
	require.NoError(t, err)
	require.Equal(t, types.DataTypeTransaction, compressor.Classify(tr))
}

var _ CostModel = (*optimizer.Optimizer)(nil)
