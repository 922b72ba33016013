package signature

import (
	"math/big"
	"testing"
	"time"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	now    = time.Unix(1_700_000_000, 0)
	domain = Domain{
		Name:              "CrossChainMessenger",
		Version:           "1",
		ChainID:           1,
		VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000c0de1"),
	}
)

func fixedClock() time.Time { return now }

func newValidator(t *testing.T, d Domain) *Validator {
	t.Helper()
	v, err := NewValidator(d, fixedClock)
	require.NoError(t, err)
	return v
}

func signedOrder(t *testing.T, v *Validator) *types.OrderBridgingRequest {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	req := &types.OrderBridgingRequest{
		OrderID:     common.HexToHash("0x01"),
		TreasuryID:  common.HexToHash("0x02"),
		User:        crypto.PubkeyToAddress(key.PublicKey),
		Side:        types.SideBuy,
		Amount:      big.NewInt(1_000_000),
		Price:       big.NewInt(99_500),
		Expiration:  uint64(now.Add(time.Hour).Unix()),
		DestChainID: 10,
	}
	req.Signature, err = v.SignOrder(key, req)
	require.NoError(t, err)
	return req
}

func TestValidSignature(t *testing.T) {
	v := newValidator(t, domain)
	req := signedOrder(t, v)
	require.NoError(t, v.ValidateOrder(req))

	// 0/1 recovery ids work as well
	req.Signature[64] -= 27
	require.NoError(t, v.ValidateOrder(req))
}

func TestUnsignedOrderSkipsRecovery(t *testing.T) {
	v := newValidator(t, domain)
	req := signedOrder(t, v)
	req.Signature = nil
	req.User = common.HexToAddress("0xdead")
	require.NoError(t, v.ValidateOrder(req))
}

func TestTamperedFieldsFail(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.OrderBridgingRequest)
	}{
		{"orderId", func(r *types.OrderBridgingRequest) { r.OrderID = common.HexToHash("0x03") }},
		{"treasuryId", func(r *types.OrderBridgingRequest) { r.TreasuryID = common.HexToHash("0x04") }},
		{"user", func(r *types.OrderBridgingRequest) { r.User = common.HexToAddress("0xbeef") }},
		{"side", func(r *types.OrderBridgingRequest) { r.Side = types.SideSell }},
		{"amount", func(r *types.OrderBridgingRequest) { r.Amount = big.NewInt(1_000_001) }},
		{"price", func(r *types.OrderBridgingRequest) { r.Price = big.NewInt(1) }},
		{"expiration", func(r *types.OrderBridgingRequest) { r.Expiration++ }},
		{"destination", func(r *types.OrderBridgingRequest) { r.DestChainID = 42161 }},
	}

	v := newValidator(t, domain)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedOrder(t, v)
			tt.mutate(req)
			require.ErrorIs(t, v.ValidateOrder(req), types.ErrSignatureInvalid)
		})
	}
}

func TestSignatureBoundToDomain(t *testing.T) {
	v := newValidator(t, domain)
	req := signedOrder(t, v)

	otherChain := domain
	otherChain.ChainID = 5
	otherContract := domain
	otherContract.VerifyingContract = common.HexToAddress("0x0c0de2")
	otherVersion := domain
	otherVersion.Version = "2"

	for _, d := range []Domain{otherChain, otherContract, otherVersion} {
		other := newValidator(t, d)
		require.NotEqual(t, v.DomainSeparator(), other.DomainSeparator())
		require.ErrorIs(t, other.ValidateOrder(req), types.ErrSignatureInvalid)
	}
}

func TestExpired(t *testing.T) {
	v := newValidator(t, domain)
	req := signedOrder(t, v)
	req.Expiration = uint64(now.Unix())
	require.ErrorIs(t, v.ValidateOrder(req), types.ErrExpired)
}

func TestNonPositiveValues(t *testing.T) {
	v := newValidator(t, domain)

	req := signedOrder(t, v)
	req.Signature = nil
	req.Amount = big.NewInt(0)
	require.ErrorIs(t, v.ValidateOrder(req), types.ErrInvalidInput)

	req = signedOrder(t, v)
	req.Signature = nil
	req.Price = big.NewInt(-5)
	require.ErrorIs(t, v.ValidateOrder(req), types.ErrInvalidInput)

	req = signedOrder(t, v)
	req.Amount = nil
	require.ErrorIs(t, v.ValidateOrder(req), types.ErrInvalidInput)
}

func TestMalformedSignature(t *testing.T) {
	v := newValidator(t, domain)

	req := signedOrder(t, v)
	req.Signature = req.Signature[:64]
	require.ErrorIs(t, v.ValidateOrder(req), types.ErrSignatureInvalid)

	req = signedOrder(t, v)
	req.Signature[64] = 5
	require.ErrorIs(t, v.ValidateOrder(req), types.ErrSignatureInvalid)
}

func TestDigestIsDeterministic(t *testing.T) {
	v := newValidator(t, domain)
	req := signedOrder(t, v)

	a, err := v.OrderDigest(req)
	require.NoError(t, err)
	b, err := newValidator(t, domain).OrderDigest(req)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
