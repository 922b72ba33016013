// Package signature validates orders signed as EIP-712 typed data. The domain
// separator binds every signature to one protocol instance and chain.
package signature

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const orderType = "Order"

// field order is part of the signed type descriptor, do not reorder
var typeDescriptors = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	orderType: {
		{Name: "orderId", Type: "bytes32"},
		{Name: "treasuryId", Type: "bytes32"},
		{Name: "user", Type: "address"},
		{Name: "side", Type: "uint8"},
		{Name: "amount", Type: "uint256"},
		{Name: "price", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "destinationChainId", Type: "uint256"},
	},
}

type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

type Validator struct {
	typed     apitypes.TypedData
	separator common.Hash
	now       func() time.Time
}

func u256(v uint64) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetUint64(v))
}

// NewValidator hashes the domain once, now defaults to time.Now
func NewValidator(d Domain, now func() time.Time) (*Validator, error) {
	if now == nil {
		now = time.Now
	}
	typed := apitypes.TypedData{
		Types:       typeDescriptors,
		PrimaryType: orderType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           u256(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
	}
	sep, err := typed.HashStruct("EIP712Domain", typed.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("cannot hash signing domain: %w", err)
	}
	return &Validator{
		typed:     typed,
		separator: common.BytesToHash(sep),
		now:       now,
	}, nil
}

func (v *Validator) DomainSeparator() common.Hash {
	return v.separator
}

// OrderDigest is keccak256(0x19 0x01 || domainSeparator || hashStruct(order))
func (v *Validator) OrderDigest(req *types.OrderBridgingRequest) (common.Hash, error) {
	if req.Amount == nil || req.Price == nil {
		return common.Hash{}, fmt.Errorf("%w: order without amount or price", types.ErrInvalidInput)
	}
	msg := apitypes.TypedDataMessage{
		"orderId":            req.OrderID.Bytes(),
		"treasuryId":         req.TreasuryID.Bytes(),
		"user":               req.User.Hex(),
		"side":               u256(uint64(req.Side)),
		"amount":             (*math.HexOrDecimal256)(req.Amount),
		"price":              (*math.HexOrDecimal256)(req.Price),
		"expiration":         u256(req.Expiration),
		"destinationChainId": u256(req.DestChainID),
	}
	structHash, err := v.typed.HashStruct(orderType, msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: cannot hash order: %v", types.ErrInvalidInput, err)
	}

	raw := make([]byte, 0, 2+common.HashLength*2)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, v.separator.Bytes()...)
	raw = append(raw, structHash...)
	return crypto.Keccak256Hash(raw), nil
}

// Recover returns the account that produced sig over digest. Both 0/1 and 27/28 recovery ids are accepted.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", types.ErrSignatureInvalid, len(sig))
	}
	s := append([]byte(nil), sig...)
	if s[64] == 27 || s[64] == 28 {
		s[64] -= 27
	}
	if s[64] != 0 && s[64] != 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", types.ErrSignatureInvalid, sig[64])
	}

	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", types.ErrSignatureInvalid, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ValidateOrder checks expiry, the optional signature and the order values
func (v *Validator) ValidateOrder(req *types.OrderBridgingRequest) error {
	if req.Expiration <= uint64(v.now().Unix()) {
		return fmt.Errorf("%w: order %s expired at %d", types.ErrExpired, req.OrderID.Hex(), req.Expiration)
	}

	if len(req.Signature) > 0 {
		digest, err := v.OrderDigest(req)
		if err != nil {
			return err
		}
		signer, err := Recover(digest, req.Signature)
		if err != nil {
			return err
		}
		if signer != req.User {
			return fmt.Errorf("%w: signed by %s, order user %s", types.ErrSignatureInvalid, signer.Hex(), req.User.Hex())
		}
	}

	if req.Amount == nil || req.Amount.Sign() <= 0 || req.Price == nil || req.Price.Sign() <= 0 {
		return fmt.Errorf("%w: amount and price must be positive", types.ErrInvalidInput)
	}
	if !req.Side.Valid() {
		return fmt.Errorf("%w: order side %d", types.ErrInvalidInput, req.Side)
	}
	return nil
}

// SignOrder signs req for the domain of v, with a 27/28 recovery id
func (v *Validator) SignOrder(key *ecdsa.PrivateKey, req *types.OrderBridgingRequest) ([]byte, error) {
	digest, err := v.OrderDigest(req)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
