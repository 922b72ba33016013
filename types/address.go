package types

import (
	"fmt"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress accepts a 0x prefixed hex address in any case
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", ErrInvalidInput, s)
	}
	addr := common.HexToAddress(s)
	if err := ethav.Validate(addr.Hex()); err != nil {
		return common.Address{}, fmt.Errorf("%w: invalid address %q: %v", ErrInvalidInput, s, err)
	}
	return addr, nil
}
