package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Role uint8

const (
	RoleAdmin Role = 1 << iota
	RoleOperator
	RoleRelayer
)

func (r Role) String() string {
	var names []string
	if r&RoleAdmin != 0 {
		names = append(names, "admin")
	}
	if r&RoleOperator != 0 {
		names = append(names, "operator")
	}
	if r&RoleRelayer != 0 {
		names = append(names, "relayer")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "operator":
		return RoleOperator, nil
	case "relayer":
		return RoleRelayer, nil
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Caller is the authorization context passed into every mutating operation
type Caller struct {
	Address common.Address
	Roles   Role
}

func (c Caller) Has(r Role) bool {
	return c.Roles&r == r
}

// Require fails with ErrUnauthorized unless the caller holds r
func (c Caller) Require(r Role) error {
	if !c.Has(r) {
		return fmt.Errorf("%w: %s lacks role %s", ErrUnauthorized, c.Address.Hex(), r)
	}
	return nil
}
