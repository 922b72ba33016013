package config

import (
	"errors"
	"fmt"
	"math/big"

	"gobridgecore/compressor"
	"gobridgecore/optimizer"
	"gobridgecore/signature"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
)

func parseWei(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: %q is not a non-negative integer", field, s)
	}
	return v, nil
}

func optionalAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	return types.ParseAddress(s)
}

// Validate checks everything that is converted at startup
func (c *Configuration) Validate() error {
	var errs []error
	if c.BaseChainID == 0 {
		errs = append(errs, errors.New("base_chain_id is required"))
	}
	if _, err := c.SignatureDomain(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[uint64]bool)
	for _, ch := range c.Chains {
		if seen[ch.ChainID] {
			errs = append(errs, fmt.Errorf("chain %d configured twice", ch.ChainID))
		}
		seen[ch.ChainID] = true
		if _, err := ch.Descriptor(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.OptimizerConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CompressorParams(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Callers(); err != nil {
		errs = append(errs, err)
	}
	if c.GasOracle.Enabled {
		if _, err := types.ParseAddress(c.GasOracle.Operator); err != nil {
			errs = append(errs, fmt.Errorf("gas_oracle.operator: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *ChainConfig) Descriptor() (types.ChainDescriptor, error) {
	endpoint, err := types.ParseAddress(c.BridgeEndpoint)
	if err != nil {
		return types.ChainDescriptor{}, fmt.Errorf("chain %d bridge_endpoint: %w", c.ChainID, err)
	}
	rollup, err := optionalAddress(c.RollupContract)
	if err != nil {
		return types.ChainDescriptor{}, fmt.Errorf("chain %d rollup_contract: %w", c.ChainID, err)
	}
	price, err := parseWei(fmt.Sprintf("chain %d native_token_price_usd", c.ChainID), c.NativeTokenPriceUSD)
	if err != nil {
		return types.ChainDescriptor{}, err
	}
	if err := types.CheckTiming(c.ChainID, c.VerificationBlocks, c.AvgBlockTime); err != nil {
		return types.ChainDescriptor{}, err
	}
	category := types.ChainCategory(c.Category)
	if category != "" && !category.Valid() {
		return types.ChainDescriptor{}, fmt.Errorf("chain %d: unknown category %q", c.ChainID, c.Category)
	}
	return types.ChainDescriptor{
		ChainID:             c.ChainID,
		Name:                c.Name,
		Category:            category,
		Enabled:             true,
		BridgeEndpoint:      endpoint,
		RollupContract:      rollup,
		VerificationBlocks:  c.VerificationBlocks,
		GasToken:            c.GasToken,
		NativeTokenPriceUSD: price,
		AvgBlockTime:        c.AvgBlockTime,
		BlobEnabled:         c.BlobEnabled,
		MaxMessageSize:      c.MaxMessageSize,
	}, nil
}

func (c *Configuration) SignatureDomain() (signature.Domain, error) {
	contract, err := optionalAddress(c.Domain.VerifyingContract)
	if err != nil {
		return signature.Domain{}, fmt.Errorf("domain.verifying_contract: %w", err)
	}
	chainID := c.Domain.ChainID
	if chainID == 0 {
		chainID = c.BaseChainID
	}
	return signature.Domain{
		Name:              c.Domain.Name,
		Version:           c.Domain.Version,
		ChainID:           chainID,
		VerifyingContract: contract,
	}, nil
}

func (c *Configuration) OptimizerConfig() (optimizer.Config, error) {
	gas, err := parseWei("optimizer.default_gas_price", c.Optimizer.DefaultGasPrice)
	if err != nil {
		return optimizer.Config{}, err
	}
	blob, err := parseWei("optimizer.default_blob_gas_price", c.Optimizer.DefaultBlobGasPrice)
	if err != nil {
		return optimizer.Config{}, err
	}
	if f := c.Optimizer.EfficiencyFactor; f != nil && *f > 100 {
		return optimizer.Config{}, fmt.Errorf("optimizer.efficiency_factor %d above 100", *f)
	}
	return optimizer.Config{
		SizeThreshold:       c.Optimizer.SizeThreshold,
		EfficiencyFactor:    c.Optimizer.EfficiencyFactor,
		DefaultGasPrice:     gas,
		DefaultBlobGasPrice: blob,
	}, nil
}

// CompressorParams returns the configured overrides of the default parameters
func (c *Configuration) CompressorParams() (map[types.DataType]compressor.Params, error) {
	out := make(map[types.DataType]compressor.Params, len(c.Compressor))
	for name, p := range c.Compressor {
		dt, ok := types.ParseDataType(name)
		if !ok {
			return nil, fmt.Errorf("compressor: unknown data type %q", name)
		}
		if err := compressor.ValidateParams(p); err != nil {
			return nil, fmt.Errorf("compressor.%s: %w", name, err)
		}
		out[dt] = p
	}
	return out, nil
}

// Callers maps API keys to the identity and roles they authenticate
func (c *Configuration) Callers() (map[string]types.Caller, error) {
	out := make(map[string]types.Caller, len(c.APIKeys))
	for i, k := range c.APIKeys {
		if k.Key == "" {
			return nil, fmt.Errorf("api_keys[%d]: empty key", i)
		}
		if _, ok := out[k.Key]; ok {
			return nil, fmt.Errorf("api_keys[%d]: duplicate key", i)
		}
		addr, err := types.ParseAddress(k.Address)
		if err != nil {
			return nil, fmt.Errorf("api_keys[%d].address: %w", i, err)
		}
		caller := types.Caller{Address: addr}
		for _, name := range k.Roles {
			r, err := types.ParseRole(name)
			if err != nil {
				return nil, fmt.Errorf("api_keys[%d]: %w", i, err)
			}
			caller.Roles |= r
		}
		out[k.Key] = caller
	}
	return out, nil
}
