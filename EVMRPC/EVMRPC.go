package EVMRPC

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"gobridgecore/config"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ybbus/jsonrpc"
)

var ErrNoEndpoint = errors.New("no RPC endpoint configured")

// Chain reaches one destination chain through an ordered list of RPC endpoints
type Chain struct {
	ChainID uint64
	RPCList []string
	logger  log.Logger
}

func NewChain(chainID uint64, rpcList []string) *Chain {
	return &Chain{
		ChainID: chainID,
		RPCList: rpcList,
		logger:  log.New("module", "evmrpc", "chainId", chainID),
	}
}

// each endpoint is tried in order, the whole list up to EVM_RETRIES times
func withEndpoint[T any](ctx context.Context, c *Chain, f func(url string) (T, error)) (res T, err error) {
	if len(c.RPCList) == 0 {
		return res, fmt.Errorf("chain %d: %w", c.ChainID, ErrNoEndpoint)
	}
	for attempt := 0; attempt < config.EVM_RETRIES; attempt++ {
		for _, url := range c.RPCList {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res, err = f(url)
			if err == nil {
				return
			}
			c.logger.Warn("RPC call failed", "url", url, "attempt", attempt, "err", err)
		}
	}
	return
}

func WithClient[T any](ctx context.Context, c *Chain, f func(client *ethclient.Client) (T, error)) (T, error) {
	return withEndpoint(ctx, c, func(url string) (res T, err error) {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return res, fmt.Errorf("error connecting to %s: %w", url, err)
		}
		defer client.Close()
		return f(client)
	})
}

func (c *Chain) GasPrice(ctx context.Context) (*big.Int, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

// BlobBaseFee queries eth_blobBaseFee, chains without blobs answer with an error
func (c *Chain) BlobBaseFee(ctx context.Context) (*big.Int, error) {
	return withEndpoint(ctx, c, func(url string) (*big.Int, error) {
		resp, err := jsonrpc.NewClient(url).Call("eth_blobBaseFee")
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		s, err := resp.GetString()
		if err != nil {
			return nil, err
		}
		return hexutil.DecodeBig(s)
	})
}
