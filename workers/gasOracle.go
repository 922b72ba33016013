package workers

import (
	"context"
	"math/big"
	"time"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/log"
)

// GasSource is a destination chain node, see EVMRPC.Chain
type GasSource interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	BlobBaseFee(ctx context.Context) (*big.Int, error)
}

type PriceSetter interface {
	SetGasPrice(caller types.Caller, chainID uint64, gasPrice, blobGasPrice *big.Int) error
}

// pollGasPrice copies the current node prices of one chain into the optimizer.
// Chains without blobs keep their configured blob gas price.
func pollGasPrice(ctx context.Context, logger log.Logger, chainID uint64, src GasSource, setter PriceSetter, caller types.Caller) error {
	gasPrice, err := src.GasPrice(ctx)
	if err != nil {
		return err
	}
	blobGasPrice, err := src.BlobBaseFee(ctx)
	if err != nil {
		logger.Debug("Blob base fee unavailable", "err", err)
		blobGasPrice = nil
	}
	return setter.SetGasPrice(caller, chainID, gasPrice, blobGasPrice)
}

// Worker_gasOracle refreshes the gas prices of chainID every interval until ctx is cancelled
func Worker_gasOracle(ctx context.Context, chainID uint64, src GasSource, setter PriceSetter, caller types.Caller, interval time.Duration) {
	logger := log.New("module", "gasoracle", "chainId", chainID)
	logger.Info("Starting gas oracle", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := pollGasPrice(ctx, logger, chainID, src, setter, caller); err != nil && ctx.Err() == nil {
			logger.Warn("Error refreshing gas price", "err", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("Gas oracle stopped")
			return
		case <-ticker.C:
		}
	}
}
