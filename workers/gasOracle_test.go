package workers

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	gas, blob       *big.Int
	gasErr, blobErr error
}

func (n *fakeNode) GasPrice(context.Context) (*big.Int, error)    { return n.gas, n.gasErr }
func (n *fakeNode) BlobBaseFee(context.Context) (*big.Int, error) { return n.blob, n.blobErr }

type update struct {
	caller    types.Caller
	chainID   uint64
	gas, blob *big.Int
}

type recorder struct {
	mu      sync.Mutex
	updates []update
}

func (r *recorder) SetGasPrice(caller types.Caller, chainID uint64, gas, blob *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update{caller, chainID, gas, blob})
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

var oracle = types.Caller{Address: common.HexToAddress("0xa1"), Roles: types.RoleOperator}

func TestPollGasPrice(t *testing.T) {
	logger := log.New()

	t.Run("blob chain", func(t *testing.T) {
		rec := &recorder{}
		node := &fakeNode{gas: big.NewInt(7), blob: big.NewInt(3)}
		require.NoError(t, pollGasPrice(context.Background(), logger, 10, node, rec, oracle))
		require.Len(t, rec.updates, 1)
		require.Equal(t, uint64(10), rec.updates[0].chainID)
		require.Equal(t, oracle, rec.updates[0].caller)
		require.Equal(t, int64(7), rec.updates[0].gas.Int64())
		require.Equal(t, int64(3), rec.updates[0].blob.Int64())
	})

	t.Run("no blob fee keeps the configured one", func(t *testing.T) {
		rec := &recorder{}
		node := &fakeNode{gas: big.NewInt(7), blobErr: errors.New("method not found")}
		require.NoError(t, pollGasPrice(context.Background(), logger, 56, node, rec, oracle))
		require.Len(t, rec.updates, 1)
		require.Nil(t, rec.updates[0].blob)
	})

	t.Run("gas price failure skips the update", func(t *testing.T) {
		rec := &recorder{}
		node := &fakeNode{gasErr: errors.New("connection refused")}
		require.Error(t, pollGasPrice(context.Background(), logger, 1, node, rec, oracle))
		require.Empty(t, rec.updates)
	})
}

func TestGasOracleStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	node := &fakeNode{gas: big.NewInt(1), blob: big.NewInt(1)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Worker_gasOracle(ctx, 10, node, rec, oracle, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gas oracle did not stop")
	}
}
