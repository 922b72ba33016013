package workers

import (
	"context"
	"time"

	"gobridgecore/metrics"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/log"
)

// a pending message is overdue after this many expected confirmation times
const overdueFactor = 2

type PendingSource interface {
	PendingMessages() []*types.CrossChainMessage
}

type ChainLookup interface {
	Chain(chainID uint64) (*types.ChainDescriptor, error)
}

type BacklogSink interface {
	SetBacklog(backlog map[uint64]metrics.Backlog)
}

// scanPending groups the pending messages by destination chain and counts the overdue ones
func scanPending(now time.Time, logger log.Logger, src PendingSource, chains ChainLookup) map[uint64]metrics.Backlog {
	backlog := make(map[uint64]metrics.Backlog)
	oldest := make(map[uint64]*types.CrossChainMessage)

	for _, msg := range src.PendingMessages() {
		b := backlog[msg.DestChain]
		b.Pending++

		if chain, err := chains.Chain(msg.DestChain); err == nil {
			eta := int64(chain.VerificationBlocks * chain.AvgBlockTime)
			if eta > 0 && now.Unix() > msg.CreatedAt+overdueFactor*eta {
				b.Overdue++
				if oldest[msg.DestChain] == nil {
					oldest[msg.DestChain] = msg
				}
			}
		}
		backlog[msg.DestChain] = b
	}

	for chainID, msg := range oldest {
		logger.Warn("Pending messages overdue", "dest", chainID, "overdue", backlog[chainID].Overdue, "oldest", msg.ID, "age", now.Unix()-msg.CreatedAt)
	}
	return backlog
}

// Worker_pendingMonitor publishes the relayer backlog every interval until ctx is cancelled
func Worker_pendingMonitor(ctx context.Context, src PendingSource, chains ChainLookup, sink BacklogSink, interval time.Duration) {
	logger := log.New("module", "pending")
	logger.Info("Starting pending message monitor", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sink.SetBacklog(scanPending(time.Now(), logger, src, chains))
		select {
		case <-ctx.Done():
			logger.Info("Pending message monitor stopped")
			return
		case <-ticker.C:
		}
	}
}
