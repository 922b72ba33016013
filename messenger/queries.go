package messenger

import (
	"fmt"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
)

func (m *Messenger) Message(id uint64) (*types.CrossChainMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %d", types.ErrNotFound, id)
	}
	return msg.Copy(), nil
}

func (m *Messenger) collect(ids []uint64) []*types.CrossChainMessage {
	out := make([]*types.CrossChainMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.messages[id].Copy())
	}
	return out
}

// MessagesBySender returns the messages of sender in creation order
func (m *Messenger) MessagesBySender(sender common.Address) []*types.CrossChainMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.bySender[sender])
}

// MessagesByChain returns the messages to chainID in creation order
func (m *Messenger) MessagesByChain(chainID uint64) []*types.CrossChainMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byChain[chainID])
}

// PendingMessages returns every message awaiting a relayer outcome, oldest first
func (m *Messenger) PendingMessages() []*types.CrossChainMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0, m.pending.Len())
	m.pending.Ascend(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return m.collect(ids)
}

func (m *Messenger) MessageCounts() map[uint64]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[uint64]uint64, len(m.byChain))
	for chain, ids := range m.byChain {
		counts[chain] = uint64(len(ids))
	}
	return counts
}

func (m *Messenger) MessageCount(chainID uint64) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.byChain[chainID]))
}

func (m *Messenger) TotalMessages() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.messages))
}

// UniqueSenders estimates the number of distinct senders to chainID
func (m *Messenger) UniqueSenders(chainID uint64) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sk, ok := m.senders[chainID]
	if !ok {
		return 0
	}
	return sk.Estimate()
}

func (m *Messenger) MessageForOrder(orderID common.Hash) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.orders[orderID]
	return id, ok
}

func (m *Messenger) MessageForTrade(tradeID common.Hash) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.trades[tradeID]
	return id, ok
}

func (m *Messenger) OrderHistory(user common.Address) []common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]common.Hash(nil), m.orderHistory[user]...)
}

func (m *Messenger) TradeHistory(user common.Address) []common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]common.Hash(nil), m.tradeHistory[user]...)
}
