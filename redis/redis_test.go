package redis

import (
	"errors"
	"math/big"
	"testing"

	"gobridgecore/messenger"
	"gobridgecore/registry"
	"gobridgecore/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &redis.Pool{
		MaxIdle: 2,
		Dial:    func() (redis.Conn, error) { return redis.Dial("tcp", mr.Addr()) },
	}
	t.Cleanup(func() { _ = pool.Close() })
	return NewStore(pool), mr
}

func message(id uint64, status types.MessageStatus) *types.CrossChainMessage {
	return &types.CrossChainMessage{
		ID:          id,
		SourceChain: 1,
		DestChain:   10,
		Sender:      common.HexToAddress("0xa11ce"),
		Recipient:   common.HexToAddress("0xfeed"),
		Amount:      big.NewInt(int64(id) * 100),
		Payload:     []byte{0xfe, 0x01, byte(id)},
		DataType:    types.DataTypeBinary,
		CreatedAt:   1_700_000_000,
		Nonce:       id - 1,
		Status:      status,
		OriginTxRef: common.BigToHash(big.NewInt(int64(id))),
	}
}

func TestSaveMessageMovesStatusSets(t *testing.T) {
	require := require.New(t)
	s, mr := newStore(t)
	require.NoError(s.Ping())

	msg := message(1, types.StatusPending)
	require.NoError(s.SaveMessage(msg))
	require.NoError(s.SaveMessage(message(2, types.StatusPending)))

	pending, err := s.MessagesByStatus(types.StatusPending)
	require.NoError(err)
	require.Len(pending, 2)
	require.Equal(msg, pending[0])

	msg.Status = types.StatusFailed
	msg.FailureReason = "reverted"
	require.NoError(s.SaveMessage(msg))

	members, err := mr.SMembers(statusSet(types.StatusPending))
	require.NoError(err)
	require.Equal([]string{"2"}, members)
	members, err = mr.SMembers(statusSet(types.StatusFailed))
	require.NoError(err)
	require.Equal([]string{"1"}, members)

	got, err := s.Message(1)
	require.NoError(err)
	require.Equal(types.StatusFailed, got.Status)
	require.Equal("reverted", got.FailureReason)

	_, err = s.Message(3)
	require.ErrorIs(err, types.ErrNotFound)

	all, err := s.LoadMessages()
	require.NoError(err)
	require.Len(all, 2)
	require.Equal(uint64(1), all[0].ID)
	require.Equal(uint64(2), all[1].ID)
}

// sendFailConn refuses to queue one command
type sendFailConn struct {
	redis.Conn
	cmd string
}

func (c sendFailConn) Send(cmd string, args ...interface{}) error {
	if cmd == c.cmd {
		return errors.New("write: broken pipe")
	}
	return c.Conn.Send(cmd, args...)
}

func TestSaveMessageReportsQueueingErrors(t *testing.T) {
	for _, cmd := range []string{"SET", "SREM", "SADD"} {
		t.Run(cmd, func(t *testing.T) {
			mr := miniredis.RunT(t)
			pool := &redis.Pool{
				Dial: func() (redis.Conn, error) {
					conn, err := redis.Dial("tcp", mr.Addr())
					if err != nil {
						return nil, err
					}
					return sendFailConn{Conn: conn, cmd: cmd}, nil
				},
			}
			t.Cleanup(func() { _ = pool.Close() })

			err := NewStore(pool).SaveMessage(message(1, types.StatusPending))
			require.ErrorContains(t, err, "broken pipe")
			require.False(t, mr.Exists(messageKey(1)))
			require.False(t, mr.Exists(statusSet(types.StatusPending)))
		})
	}
}

func TestMissingRecordsAreSkipped(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, s.SaveMessage(message(1, types.StatusPending)))
	require.NoError(t, s.SaveMessage(message(2, types.StatusPending)))
	mr.Del(messageKey(1))

	msgs, err := s.LoadMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, uint64(2), msgs[0].ID)
}

func TestChainsKeepRegistrationOrder(t *testing.T) {
	require := require.New(t)
	s, _ := newStore(t)
	admin := types.Caller{Address: common.HexToAddress("0xa1"), Roles: types.RoleAdmin}

	reg := registry.New(nil, s)
	for _, id := range []uint64{8453, 10, 42161} {
		require.NoError(reg.AddChain(admin, types.ChainDescriptor{
			ChainID:             id,
			Name:                "chain",
			BridgeEndpoint:      common.BigToAddress(new(big.Int).SetUint64(id)),
			NativeTokenPriceUSD: big.NewInt(3),
		}))
	}
	require.NoError(reg.UpdateChain(admin, 8453, types.ChainUpdate{
		BridgeEndpoint: common.HexToAddress("0x2105"),
		Enabled:        false,
	}))

	chains, err := s.LoadChains()
	require.NoError(err)
	require.Len(chains, 3)

	restored := registry.New(nil, nil)
	restored.Restore(chains)
	require.Equal(reg.ListAll(), restored.ListAll())
	require.Equal([]uint64{10, 42161}, restored.ListSupportedIDs())
}

func TestBindingsRestoreMessenger(t *testing.T) {
	require := require.New(t)
	s, _ := newStore(t)

	order := &types.Binding{Kind: types.BindingOrder, Key: common.HexToHash("0x01"), Users: []common.Address{common.HexToAddress("0xa11ce")}, MessageID: 2}
	trade := &types.Binding{Kind: types.BindingTrade, Key: common.HexToHash("0x01"), Users: []common.Address{common.HexToAddress("0xb1"), common.HexToAddress("0x51")}, MessageID: 1}
	require.NoError(s.SaveBinding(order))
	require.NoError(s.SaveBinding(trade))
	require.NoError(s.SaveMessage(message(1, types.StatusPending)))
	require.NoError(s.SaveMessage(message(2, types.StatusConfirmed)))

	bindings, err := s.LoadBindings()
	require.NoError(err)
	require.Equal([]*types.Binding{trade, order}, bindings)

	msgs, err := s.LoadMessages()
	require.NoError(err)

	m := messenger.New(messenger.Config{SourceChain: 1}, messenger.Deps{})
	m.Restore(msgs, bindings)

	id, ok := m.MessageForOrder(order.Key)
	require.True(ok)
	require.Equal(uint64(2), id)
	id, ok = m.MessageForTrade(trade.Key)
	require.True(ok)
	require.Equal(uint64(1), id)
	require.Equal([]common.Hash{trade.Key}, m.TradeHistory(common.HexToAddress("0x51")))
	require.Len(m.PendingMessages(), 1)
	require.Equal(uint64(2), m.TotalMessages())
}

var (
	_ messenger.Journal = (*Store)(nil)
	_ registry.Journal  = (*Store)(nil)
)
