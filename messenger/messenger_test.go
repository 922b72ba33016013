package messenger

import (
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"gobridgecore/compressor"
	"gobridgecore/events"
	"gobridgecore/optimizer"
	"gobridgecore/registry"
	"gobridgecore/signature"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const (
	baseChain = 1
	chainA    = 10   // calldata only
	chainB    = 8453 // blob capable
)

var (
	now = time.Unix(1_700_000_000, 0)

	admin    = types.Caller{Address: common.HexToAddress("0xa1"), Roles: types.RoleAdmin}
	operator = types.Caller{Address: common.HexToAddress("0xb2"), Roles: types.RoleOperator}
	relayer  = types.Caller{Address: common.HexToAddress("0xc3"), Roles: types.RoleRelayer}
	alice    = types.Caller{Address: common.HexToAddress("0xa11ce")}
	bob      = types.Caller{Address: common.HexToAddress("0xb0b")}

	recipient = common.HexToAddress("0xfeed")
)

type memJournal struct {
	msgs     map[uint64]*types.CrossChainMessage
	bindings []*types.Binding
}

func newMemJournal() *memJournal {
	return &memJournal{msgs: make(map[uint64]*types.CrossChainMessage)}
}

func (j *memJournal) SaveMessage(msg *types.CrossChainMessage) error {
	j.msgs[msg.ID] = msg.Copy()
	return nil
}

func (j *memJournal) SaveBinding(b *types.Binding) error {
	cp := *b
	j.bindings = append(j.bindings, &cp)
	return nil
}

func (j *memJournal) messages() []*types.CrossChainMessage {
	out := make([]*types.CrossChainMessage, 0, len(j.msgs))
	for _, m := range j.msgs {
		out = append(out, m.Copy())
	}
	return out
}

type env struct {
	m       *Messenger
	reg     *registry.Registry
	comp    *compressor.Compressor
	opt     *optimizer.Optimizer
	val     *signature.Validator
	journal *memJournal
	kinds   []events.Kind
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{journal: newMemJournal()}

	bus := events.NewBus()
	bus.Handle(func(ev events.Event) { e.kinds = append(e.kinds, ev.Kind) })

	e.reg = registry.New(nil, nil)
	require.NoError(t, e.reg.AddChain(admin, types.ChainDescriptor{
		ChainID:             chainA,
		Name:                "A",
		Category:            types.CategoryRollup,
		BridgeEndpoint:      common.HexToAddress("0x0a0a"),
		VerificationBlocks:  10,
		AvgBlockTime:        2,
		NativeTokenPriceUSD: big.NewInt(1e18),
		MaxMessageSize:      16 * 1024,
	}))
	require.NoError(t, e.reg.AddChain(admin, types.ChainDescriptor{
		ChainID:            chainB,
		Name:               "B",
		Category:           types.CategoryRollup,
		BridgeEndpoint:     common.HexToAddress("0x0b0b"),
		VerificationBlocks: 5,
		AvgBlockTime:       12,
		BlobEnabled:        true,
	}))

	e.comp = compressor.New(bus)
	e.opt = optimizer.New(optimizer.Config{
		DefaultGasPrice:     big.NewInt(20e9),
		DefaultBlobGasPrice: big.NewInt(1),
	}, e.reg, e.comp, bus)

	var err error
	e.val, err = signature.NewValidator(signature.Domain{
		Name:              "CrossChainMessenger",
		Version:           "1",
		ChainID:           baseChain,
		VerifyingContract: common.HexToAddress("0xc0de"),
	}, func() time.Time { return now })
	require.NoError(t, err)

	e.m = New(Config{SourceChain: baseChain}, Deps{
		Chains:    e.reg,
		Costs:     e.opt,
		Encoder:   e.comp,
		Validator: e.val,
		Journal:   e.journal,
		Events:    bus,
		Now:       func() time.Time { return now },
	})
	return e
}

func TestCreateMessage(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	id, err := e.m.CreateMessage(alice, chainA, recipient, []byte("hello"), big.NewInt(7))
	require.NoError(err)
	require.Equal(uint64(1), id)

	msg, err := e.m.Message(id)
	require.NoError(err)
	require.Equal(uint64(baseChain), msg.SourceChain)
	require.Equal(uint64(chainA), msg.DestChain)
	require.Equal(alice.Address, msg.Sender)
	require.Equal(recipient, msg.Recipient)
	require.Equal(int64(7), msg.Amount.Int64())
	require.Equal([]byte("hello"), msg.Payload)
	require.False(msg.BlobEncoded)
	require.Equal(types.StatusPending, msg.Status)
	require.Equal(now.Unix(), msg.CreatedAt)
	require.Equal(uint64(0), msg.Nonce)
	require.NotEqual(common.Hash{}, msg.OriginTxRef)

	id2, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(err)
	require.Equal(uint64(2), id2)
	msg2, _ := e.m.Message(id2)
	require.Equal(uint64(1), msg2.Nonce)
	require.Zero(msg2.Amount.Sign())
	require.NotEqual(msg.OriginTxRef, msg2.OriginTxRef)

	// nonces are per sender
	id3, err := e.m.CreateMessage(bob, chainA, recipient, nil, nil)
	require.NoError(err)
	msg3, _ := e.m.Message(id3)
	require.Equal(uint64(0), msg3.Nonce)

	require.Len(e.m.MessagesBySender(alice.Address), 2)
	require.Len(e.m.MessagesByChain(chainA), 3)
	require.Len(e.m.PendingMessages(), 3)
	require.Equal(uint64(3), e.m.MessageCount(chainA))
	require.Equal(map[uint64]uint64{chainA: 3}, e.m.MessageCounts())
	require.Equal(uint64(3), e.m.TotalMessages())
	require.Equal(uint64(2), e.m.UniqueSenders(chainA))
	require.Zero(e.m.UniqueSenders(chainB))
	require.Len(e.journal.msgs, 3)
	require.Equal([]events.Kind{events.MessageCreated, events.MessageCreated, events.MessageCreated}, e.kinds)

	// returned messages are copies
	msg.Payload[0] = 'j'
	again, _ := e.m.Message(id)
	require.Equal([]byte("hello"), again.Payload)
}

func TestCreateMessageValidation(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reg.AddChain(admin, types.ChainDescriptor{ChainID: 99, BridgeEndpoint: common.HexToAddress("0x99")}))
	require.NoError(t, e.reg.UpdateChain(admin, 99, types.ChainUpdate{BridgeEndpoint: common.HexToAddress("0x99"), Enabled: false}))

	tests := []struct {
		name      string
		chain     uint64
		recipient common.Address
		payload   []byte
		amount    *big.Int
		err       error
	}{
		{"unknown chain", 5, recipient, nil, nil, types.ErrUnsupported},
		{"disabled chain", 99, recipient, nil, nil, types.ErrUnsupported},
		{"zero recipient", chainA, common.Address{}, nil, nil, types.ErrInvalidInput},
		{"negative amount", chainA, recipient, nil, big.NewInt(-1), types.ErrInvalidInput},
		{"oversized payload", chainA, recipient, make([]byte, 16*1024+1), nil, types.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.m.CreateMessage(alice, tt.chain, tt.recipient, tt.payload, tt.amount)
			require.ErrorIs(t, err, tt.err)
			require.Zero(t, e.m.TotalMessages())
		})
	}
	require.Empty(t, e.journal.msgs)
}

func TestCreateMessageUsesBlobForLargePayloads(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	payload := make([]byte, 10_000)
	_, _ = rand.Read(payload)

	id, err := e.m.CreateMessage(alice, chainB, recipient, payload, nil)
	require.NoError(err)
	msg, _ := e.m.Message(id)
	require.True(msg.BlobEncoded)
	require.Equal(types.DataTypeBinary, msg.DataType)

	back, err := e.comp.Decompress(msg.Payload)
	require.NoError(err)
	require.Equal(payload, back)
	require.Contains(e.kinds, events.BlobEncodingUsed)
	require.Contains(e.kinds, events.DataCompressed)

	// same payload without blob support stays calldata
	id, err = e.m.CreateMessage(alice, chainA, recipient, payload, nil)
	require.NoError(err)
	msg, _ = e.m.Message(id)
	require.False(msg.BlobEncoded)
	require.Equal(payload, msg.Payload)
}

func TestCreateBatch(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	recipients := []common.Address{recipient, common.HexToAddress("0xbeef"), common.HexToAddress("0xcafe")}
	payloads := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	amounts := []*big.Int{big.NewInt(1), big.NewInt(2), nil}

	ids, err := e.m.CreateBatch(alice, chainA, recipients, payloads, amounts)
	require.NoError(err)
	require.Equal([]uint64{1, 2, 3}, ids)
	for i, id := range ids {
		msg, err := e.m.Message(id)
		require.NoError(err)
		require.Equal(recipients[i], msg.Recipient)
		require.Equal(uint64(i), msg.Nonce)
	}
	require.Equal(events.BatchCreated, e.kinds[len(e.kinds)-1])
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	e := newEnv(t)
	_, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(t, err)
	three := []common.Address{recipient, recipient, recipient}
	payloads := [][]byte{nil, nil, nil}
	amounts := []*big.Int{nil, nil, nil}

	tests := []struct {
		name       string
		chain      uint64
		recipients []common.Address
		payloads   [][]byte
		amounts    []*big.Int
		err        error
	}{
		{"unsupported chain", 5, three, payloads, amounts, types.ErrUnsupported},
		{"length mismatch", chainA, three, payloads[:2], amounts, types.ErrArrayLengthMismatch},
		{"empty", chainA, nil, nil, nil, types.ErrInvalidInput},
		{"one bad entry", chainA, []common.Address{recipient, {}, recipient}, payloads, amounts, types.ErrInvalidInput},
		{"one oversized entry", chainA, three, [][]byte{nil, nil, make([]byte, 20_000)}, amounts, types.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.m.CreateBatch(alice, tt.chain, tt.recipients, tt.payloads, tt.amounts)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, uint64(1), e.m.TotalMessages())
			require.Len(t, e.m.MessagesBySender(alice.Address), 1)
		})
	}
	require.ErrorIs(t, types.ErrArrayLengthMismatch, types.ErrInvalidInput)

	// the id sequence has no gaps after failed batches
	id, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		steps []types.MessageStatus
		ok    []bool
	}{
		{"confirm", []types.MessageStatus{types.StatusConfirmed}, []bool{true}},
		{"fail then reject", []types.MessageStatus{types.StatusFailed, types.StatusRejected}, []bool{true, true}},
		{"reject", []types.MessageStatus{types.StatusRejected}, []bool{true}},
		{"confirmed is terminal", []types.MessageStatus{types.StatusConfirmed, types.StatusFailed}, []bool{true, false}},
		{"rejected is terminal", []types.MessageStatus{types.StatusRejected, types.StatusConfirmed}, []bool{true, false}},
		{"failed cannot confirm", []types.MessageStatus{types.StatusFailed, types.StatusConfirmed}, []bool{true, false}},
		{"pending to pending", []types.MessageStatus{types.StatusPending}, []bool{false}},
		{"failed to failed", []types.MessageStatus{types.StatusFailed, types.StatusFailed}, []bool{true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			id, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
			require.NoError(t, err)

			for i, st := range tt.steps {
				before, _ := e.m.Message(id)
				err := e.m.UpdateMessageStatus(relayer, id, st, "boom")
				if tt.ok[i] {
					require.NoError(t, err)
					continue
				}
				require.ErrorIs(t, err, types.ErrInvalidState)
				after, _ := e.m.Message(id)
				require.Equal(t, before, after)
			}
		})
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	id, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(err)

	require.ErrorIs(e.m.UpdateMessageStatus(operator, id, types.StatusConfirmed, ""), types.ErrUnauthorized)
	require.ErrorIs(e.m.UpdateMessageStatus(relayer, 42, types.StatusConfirmed, ""), types.ErrNotFound)

	require.NoError(e.m.UpdateMessageStatus(relayer, id, types.StatusConfirmed, "ignored"))
	msg, _ := e.m.Message(id)
	require.Equal(types.StatusConfirmed, msg.Status)
	require.Equal(now.Unix(), msg.ConfirmedAt)
	require.NotEqual(common.Hash{}, msg.ConfirmationTxRef)
	require.Empty(msg.FailureReason)
	require.Empty(e.m.PendingMessages())
	require.Equal(types.StatusConfirmed, e.journal.msgs[id].Status)

	ref := common.HexToHash("0xd00d")
	id2, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(err)
	require.NoError(e.m.UpdateMessageStatusWithRef(relayer, id2, types.StatusConfirmed, "", ref))
	msg, _ = e.m.Message(id2)
	require.Equal(ref, msg.ConfirmationTxRef)

	id3, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(err)
	require.NoError(e.m.UpdateMessageStatus(relayer, id3, types.StatusFailed, "out of gas"))
	msg, _ = e.m.Message(id3)
	require.Equal("out of gas", msg.FailureReason)
	require.Zero(msg.ConfirmedAt)
	require.Contains(e.kinds, events.MessageStatusChanged)
}

func TestRetryMessage(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	id, err := e.m.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(err)

	require.ErrorIs(e.m.RetryMessage(alice, 42), types.ErrNotFound)
	require.ErrorIs(e.m.RetryMessage(alice, id), types.ErrInvalidState)

	require.NoError(e.m.UpdateMessageStatus(relayer, id, types.StatusFailed, "reverted"))
	require.Empty(e.m.PendingMessages())
	require.ErrorIs(e.m.RetryMessage(bob, id), types.ErrUnauthorized)

	require.NoError(e.m.RetryMessage(alice, id))
	msg, _ := e.m.Message(id)
	require.Equal(types.StatusPending, msg.Status)
	require.Empty(msg.FailureReason)
	require.Equal(uint32(1), msg.Retries)
	require.Len(e.m.PendingMessages(), 1)

	// operators retry on behalf of the sender
	require.NoError(e.m.UpdateMessageStatus(relayer, id, types.StatusFailed, "reverted again"))
	require.NoError(e.m.RetryMessage(operator, id))
	msg, _ = e.m.Message(id)
	require.Equal(uint32(2), msg.Retries)

	require.NoError(e.m.UpdateMessageStatus(relayer, id, types.StatusConfirmed, ""))
	require.ErrorIs(e.m.RetryMessage(alice, id), types.ErrInvalidState)
	require.Equal(events.MessageRetried, e.kinds[len(e.kinds)-2])
}

func TestRestore(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	_, err := e.m.CreateMessage(alice, chainA, recipient, []byte("one"), nil)
	require.NoError(err)
	id, err := e.m.CreateMessage(alice, chainA, recipient, []byte("two"), nil)
	require.NoError(err)
	require.NoError(e.m.UpdateMessageStatus(relayer, id, types.StatusFailed, "reverted"))
	_, err = e.m.CreateMessage(bob, chainB, recipient, []byte("three"), nil)
	require.NoError(err)
	order := signedOrder(t, e)
	_, err = e.m.BridgeOrder(alice, order)
	require.NoError(err)

	fresh := New(Config{SourceChain: baseChain}, Deps{
		Chains:    e.reg,
		Costs:     e.opt,
		Encoder:   e.comp,
		Validator: e.val,
		Now:       func() time.Time { return now },
	})
	fresh.Restore(e.journal.messages(), e.journal.bindings)

	require.Equal(e.m.TotalMessages(), fresh.TotalMessages())
	require.Equal(e.m.MessagesBySender(alice.Address), fresh.MessagesBySender(alice.Address))
	require.Equal(e.m.PendingMessages(), fresh.PendingMessages())
	require.Equal(e.m.MessageCounts(), fresh.MessageCounts())
	require.Equal(e.m.OrderHistory(order.User), fresh.OrderHistory(order.User))
	require.Equal(uint64(1), fresh.UniqueSenders(chainB))

	_, err = fresh.BridgeOrder(alice, order)
	require.ErrorIs(err, types.ErrConflict)

	next, err := fresh.CreateMessage(alice, chainA, recipient, nil, nil)
	require.NoError(err)
	require.Equal(uint64(5), next)
	msg, _ := fresh.Message(next)
	require.Equal(uint64(3), msg.Nonce)
}
