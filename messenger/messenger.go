// Package messenger records cross-chain messages from the base ledger to the
// registered destination chains and drives their status lifecycle.
//
// Every mutating call runs under one lock from validation to the last index
// update, so a call either completes fully or leaves no trace.
package messenger

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"gobridgecore/compressor"
	"gobridgecore/events"
	"gobridgecore/optimizer"
	"gobridgecore/types"

	"github.com/axiomhq/hyperloglog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/btree"
)

type ChainSource interface {
	Chain(chainID uint64) (*types.ChainDescriptor, error)
}

type CostModel interface {
	DecideEncodingFor(chainID uint64, size uint64, dt types.DataType) bool
	Estimate(chainID uint64, dataSize uint64, useBlob bool) (*optimizer.GasEstimate, error)
}

type Encoder interface {
	Compress(data []byte, dt types.DataType) ([]byte, error)
}

type OrderValidator interface {
	ValidateOrder(req *types.OrderBridgingRequest) error
}

// Journal persists messages and idempotency bindings after they are committed in memory
type Journal interface {
	SaveMessage(msg *types.CrossChainMessage) error
	SaveBinding(b *types.Binding) error
}

type Config struct {
	SourceChain uint64
}

type Messenger struct {
	mu sync.RWMutex

	nextID   uint64
	messages map[uint64]*types.CrossChainMessage
	bySender map[common.Address][]uint64
	byChain  map[uint64][]uint64
	pending  *btree.BTreeG[uint64]
	nonces   map[common.Address]uint64
	senders  map[uint64]*hyperloglog.Sketch

	orders       map[common.Hash]uint64
	trades       map[common.Hash]uint64
	orderHistory map[common.Address][]common.Hash
	tradeHistory map[common.Address][]common.Hash

	cfg       Config
	chains    ChainSource
	costs     CostModel
	encoder   Encoder
	validator OrderValidator
	journal   Journal
	events    events.Emitter
	now       func() time.Time
	logger    log.Logger
}

type Deps struct {
	Chains    ChainSource
	Costs     CostModel
	Encoder   Encoder
	Validator OrderValidator
	Journal   Journal // optional
	Events    events.Emitter
	Now       func() time.Time // defaults to time.Now
}

func New(cfg Config, deps Deps) *Messenger {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Messenger{
		messages:     make(map[uint64]*types.CrossChainMessage),
		bySender:     make(map[common.Address][]uint64),
		byChain:      make(map[uint64][]uint64),
		pending:      btree.NewOrderedG[uint64](32),
		nonces:       make(map[common.Address]uint64),
		senders:      make(map[uint64]*hyperloglog.Sketch),
		orders:       make(map[common.Hash]uint64),
		trades:       make(map[common.Hash]uint64),
		orderHistory: make(map[common.Address][]common.Hash),
		tradeHistory: make(map[common.Address][]common.Hash),
		cfg:          cfg,
		chains:       deps.Chains,
		costs:        deps.Costs,
		encoder:      deps.Encoder,
		validator:    deps.Validator,
		journal:      deps.Journal,
		events:       events.OrNop(deps.Events),
		now:          now,
		logger:       log.New("module", "messenger"),
	}
}

// draft is a validated message that has not been assigned an id yet
type draft struct {
	chain     *types.ChainDescriptor
	sender    common.Address
	recipient common.Address
	amount    *big.Int
	payload   []byte
	dataType  types.DataType
	blob      bool
}

func (m *Messenger) supportedChain(chainID uint64) (*types.ChainDescriptor, error) {
	chain, err := m.chains.Chain(chainID)
	if err != nil || !chain.Enabled {
		return nil, fmt.Errorf("%w: chain %d", types.ErrUnsupported, chainID)
	}
	return chain, nil
}

func validateDraft(d *draft) error {
	if d.recipient == (common.Address{}) {
		return fmt.Errorf("%w: zero recipient", types.ErrInvalidInput)
	}
	if d.amount != nil && d.amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", types.ErrInvalidInput)
	}
	if limit := d.chain.MaxMessageSize; limit > 0 && uint64(len(d.payload)) > limit {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d on chain %d", types.ErrInvalidInput, len(d.payload), limit, d.chain.ChainID)
	}
	return nil
}

// encode picks blob or calldata for the payload and compresses it for blobs
func (m *Messenger) encode(d *draft) error {
	d.dataType = compressor.Classify(d.payload)
	if !m.costs.DecideEncodingFor(d.chain.ChainID, uint64(len(d.payload)), d.dataType) {
		return nil
	}
	enc, err := m.encoder.Compress(d.payload, d.dataType)
	if err != nil {
		return err
	}
	d.payload = enc
	d.blob = true
	return nil
}

func originRef(msg *types.CrossChainMessage) common.Hash {
	buf := make([]byte, 0, 8*5+common.AddressLength)
	buf = binary.BigEndian.AppendUint64(buf, msg.ID)
	buf = binary.BigEndian.AppendUint64(buf, msg.SourceChain)
	buf = binary.BigEndian.AppendUint64(buf, msg.DestChain)
	buf = append(buf, msg.Sender.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, msg.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(msg.CreatedAt))
	return crypto.Keccak256Hash(buf)
}

// record stores a draft as a new pending message. Caller holds m.mu.
func (m *Messenger) record(d *draft) *types.CrossChainMessage {
	m.nextID++
	amount := new(big.Int)
	if d.amount != nil {
		amount.Set(d.amount)
	}
	msg := &types.CrossChainMessage{
		ID:          m.nextID,
		SourceChain: m.cfg.SourceChain,
		DestChain:   d.chain.ChainID,
		Sender:      d.sender,
		Recipient:   d.recipient,
		Amount:      amount,
		Payload:     d.payload,
		BlobEncoded: d.blob,
		DataType:    d.dataType,
		CreatedAt:   m.now().Unix(),
		Nonce:       m.nonces[d.sender],
		Status:      types.StatusPending,
	}
	msg.OriginTxRef = originRef(msg)
	m.nonces[d.sender]++
	m.index(msg)

	m.logger.Info("Message created", "id", msg.ID, "dest", msg.DestChain, "sender", msg.Sender, "size", len(msg.Payload), "blob", msg.BlobEncoded)
	m.persist(msg)
	m.events.Emit(events.New(events.MessageCreated, msg.ID, msg.DestChain, map[string]string{
		"sender":    msg.Sender.Hex(),
		"recipient": msg.Recipient.Hex(),
		"nonce":     strconv.FormatUint(msg.Nonce, 10),
	}))
	if msg.BlobEncoded {
		m.events.Emit(events.New(events.BlobEncodingUsed, msg.ID, msg.DestChain, map[string]string{
			"dataType": msg.DataType.String(),
			"size":     strconv.Itoa(len(msg.Payload)),
		}))
	}
	return msg
}

func (m *Messenger) index(msg *types.CrossChainMessage) {
	m.messages[msg.ID] = msg
	m.bySender[msg.Sender] = append(m.bySender[msg.Sender], msg.ID)
	m.byChain[msg.DestChain] = append(m.byChain[msg.DestChain], msg.ID)
	if msg.Status == types.StatusPending {
		m.pending.ReplaceOrInsert(msg.ID)
	}
	sk, ok := m.senders[msg.DestChain]
	if !ok {
		sk = hyperloglog.New14()
		m.senders[msg.DestChain] = sk
	}
	sk.Insert(msg.Sender.Bytes())
}

func (m *Messenger) persist(msg *types.CrossChainMessage) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveMessage(msg); err != nil {
		m.logger.Error("Cannot persist message", "id", msg.ID, "err", err)
	}
}

func (m *Messenger) persistBinding(b *types.Binding) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveBinding(b); err != nil {
		m.logger.Error("Cannot persist binding", "kind", b.Kind, "key", b.Key, "err", err)
	}
}

// CreateMessage records a pending message from the caller to recipient on destChain
func (m *Messenger) CreateMessage(caller types.Caller, destChain uint64, recipient common.Address, payload []byte, amount *big.Int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, err := m.supportedChain(destChain)
	if err != nil {
		return 0, err
	}
	d := &draft{
		chain:     chain,
		sender:    caller.Address,
		recipient: recipient,
		amount:    amount,
		payload:   append([]byte(nil), payload...),
	}
	if err := validateDraft(d); err != nil {
		return 0, err
	}
	if err := m.encode(d); err != nil {
		return 0, err
	}
	return m.record(d).ID, nil
}

// CreateBatch records one message per entry, or none when any entry is invalid
func (m *Messenger) CreateBatch(caller types.Caller, destChain uint64, recipients []common.Address, payloads [][]byte, amounts []*big.Int) ([]uint64, error) {
	if len(recipients) != len(payloads) || len(recipients) != len(amounts) {
		return nil, fmt.Errorf("%w: %d recipients, %d payloads, %d amounts", types.ErrArrayLengthMismatch, len(recipients), len(payloads), len(amounts))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chain, err := m.supportedChain(destChain)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: empty batch", types.ErrInvalidInput)
	}

	drafts := make([]*draft, len(recipients))
	for i := range recipients {
		drafts[i] = &draft{
			chain:     chain,
			sender:    caller.Address,
			recipient: recipients[i],
			amount:    amounts[i],
			payload:   append([]byte(nil), payloads[i]...),
		}
		if err := validateDraft(drafts[i]); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
	}
	for i, d := range drafts {
		if err := m.encode(d); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
	}

	ids := make([]uint64, len(drafts))
	for i, d := range drafts {
		ids[i] = m.record(d).ID
	}

	m.logger.Info("Batch created", "dest", destChain, "sender", caller.Address, "count", len(ids))
	m.events.Emit(events.New(events.BatchCreated, ids[0], destChain, map[string]string{
		"count":  strconv.Itoa(len(ids)),
		"lastId": strconv.FormatUint(ids[len(ids)-1], 10),
	}))
	return ids, nil
}

func allowedTransition(from, to types.MessageStatus) bool {
	switch from {
	case types.StatusPending:
		return to == types.StatusConfirmed || to == types.StatusFailed || to == types.StatusRejected
	case types.StatusFailed:
		return to == types.StatusRejected
	}
	return false
}

// UpdateMessageStatus records an outcome reported by the relayer
func (m *Messenger) UpdateMessageStatus(caller types.Caller, id uint64, status types.MessageStatus, reason string) error {
	return m.UpdateMessageStatusWithRef(caller, id, status, reason, common.Hash{})
}

// UpdateMessageStatusWithRef is UpdateMessageStatus with the destination transaction
// hash as confirmation reference. A zero ref is replaced by a derived one.
func (m *Messenger) UpdateMessageStatusWithRef(caller types.Caller, id uint64, status types.MessageStatus, reason string, ref common.Hash) error {
	if err := caller.Require(types.RoleRelayer); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %d", types.ErrNotFound, id)
	}
	prev := msg.Status
	if !allowedTransition(prev, status) {
		return fmt.Errorf("%w: message %d cannot move from %s to %s", types.ErrInvalidState, id, prev, status)
	}

	now := m.now().Unix()
	msg.Status = status
	switch status {
	case types.StatusConfirmed:
		if ref == (common.Hash{}) {
			buf := binary.BigEndian.AppendUint64(msg.OriginTxRef.Bytes(), uint64(now))
			ref = crypto.Keccak256Hash(buf)
		}
		msg.ConfirmedAt = now
		msg.ConfirmationTxRef = ref
		msg.FailureReason = ""
	default:
		msg.FailureReason = reason
	}
	m.pending.Delete(id)

	m.logger.Info("Message status changed", "id", id, "from", prev, "to", status, "reason", reason)
	m.persist(msg)
	m.events.Emit(events.New(events.MessageStatusChanged, id, msg.DestChain, map[string]string{
		"from":   prev.String(),
		"to":     status.String(),
		"reason": msg.FailureReason,
	}))
	return nil
}

// RetryMessage puts a failed message back to pending. Only its sender or an operator may retry.
func (m *Messenger) RetryMessage(caller types.Caller, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %d", types.ErrNotFound, id)
	}
	if msg.Status != types.StatusFailed {
		return fmt.Errorf("%w: message %d is %s", types.ErrInvalidState, id, msg.Status)
	}
	if caller.Address != msg.Sender && !caller.Has(types.RoleOperator) {
		return fmt.Errorf("%w: %s is neither sender nor operator", types.ErrUnauthorized, caller.Address.Hex())
	}

	msg.Status = types.StatusPending
	msg.FailureReason = ""
	msg.Retries++
	m.pending.ReplaceOrInsert(id)

	m.logger.Info("Message retried", "id", id, "retries", msg.Retries, "by", caller.Address)
	m.persist(msg)
	m.events.Emit(events.New(events.MessageRetried, id, msg.DestChain, map[string]string{
		"retries": strconv.FormatUint(uint64(msg.Retries), 10),
	}))
	return nil
}

// Restore rebuilds the in-memory state from journaled messages and bindings.
// It is meant to run once before the messenger serves calls.
func (m *Messenger) Restore(msgs []*types.CrossChainMessage, bindings []*types.Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// indices keep id order
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	for _, msg := range msgs {
		msg = msg.Copy()
		m.index(msg)
		if msg.ID > m.nextID {
			m.nextID = msg.ID
		}
		if msg.Nonce >= m.nonces[msg.Sender] {
			m.nonces[msg.Sender] = msg.Nonce + 1
		}
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].MessageID < bindings[j].MessageID })
	for _, b := range bindings {
		switch b.Kind {
		case types.BindingOrder:
			m.orders[b.Key] = b.MessageID
			for _, u := range b.Users {
				m.orderHistory[u] = append(m.orderHistory[u], b.Key)
			}
		case types.BindingTrade:
			m.trades[b.Key] = b.MessageID
			for _, u := range b.Users {
				m.tradeHistory[u] = append(m.tradeHistory[u], b.Key)
			}
		}
	}
	m.logger.Info("Messenger state restored", "messages", len(msgs), "bindings", len(bindings), "nextId", m.nextID+1)
}
