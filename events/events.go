// Package events carries the notifications emitted by the bridge core
// to indexers, metrics and websocket clients.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	ChainAdded           Kind = "ChainAdded"
	ChainUpdated         Kind = "ChainUpdated"
	MessageCreated       Kind = "MessageCreated"
	MessageStatusChanged Kind = "MessageStatusChanged"
	OrderBridged         Kind = "OrderBridged"
	TradeSettled         Kind = "TradeSettled"
	MessageRetried       Kind = "MessageRetried"
	BatchCreated         Kind = "BatchCreated"
	DataCompressed       Kind = "DataCompressed"
	DictionaryUpdated    Kind = "DictionaryUpdated"
	BlobEncodingUsed     Kind = "BlobEncodingUsed"
	ThresholdUpdated     Kind = "ThresholdUpdated"
	GasPriceUpdated      Kind = "GasPriceUpdated"
)

type Event struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Time      int64             `json:"time"`
	MessageID uint64            `json:"messageId,omitempty"`
	ChainID   uint64            `json:"chainId,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// New stamps an event with a fresh id and the current time
func New(kind Kind, messageID, chainID uint64, attrs map[string]string) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Time:      time.Now().Unix(),
		MessageID: messageID,
		ChainID:   chainID,
		Attrs:     attrs,
	}
}

type Emitter interface {
	Emit(ev Event)
}

type nop struct{}

func (nop) Emit(Event) {}

// Nop discards everything
var Nop Emitter = nop{}

// OrNop returns Nop for a nil emitter
func OrNop(e Emitter) Emitter {
	if e == nil {
		return Nop
	}
	return e
}

// Bus fans events out to synchronous handlers and buffered subscribers.
// Slow subscribers lose events instead of blocking the emitter.
type Bus struct {
	mu       sync.RWMutex
	handlers []func(Event)
	subs     map[chan Event]struct{}
	dropped  atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Handle registers f to be called for every event, in emit order
func (b *Bus) Handle(f func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, f)
}

// Subscribe returns a channel receiving events and a function to cancel the subscription
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Dropped is the number of events lost to full subscriber buffers
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
