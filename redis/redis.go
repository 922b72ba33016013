// Package redis journals chains, messages and idempotency bindings so the
// in-memory state can be rebuilt after a restart.
package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gomodule/redigo/redis"
)

const (
	chainSet   = "chains"
	chainSeq   = "chains:seq"
	bindingSet = "bindings"
)

var statuses = []types.MessageStatus{
	types.StatusPending,
	types.StatusConfirmed,
	types.StatusFailed,
	types.StatusRejected,
}

func statusSet(s types.MessageStatus) string {
	return "ccmsgs:" + s.String()
}

func messageKey(id uint64) string {
	return fmt.Sprintf("ccmsg:%d", id)
}

func chainKey(id uint64) string {
	return fmt.Sprintf("chain:%d", id)
}

func bindingKey(b *types.Binding) string {
	return fmt.Sprintf("binding:%s:%s", b.Kind, b.Key.Hex())
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func NewPool(host string, port int) *redis.Pool {
	addr := fmt.Sprintf("%s:%d", host, port)
	return &redis.Pool{
		MaxIdle: 5,
		Dial:    func() (redis.Conn, error) { return redis.Dial("tcp", addr, timeoutDialOptions()...) },
	}
}

type Store struct {
	pool   *redis.Pool
	logger log.Logger
}

func NewStore(pool *redis.Pool) *Store {
	return &Store{pool: pool, logger: log.New("module", "redis")}
}

func (s *Store) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}

// SaveMessage stores the message and moves its id to the set of its current status
func (s *Store) SaveMessage(msg *types.CrossChainMessage) error {
	if msg == nil {
		return errors.New("null object to store")
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cannot marshal message to JSON: %w", err)
	}

	conn := s.pool.Get()
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if err := conn.Send("SET", messageKey(msg.ID), msgJSON); err != nil {
		return err
	}
	for _, st := range statuses {
		if st == msg.Status {
			continue
		}
		if err := conn.Send("SREM", statusSet(st), msg.ID); err != nil {
			return err
		}
	}
	if err := conn.Send("SADD", statusSet(msg.Status), msg.ID); err != nil {
		return err
	}
	if _, err := conn.Do("EXEC"); err != nil {
		s.logger.Error("Redis EXEC failed", "key", messageKey(msg.ID), "err", err)
		return err
	}
	return nil
}

// SaveChain stores the descriptor. The chain index is a sorted set scored by
// a sequence taken on first save so loading keeps registration order.
func (s *Store) SaveChain(chain *types.ChainDescriptor) error {
	if chain == nil {
		return errors.New("null object to store")
	}
	key := chainKey(chain.ChainID)
	recJSON, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("cannot marshal %s to JSON: %w", key, err)
	}

	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", key, recJSON); err != nil {
		s.logger.Error("Redis SET failed", "key", key, "err", err)
		return err
	}
	seq, err := redis.Int64(conn.Do("INCR", chainSeq))
	if err != nil {
		s.logger.Error("Redis INCR failed", "key", chainSeq, "err", err)
		return err
	}
	if _, err := conn.Do("ZADD", chainSet, "NX", seq, key); err != nil {
		s.logger.Error("Redis ZADD failed", "set", chainSet, "err", err)
		return err
	}
	return nil
}

func (s *Store) SaveBinding(b *types.Binding) error {
	if b == nil {
		return errors.New("null object to store")
	}
	key := bindingKey(b)
	recJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("cannot marshal %s to JSON: %w", key, err)
	}

	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", key, recJSON); err != nil {
		s.logger.Error("Redis SET failed", "key", key, "err", err)
		return err
	}
	if _, err := conn.Do("SADD", bindingSet, key); err != nil {
		s.logger.Error("Redis SADD failed", "set", bindingSet, "err", err)
		return err
	}
	return nil
}

func (s *Store) Message(id uint64) (*types.CrossChainMessage, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", messageKey(id)))
	if errors.Is(err, redis.ErrNil) {
		return nil, fmt.Errorf("%w: message %d", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var msg types.CrossChainMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// scanSet walks a set with SSCAN and returns all members
func scanSet(conn redis.Conn, set string) ([]string, error) {
	var (
		cursor  int64
		members []string
	)
	for {
		values, err := redis.Values(conn.Do("SSCAN", set, cursor))
		if err != nil {
			return nil, err
		}

		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return nil, err
		}
		members = append(members, keys...)

		if cursor == 0 {
			break
		}
	}
	return members, nil
}

// loadAll decodes the record of every member of set.
// Members whose record is gone are skipped.
func loadAll[T any](s *Store, set string, key func(member string) string) ([]*T, error) {
	conn := s.pool.Get()
	defer conn.Close()

	members, err := scanSet(conn, set)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](s, conn, set, members, key)
}

func decodeAll[T any](s *Store, conn redis.Conn, set string, members []string, key func(member string) string) ([]*T, error) {
	out := make([]*T, 0, len(members))
	for _, member := range members {
		raw, err := redis.Bytes(conn.Do("GET", key(member)))
		if errors.Is(err, redis.ErrNil) {
			s.logger.Warn("Indexed record is missing", "set", set, "member", member)
			continue
		}
		if err != nil {
			return nil, err
		}
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("cannot decode %s: %w", key(member), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func identity(member string) string { return member }

func messageMember(member string) string { return "ccmsg:" + member }

// MessagesByStatus returns the journaled messages with status st, ordered by id
func (s *Store) MessagesByStatus(st types.MessageStatus) ([]*types.CrossChainMessage, error) {
	msgs, err := loadAll[types.CrossChainMessage](s, statusSet(st), messageMember)
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

// LoadMessages returns every journaled message ordered by id
func (s *Store) LoadMessages() ([]*types.CrossChainMessage, error) {
	var all []*types.CrossChainMessage
	for _, st := range statuses {
		msgs, err := s.MessagesByStatus(st)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (s *Store) LoadBindings() ([]*types.Binding, error) {
	bindings, err := loadAll[types.Binding](s, bindingSet, identity)
	if err != nil {
		return nil, err
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].MessageID < bindings[j].MessageID })
	return bindings, nil
}

// LoadChains returns the journaled descriptors in registration order
func (s *Store) LoadChains() ([]*types.ChainDescriptor, error) {
	conn := s.pool.Get()
	defer conn.Close()

	keys, err := redis.Strings(conn.Do("ZRANGE", chainSet, 0, -1))
	if err != nil {
		return nil, err
	}
	return decodeAll[types.ChainDescriptor](s, conn, chainSet, keys, identity)
}
