// Package storage persists committed exchange operations in Pebble so a
// restarted node resumes with the same balances, orders, and event history.
// Each commit is written as one atomic batch.
package storage

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ujinpark/dexledger/pkg/exchange"
)

// Store is a Pebble-backed commit journal implementing exchange.CommitStore.
type Store struct {
	db *pebble.DB
}

// StoredEvent is the persisted form of one engine event.
type StoredEvent struct {
	Seq  uint64             `json:"seq"`
	Kind exchange.EventKind `json:"kind"`
	Data json.RawMessage    `json:"data"`
}

// Open opens (or creates) the journal at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCommit writes one committed operation atomically: the event record,
// every touched balance, the created order if any, the terminal marker for
// fills and cancels, and the meta counters.
func (s *Store) SaveCommit(c exchange.Commit) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	data, err := json.Marshal(c.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	rec, err := json.Marshal(StoredEvent{Seq: c.Seq, Kind: c.Event.Kind(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal event record: %w", err)
	}
	if err := batch.Set(eventKey(c.Seq), rec, nil); err != nil {
		return err
	}

	for _, b := range c.Balances {
		if err := batch.Set(balanceKey(b.Asset, b.User), []byte(b.Amount.Dec()), nil); err != nil {
			return err
		}
	}

	if c.Order != nil {
		data, err := json.Marshal(c.Order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}
		if err := batch.Set(orderKey(c.Order.ID), data, nil); err != nil {
			return err
		}
	}

	switch ev := c.Event.(type) {
	case exchange.TradeEvent:
		if err := batch.Set(filledKey(ev.ID), []byte{1}, nil); err != nil {
			return err
		}
	case exchange.CancelEvent:
		if err := batch.Set(cancelledKey(ev.Order.ID), []byte{1}, nil); err != nil {
			return err
		}
	}

	if err := batch.Set([]byte(keyOrderCount), []byte(strconv.FormatUint(c.OrderCount, 10)), nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(keySeq), []byte(strconv.FormatUint(c.Seq, 10)), nil); err != nil {
		return err
	}

	return batch.Commit(pebble.Sync)
}

// Load rebuilds a full engine snapshot from the journal.
func (s *Store) Load() (exchange.State, error) {
	var st exchange.State

	if err := s.loadBalances(&st); err != nil {
		return st, err
	}
	if err := s.loadOrders(&st); err != nil {
		return st, err
	}
	var err error
	if st.Filled, err = s.loadMarkers(prefixFilled); err != nil {
		return st, err
	}
	if st.Cancelled, err = s.loadMarkers(prefixCancel); err != nil {
		return st, err
	}
	if st.OrderCount, err = s.loadCounter(keyOrderCount); err != nil {
		return st, err
	}
	if st.Seq, err = s.loadCounter(keySeq); err != nil {
		return st, err
	}
	return st, nil
}

// Events returns up to limit stored events starting at fromSeq, in commit
// order. limit <= 0 means no limit.
func (s *Store) Events(fromSeq uint64, limit int) ([]StoredEvent, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(fromSeq),
		UpperBound: keyUpperBound([]byte(prefixEvent)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []StoredEvent
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var rec StoredEvent
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) loadBalances(st *exchange.State) error {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		asset, user, err := parseBalanceKey(iter.Key())
		if err != nil {
			return err
		}
		amount, err := uint256.FromDecimal(string(iter.Value()))
		if err != nil {
			return fmt.Errorf("bad balance value for %s: %w", iter.Key(), err)
		}
		st.Balances = append(st.Balances, exchange.BalanceEntry{Asset: asset, User: user, Amount: amount})
	}
	return nil
}

func (s *Store) loadOrders(st *exchange.State) error {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var o exchange.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return fmt.Errorf("failed to unmarshal order %s: %w", iter.Key(), err)
		}
		st.Orders = append(st.Orders, o)
	}
	return nil
}

func (s *Store) loadMarkers(prefix string) ([]uint64, error) {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := strconv.ParseUint(string(iter.Key()[len(prefix):]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad marker key %s: %w", iter.Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) loadCounter(key string) (uint64, error) {
	data, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return strconv.ParseUint(string(data), 10, 64)
}

// parseBalanceKey is the inverse of balanceKey.
// Format: "bal:{asset hex}:{user hex}" with fixed-width addresses.
func parseBalanceKey(key []byte) (asset, user common.Address, err error) {
	const addrLen = 42 // "0x" + 40 hex chars
	want := len(prefixBalance) + addrLen + 1 + addrLen
	if len(key) != want {
		return asset, user, fmt.Errorf("invalid balance key length %d: %s", len(key), key)
	}
	assetHex := string(key[len(prefixBalance) : len(prefixBalance)+addrLen])
	userHex := string(key[len(prefixBalance)+addrLen+1:])
	if !common.IsHexAddress(assetHex) || !common.IsHexAddress(userHex) {
		return asset, user, fmt.Errorf("invalid address in balance key: %s", key)
	}
	return common.HexToAddress(assetHex), common.HexToAddress(userHex), nil
}
