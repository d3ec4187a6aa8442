// Package journal 持久化"券商已成交、账本未落库"的单元，供后台补账。
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

const keyPrefix = "pending/"

// Entry is the full intent of one unit whose ledger write did not land.
type Entry struct {
	Kind          Kind            `json:"kind"`
	ClientID      string          `json:"client_id"`
	TokenID       int64           `json:"token_id"`
	Side          string          `json:"side"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	BrokerOrderID string          `json:"broker_order_id"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// Journal is a badger-backed queue keyed by broker order id.
type Journal struct {
	db *badger.DB
}

type Options struct {
	Path     string
	InMemory bool
}

func Open(opts Options) (*Journal, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("journal: path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	db, err := badger.Open(bopts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores e; a second append for the same order id overwrites the first.
func (j *Journal) Append(e Entry) error {
	if strings.TrimSpace(e.BrokerOrderID) == "" {
		return errors.New("journal: broker order id is required")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+e.BrokerOrderID), raw)
	})
}

// Pending lists entries oldest first.
func (j *Journal) Pending() ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("journal: decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].RecordedAt.Before(out[b].RecordedAt)
	})
	return out, nil
}

// Remove drops the entry for orderID; missing entries are ignored.
func (j *Journal) Remove(orderID string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + orderID))
	})
}

func (j *Journal) Len() (int, error) {
	entries, err := j.Pending()
	return len(entries), err
}
