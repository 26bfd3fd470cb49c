// Package journal keeps the list of ledger writes that were skipped or failed,
// so an out-of-band sweep can find assets whose ledger state lags.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "lag/"

// Entry describes one missing ledger write
type Entry struct {
	Op             string    `json:"op"`
	AssetID        string    `json:"asset_id"`
	ExternalID     string    `json:"external_id"`
	IntendedStatus string    `json:"intended_status,omitempty"`
	Error          string    `json:"error"`
	Attempts       int       `json:"attempts"`
	At             time.Time `json:"at"`
}

func (e Entry) key() []byte {
	return entryKey(e.Op, e.AssetID)
}

func entryKey(op, assetID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", keyPrefix, op, assetID))
}

// Journal is a badger backed reconciliation journal
type Journal struct {
	db *badger.DB
}

// Open opens the journal in dir. An empty dir keeps it in memory.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the badger database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e, replacing an earlier entry for the same op and asset and
// carrying its attempt count forward.
func (j *Journal) Record(e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return j.db.Update(func(txn *badger.Txn) error {
		e.Attempts = 1
		item, err := txn.Get(e.key())
		switch {
		case err == nil:
			var prev Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &prev) }); err == nil {
				e.Attempts = prev.Attempts + 1
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(e.key(), raw)
	})
}

// Clear drops the entry for op on assetID. Clearing a missing entry is a no-op.
func (j *Journal) Clear(op, assetID string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(entryKey(op, assetID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Get returns the entry for op on assetID
func (j *Journal) Get(op, assetID string) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(op, assetID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &e) })
	})
	return e, found, err
}

// Pending lists every entry, oldest first
func (j *Journal) Pending() ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].At.Before(out[b].At) })
	return out, nil
}
