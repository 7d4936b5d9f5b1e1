// Package storage persists the exchange's event log to Pebble as a
// durable, replayable audit trail.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/apiorno/blockchain-developer-bootcamp/pkg/core/events"
)

// Record is the stored form of an event. Data stays raw JSON so readers
// can decode it per kind without the journal knowing every payload type.
type Record struct {
	Seq  uint64          `json:"seq"`
	Kind events.Kind     `json:"kind"`
	Time int64           `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Journal is an append-only Pebble store of events, keyed by sequence
// number. Entries are never rewritten or deleted.
type Journal struct {
	db *pebble.DB
}

// OpenJournal opens (or creates) a journal at the given path.
func OpenJournal(path string) (*Journal, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append writes one event. Keys are zero-padded so iteration order is
// sequence order.
func (j *Journal) Append(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event %d: %w", e.Seq, err)
	}
	if err := j.db.Set(eventKey(e.Seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to append event %d: %w", e.Seq, err)
	}
	return nil
}

// Replay streams every stored record in sequence order. Iteration stops
// on the first error returned by fn.
func (j *Journal) Replay(fn func(Record) error) error {
	prefix := []byte(prefixEvent)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("corrupt journal entry at %s: %w", iter.Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSeq returns the sequence number of the newest stored event, or 0
// if the journal is empty.
func (j *Journal) LastSeq() (uint64, error) {
	prefix := []byte(prefixEvent)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	var rec Record
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return 0, fmt.Errorf("corrupt journal entry at %s: %w", iter.Key(), err)
	}
	return rec.Seq, nil
}

// Sink adapts the journal into an event-log sink. Write failures are
// logged, not propagated: the in-memory ledger is the source of truth
// and a journal hiccup must not fail a committed operation.
func (j *Journal) Sink(logger *zap.SugaredLogger) events.Sink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(e events.Event) {
		if err := j.Append(e); err != nil {
			logger.Errorw("journal_append_failed", "seq", e.Seq, "kind", e.Kind, "err", err)
		}
	}
}
