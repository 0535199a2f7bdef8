// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/datatypes"
)

// ErrNotFound is returned when no archived record matches the request.
var ErrNotFound = errors.New("archived investigation not found")

// Key layout. Records are written under a monotonic sequence number so a
// prefix scan returns them in completion order; the lookup indexes map a
// request ID or session ID to the record key.
const (
	recordKeyPrefix  = "triage:"
	lookupKeyPrefix  = "request:"
	sessionKeyPrefix = "session:"
)

// defaultMaxRecords caps the archive; the oldest records are trimmed
// once the cap is exceeded.
const defaultMaxRecords = 1000

// Record is one archived investigation outcome.
//
// The trail is stored verbatim so a past investigation can be audited
// exactly as a live one.
type Record struct {
	// RequestID identifies the originating request. Unique per record.
	RequestID string `json:"request_id"`

	// SessionID is the investigation session, empty for direct requests.
	SessionID string `json:"session_id,omitempty"`

	// Query is the operator's request text.
	Query string `json:"query"`

	// Namespace is the namespace the request ran against.
	Namespace string `json:"namespace"`

	// Intent is the classified intent the request was routed on.
	Intent datatypes.Intent `json:"intent"`

	// Status is the terminal status (COMPLETED, RESOLVED, ...).
	Status string `json:"status"`

	// Summary is the human-readable outcome.
	Summary string `json:"summary"`

	// Confidence is the final confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Iterations is the number of iterations consumed.
	Iterations int `json:"iterations"`

	// Hypothesis is the best root-cause hypothesis, if any.
	Hypothesis *datatypes.Finding `json:"hypothesis,omitempty"`

	// Error carries failure details for collapsed requests.
	Error *agent.TriageError `json:"error,omitempty"`

	// Trail is the full audit trail.
	Trail []agent.IterationRecord `json:"trail,omitempty"`

	// DurationMs is the total handling time in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// ArchivedAt is when the record was written.
	ArchivedAt time.Time `json:"archived_at"`
}

// ArchiveStore persists finished investigations in BadgerDB.
//
// Description:
//
//	Append-mostly store: every finished triage request is written once
//	and read back for history listings. Records are trimmed oldest
//	first once MaxRecords is exceeded.
//
// Thread Safety: ArchiveStore is safe for concurrent use.
type ArchiveStore struct {
	db     *DB
	logger *slog.Logger
	max    int

	mu    sync.Mutex
	seq   uint64
	count int
}

// ArchiveOption configures an ArchiveStore.
type ArchiveOption func(*ArchiveStore)

// WithMaxRecords caps how many records are retained. Zero or negative
// keeps the default.
func WithMaxRecords(n int) ArchiveOption {
	return func(a *ArchiveStore) {
		if n > 0 {
			a.max = n
		}
	}
}

// WithArchiveLogger sets the store's logger.
func WithArchiveLogger(logger *slog.Logger) ArchiveOption {
	return func(a *ArchiveStore) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// OpenArchive opens the archive store.
//
// Description:
//
//	Opens the underlying BadgerDB and restores the sequence counter
//	and record count from existing data, so restarts continue where
//	the previous process stopped.
//
// Inputs:
//
//	cfg - Database configuration.
//	opts - Store options.
//
// Outputs:
//
//	*ArchiveStore - The opened store. Caller must call Close().
//	error - Non-nil if the database cannot be opened or scanned.
//
// Thread Safety: The returned store is safe for concurrent use.
func OpenArchive(cfg Config, opts ...ArchiveOption) (*ArchiveStore, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	a := &ArchiveStore{
		db:     db,
		logger: slog.Default(),
		max:    defaultMaxRecords,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initState(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scan archive: %w", err)
	}

	a.logger.Debug("archive opened",
		slog.String("path", cfg.Path),
		slog.Int("records", a.count),
		slog.Uint64("last_seq", a.seq),
	)
	return a, nil
}

// initState restores the sequence counter and record count.
func (a *ArchiveStore) initState() error {
	prefix := []byte(recordKeyPrefix)

	return a.db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var count int
		var lastKey []byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
			lastKey = it.Item().KeyCopy(lastKey)
		}

		a.count = count
		if lastKey != nil {
			if seq, err := strconv.ParseUint(string(lastKey[len(prefix):]), 10, 64); err == nil {
				a.seq = seq
			}
		}
		return nil
	})
}

// recordKey builds the primary key for a sequence number.
func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", recordKeyPrefix, seq))
}

// lookupKey builds the index key for a request ID.
func lookupKey(requestID string) []byte {
	return []byte(lookupKeyPrefix + requestID)
}

// sessionKey builds the index key for a session ID.
func sessionKey(sessionID string) []byte {
	return []byte(sessionKeyPrefix + sessionID)
}

// Put archives one finished investigation.
//
// Description:
//
//	Writes the record under the next sequence number, indexes it by
//	request ID (and session ID when present), and trims the oldest
//	records past the retention cap. Records must carry a RequestID;
//	archiving the same RequestID twice writes two records, with the
//	lookup index pointing at the newest.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	rec - The record to archive. Must not be nil.
//
// Outputs:
//
//	error - Non-nil on validation or storage failure.
//
// Thread Safety: Safe for concurrent use.
func (a *ArchiveStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("nil record")
	}
	if rec.RequestID == "" {
		return errors.New("record has no request id")
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	key := recordKey(a.seq)

	err = a.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(lookupKey(rec.RequestID), key); err != nil {
			return err
		}
		if rec.SessionID != "" {
			return txn.Set(sessionKey(rec.SessionID), key)
		}
		return nil
	})
	if err != nil {
		a.seq--
		return fmt.Errorf("archive record %s: %w", rec.RequestID, err)
	}
	a.count++

	if a.count > a.max {
		if err := a.trimLocked(ctx, a.count-a.max); err != nil {
			a.logger.Warn("archive trim failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// trimLocked deletes the n oldest records. Caller holds a.mu.
func (a *ArchiveStore) trimLocked(ctx context.Context, n int) error {
	prefix := []byte(recordKeyPrefix)
	removed := 0

	err := a.db.WithTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && removed < n; it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			// Drop the index entries too, unless a newer record for the
			// same request has since replaced them.
			var rec Record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err == nil {
				if err := deleteIndexIfCurrent(txn, lookupKey(rec.RequestID), key, rec.RequestID != ""); err != nil {
					return err
				}
				if err := deleteIndexIfCurrent(txn, sessionKey(rec.SessionID), key, rec.SessionID != ""); err != nil {
					return err
				}
			}

			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.count -= removed
	return nil
}

// deleteIndexIfCurrent removes an index entry when it still points at the
// record being trimmed.
func deleteIndexIfCurrent(txn *badger.Txn, indexKey, recordKey []byte, present bool) error {
	if !present {
		return nil
	}
	item, err := txn.Get(indexKey)
	if err != nil {
		return nil
	}
	current, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(current) == string(recordKey) {
		return txn.Delete(indexKey)
	}
	return nil
}

// Get returns the archived record for a request or session ID.
//
// Outputs:
//
//	*Record - The record.
//	error - ErrNotFound when no record matches; otherwise a storage error.
//
// Thread Safety: Safe for concurrent use.
func (a *ArchiveStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec *Record

	err := a.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		key, err := resolveRecordKey(txn, id)
		if err != nil {
			return err
		}

		recItem, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return recItem.Value(func(val []byte) error {
			rec = &Record{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// resolveRecordKey maps a request or session ID to its record key.
func resolveRecordKey(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(lookupKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		item, err = txn.Get(sessionKey(id))
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// List returns archived records, newest first.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	limit - Maximum records to return. Zero or negative means all.
//
// Outputs:
//
//	[]*Record - Records in reverse completion order.
//	error - Non-nil on storage failure.
//
// Thread Safety: Safe for concurrent use.
func (a *ArchiveStore) List(ctx context.Context, limit int) ([]*Record, error) {
	var records []*Record
	prefix := []byte(recordKeyPrefix)

	err := a.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last record key.
		seekKey := append([]byte(recordKeyPrefix), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes the archived record for a request or session ID.
//
// Outputs:
//
//	error - ErrNotFound when no record matches; otherwise a storage error.
//
// Thread Safety: Safe for concurrent use.
func (a *ArchiveStore) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key, err := resolveRecordKey(txn, id)
		if err != nil {
			return err
		}

		// Load the record so both index entries go with it.
		var rec Record
		if item, err := txn.Get(key); err == nil {
			_ = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		if rec.RequestID != "" {
			if err := txn.Delete(lookupKey(rec.RequestID)); err != nil {
				return err
			}
		}
		if rec.SessionID != "" {
			if err := txn.Delete(sessionKey(rec.SessionID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.count--
	return nil
}

// Len returns the number of archived records.
func (a *ArchiveStore) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Close closes the underlying database.
func (a *ArchiveStore) Close() error {
	return a.db.Close()
}
