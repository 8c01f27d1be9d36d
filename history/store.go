// Package history keeps a ledger of optimizer outcomes in pebble: one
// success record and one failure record at most per cache key, each holding
// the latest outcome.
package history

import (
	"encoding/json"
	"errors"
	"time"

	pebble "github.com/cockroachdb/pebble"
	"go.trai.ch/zerr"

	"pixopt/models"
)

// Kind classifies a record.
type Kind string

const (
	KindSuccess Kind = "success"
	// KindFallback means the codec failed and the upstream bytes were served.
	KindFallback Kind = "fallback"
	KindFailure  Kind = "failure"
)

var (
	ErrNotInitialized = zerr.New("history store not initialized")

	successPrefix = []byte("success/")
	failurePrefix = []byte("failure/")
)

// Record is one optimizer outcome.
type Record struct {
	Key         string    `json:"key"`
	Kind        Kind      `json:"kind"`
	Href        string    `json:"href"`
	Width       int       `json:"width"`
	Quality     int       `json:"quality"`
	MimeType    string    `json:"mime_type,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int       `json:"size,omitempty"`
	MaxAge      int       `json:"max_age,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRecord fills the request fields of a record.
func NewRecord(key string, kind Kind, req models.ImageRequest) Record {
	return Record{
		Key:       key,
		Kind:      kind,
		Href:      req.Href,
		Width:     req.Width,
		Quality:   req.Quality,
		MimeType:  req.MimeType,
		Timestamp: time.Now(),
	}
}

var db *pebble.DB

// Init opens the history store.
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open history store"), "path", dbPath)
	}
	return nil
}

// Close closes the history store.
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

func prefixFor(kind Kind) []byte {
	if kind == KindSuccess {
		return successPrefix
	}
	return failurePrefix
}

func dbKey(prefix []byte, key string) []byte {
	return append(append([]byte{}, prefix...), key...)
}

// Store writes rec under its kind. Fallbacks are filed with failures.
func Store(rec Record) error {
	if db == nil {
		return ErrNotInitialized
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return zerr.Wrap(err, "failed to marshal history record")
	}
	return db.Set(dbKey(prefixFor(rec.Kind), rec.Key), data, pebble.Sync)
}

// StoreSuccess records a successful transcode and clears any earlier failure
// for the same key.
func StoreSuccess(rec Record) error {
	rec.Kind = KindSuccess
	if err := Store(rec); err != nil {
		return err
	}
	return db.Delete(dbKey(failurePrefix, rec.Key), pebble.Sync)
}

// StoreFailure records a failure or fallback. err may be nil.
func StoreFailure(rec Record, err error) error {
	if rec.Kind == KindSuccess || rec.Kind == "" {
		rec.Kind = KindFailure
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return Store(rec)
}

func get(prefix []byte, key string) (*Record, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	data, closer, err := db.Get(dbKey(prefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, "failed to read history record")
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, zerr.Wrap(err, "failed to unmarshal history record")
	}
	return &rec, nil
}

// GetSuccess returns the success record for key, or nil.
func GetSuccess(key string) (*Record, error) { return get(successPrefix, key) }

// GetFailure returns the failure or fallback record for key, or nil.
func GetFailure(key string) (*Record, error) { return get(failurePrefix, key) }

func upperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}

func list(prefix []byte) ([]Record, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create iterator")
	}
	defer iter.Close()

	records := []Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, zerr.Wrap(err, "iteration error")
	}
	return records, nil
}

// ListSuccesses returns every success record.
func ListSuccesses() ([]Record, error) { return list(successPrefix) }

// ListFailures returns every failure and fallback record.
func ListFailures() ([]Record, error) { return list(failurePrefix) }

// CleanupOldRecords deletes records older than maxAge and returns how many
// were removed.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, ErrNotInitialized
	}
	cutoff := time.Now().Add(-maxAge)

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, zerr.Wrap(err, "failed to create iterator")
	}
	batch := db.NewBatch()
	defer batch.Close()

	removed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err == nil && !rec.Timestamp.Before(cutoff) {
			continue
		}
		if err := batch.Delete(append([]byte{}, iter.Key()...), nil); err != nil {
			iter.Close()
			return 0, zerr.Wrap(err, "failed to queue delete")
		}
		removed++
	}
	if err := iter.Close(); err != nil {
		return 0, zerr.Wrap(err, "iteration error")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, zerr.Wrap(err, "failed to delete old history records")
	}
	return removed, nil
}

// CheckHealth verifies the store answers reads.
func CheckHealth() error {
	if db == nil {
		return ErrNotInitialized
	}
	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return zerr.Wrap(err, "history store health check failed")
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
