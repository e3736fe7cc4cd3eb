package plugin

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	Nt "github.com/maroda/neurales/types"
)

// keySep ends the session id part of a key so one id is never a prefix of another.
const keySep = 0x00

type BadgerOutput struct {
	MU        sync.Mutex
	DB        *badger.DB
	BatchSize int
	Buffer    []*Nt.ScoreRecord
}

func NewBadgerOutput(path string, batchSize int) (*BadgerOutput, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		slog.Error("BadgerOutput failed to open database", slog.Any("error", err))
		return nil, fmt.Errorf("database error: %w", err)
	}

	slog.Info("BadgerOutput opened",
		slog.String("path", path),
		slog.Int("batchSize", batchSize))

	return &BadgerOutput{
		DB:        db,
		BatchSize: batchSize,
		Buffer:    make([]*Nt.ScoreRecord, 0, batchSize),
	}, nil
}

// WriteScore queues up a batch of scores,
// when batchsize is reached the batch is written
func (bo *BadgerOutput) WriteScore(rec *Nt.ScoreRecord) error {
	bo.MU.Lock()
	defer bo.MU.Unlock()

	bo.Buffer = append(bo.Buffer, rec)
	if len(bo.Buffer) >= bo.BatchSize {
		return bo.flushLocked()
	}
	return nil
}

// WriteBatch performs the key/value creation to be stored
// and actually calls BadgerDB to write the data
func (bo *BadgerOutput) WriteBatch(recs []*Nt.ScoreRecord) error {
	wb := bo.DB.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range recs {
		v, err := ScoreEncode(r)
		if err != nil {
			return fmt.Errorf("encode score: %w", err)
		}
		if err := wb.Set(ScoreKey(r), v); err != nil {
			slog.Error("BadgerOutput failed to set key in batch",
				slog.Any("error", err),
				slog.String("session", r.SessionID),
				slog.Float64("t0", r.T0))
			return fmt.Errorf("write batch error: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		slog.Error("BadgerOutput failed to flush batch", slog.Any("error", err))
		return fmt.Errorf("batch flush error: %w", err)
	}

	return nil
}

// Flush writes whatever is buffered
func (bo *BadgerOutput) Flush() error {
	bo.MU.Lock()
	defer bo.MU.Unlock()
	return bo.flushLocked()
}

func (bo *BadgerOutput) flushLocked() error {
	if len(bo.Buffer) == 0 {
		return nil
	}
	err := bo.WriteBatch(bo.Buffer)
	bo.Buffer = bo.Buffer[:0] // Clear but keep capacity
	return err
}

// Close returns a Flush error but still attempts to close
func (bo *BadgerOutput) Close() error {
	slog.Info("BadgerOutput closing, flushing buffer",
		slog.Int("bufferSize", len(bo.Buffer)))
	flushErr := bo.Flush()
	closeErr := bo.DB.Close()

	if flushErr != nil {
		slog.Error("BadgerOutput failed to flush on close", slog.Any("error", flushErr))
		return fmt.Errorf("flush failed, close may have failed: %w", flushErr)
	}

	if closeErr != nil {
		slog.Error("BadgerOutput failed to close database", slog.Any("error", closeErr))
		return fmt.Errorf("close failed: %w", closeErr)
	}

	slog.Info("BadgerOutput closed successfully")
	return nil
}

func (bo *BadgerOutput) Type() string { return "BadgerDB" }

// SessionPrefix is the key prefix shared by every score of one session
func SessionPrefix(sessionID string) []byte {
	p := make([]byte, 0, len(sessionID)+1)
	p = append(p, sessionID...)
	return append(p, keySep)
}

// ScoreKey creates a composite key
// session id + separator + wall time + chunk offset,
// so a prefix scan returns one session in chronological order
func ScoreKey(rec *Nt.ScoreRecord) []byte {
	key := SessionPrefix(rec.SessionID)
	var tail [16]byte
	binary.BigEndian.PutUint64(tail[0:8], uint64(rec.Timestamp.UnixNano()))
	binary.BigEndian.PutUint64(tail[8:16], math.Float64bits(rec.T0))
	return append(key, tail[:]...)
}

// ScoreEncode serializes the record for storage
func ScoreEncode(r *Nt.ScoreRecord) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(r)
	return buf.Bytes(), err
}

// ScoreDecode deserializes a stored record
func ScoreDecode(data []byte) (*Nt.ScoreRecord, error) {
	var r Nt.ScoreRecord
	err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&r)
	return &r, err
}

// QueryRange retrieves one session's scores recorded within [start, end].
// A zero start or end leaves that side open.
func (bo *BadgerOutput) QueryRange(sessionID string, start, end time.Time) ([]*Nt.ScoreRecord, error) {
	recs := []*Nt.ScoreRecord{}
	prefix := SessionPrefix(sessionID)

	// db.View() callback
	// BadgerDB provides a transaction in which to get item.Value()
	err := bo.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := ScoreDecode(val)
				if err != nil {
					slog.Error("BadgerOutput failed to decode score", slog.Any("error", err))
					return fmt.Errorf("score decode error: %w", err)
				}
				if !start.IsZero() && rec.Timestamp.Before(start) {
					return nil
				}
				if !end.IsZero() && rec.Timestamp.After(end) {
					return nil
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return fmt.Errorf("item data error: %w", err)
			}
		}
		return nil
	})

	slog.Debug("BadgerOutput QueryRange", slog.String("session", sessionID), slog.Int("count", len(recs)))
	return recs, err
}
