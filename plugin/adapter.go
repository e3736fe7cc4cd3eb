package plugin

/*

	The Adapter sits aside /neurales/
	Contains core interfaces for Plugin

*/

import (
	"context"
	"time"

	Nt "github.com/maroda/neurales/types"
)

// PayloadEmitter is where scored chunks go: a websocket, a broker topic, stdout.
// A returned error means the transport is gone; callers do not retry.
type PayloadEmitter interface {
	Emit(ctx context.Context, p *Nt.Payload) error       // Publish one chunk payload
	EmitError(ctx context.Context, e Nt.ErrorPayload) error // Publish an error payload
	Type() string                                        // ID for the emitter
}

// Annotator labels a chunk with signal quality and alert identifiers.
// The labels are placeholders with no clinical backing.
type Annotator interface {
	Annotate(chunk [][]float64, fatigue int) (quality string, alerts []string)
	Type() string // Unique ID for the annotator
}

// OutputAdapter can be used to define a place for score history to go,
// record-by-record or in batches if supported by the output type.
type OutputAdapter interface {
	WriteScore(rec *Nt.ScoreRecord) error                                          // Write singleton score
	WriteBatch(recs []*Nt.ScoreRecord) error                                       // Write batches of scores
	QueryRange(sessionID string, start, end time.Time) ([]*Nt.ScoreRecord, error) // Time range query tool
	Flush() error                                                                  // Flush any buffered data
	Close() error                                                                  // Close the adapter and release resources
	Type() string                                                                  // ID for output
}
