package neurales_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	Nt "github.com/maroda/neurales/types"
)

// recordEmitter keeps everything it is given.
// onEmit runs after each payload with its index, failAt makes that payload fail.
type recordEmitter struct {
	MU       sync.Mutex
	Payloads []*Nt.Payload
	Errors   []Nt.ErrorPayload
	Times    []time.Time // when each payload arrived
	failAt   int
	onEmit   func(i int)
}

func newRecordEmitter() *recordEmitter { return &recordEmitter{failAt: -1} }

func (e *recordEmitter) Emit(ctx context.Context, p *Nt.Payload) error {
	e.MU.Lock()
	i := len(e.Payloads) + len(e.Errors)
	if i == e.failAt {
		e.MU.Unlock()
		return errors.New("connection reset")
	}
	e.Payloads = append(e.Payloads, p)
	e.Times = append(e.Times, time.Now())
	hook := e.onEmit
	e.MU.Unlock()

	if hook != nil {
		hook(i)
	}
	return nil
}

func (e *recordEmitter) EmitError(ctx context.Context, ep Nt.ErrorPayload) error {
	e.MU.Lock()
	defer e.MU.Unlock()
	e.Errors = append(e.Errors, ep)
	return nil
}

func (e *recordEmitter) Type() string { return "record" }

func (e *recordEmitter) counts() (int, int) {
	e.MU.Lock()
	defer e.MU.Unlock()
	return len(e.Payloads), len(e.Errors)
}

type countObserver struct {
	MU      sync.Mutex
	Emitted int
	Errors  int
}

func (o *countObserver) ChunkEmitted(int) {
	o.MU.Lock()
	o.Emitted++
	o.MU.Unlock()
}

func (o *countObserver) PayloadError() {
	o.MU.Lock()
	o.Errors++
	o.MU.Unlock()
}

type memRecorder struct {
	Records []*Nt.ScoreRecord
	Flushes int
}

func (m *memRecorder) WriteScore(r *Nt.ScoreRecord) error {
	m.Records = append(m.Records, r)
	return nil
}
func (m *memRecorder) WriteBatch(rs []*Nt.ScoreRecord) error {
	m.Records = append(m.Records, rs...)
	return nil
}
func (m *memRecorder) QueryRange(string, time.Time, time.Time) ([]*Nt.ScoreRecord, error) {
	return m.Records, nil
}
func (m *memRecorder) Flush() error { m.Flushes++; return nil }
func (m *memRecorder) Close() error { return nil }
func (m *memRecorder) Type() string { return "memory" }

// sine builds a one-channel-per-freq waveform of the given length
func sine(rate float64, n int, freqs ...float64) *Nt.Waveform {
	w := &Nt.Waveform{SampleRate: rate}
	for i, f := range freqs {
		row := make([]float64, n)
		for k := range row {
			row[k] = math.Sin(2 * math.Pi * f * float64(k) / rate)
		}
		w.Channels = append(w.Channels, "ch"+string(rune('A'+i)))
		w.Samples = append(w.Samples, row)
	}
	return w
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if got != want {
		t.Errorf("got error %v, want %v", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Error("expected an error, got none")
	}
}

func assertErrorIs(t testing.TB, got, target error) {
	t.Helper()
	if !errors.Is(got, target) {
		t.Errorf("got error %v, want one matching %v", got, target)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertFloat(t testing.TB, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func assertString(t testing.TB, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
