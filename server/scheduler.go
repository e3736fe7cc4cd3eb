package neurales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	Np "github.com/maroda/neurales/plugin"
	Nt "github.com/maroda/neurales/types"
)

// State is the lifecycle position of a Scheduler.
type State string

const (
	StateIdle      State = "idle"
	StateLoaded    State = "loaded"
	StateStreaming State = "streaming"
	StatePaused    State = "paused"
	StateFinished  State = "finished"
	StateAborted   State = "aborted"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateAborted
}

// Observer is told about every tick, e.g. to feed metrics.
type Observer interface {
	ChunkEmitted(fatigue int)
	PayloadError()
}

// Status is a point-in-time summary of a Scheduler.
type Status struct {
	ID            string  `json:"id"`
	State         State   `json:"state"`
	ChunksEmitted int     `json:"chunks_emitted"`
	ChunksTotal   int     `json:"chunks_total"`
	Position      float64 `json:"position_seconds"`
	LastFatigue   int     `json:"last_fatigue"`
}

// Scheduler plays a loaded Waveform chunk by chunk at a fixed cadence.
// Each chunk goes through the ring buffer and the fatigue scorer,
// and the resulting payload is handed to the emitter.
//
// idle -> loaded -> streaming -> (paused <-> streaming) -> finished | aborted
//
// One Scheduler serves one session. Nothing in it is shared.
type Scheduler struct {
	MU     sync.Mutex
	ID     string
	Stream StreamConfig
	Scorer *FatigueScorer
	Ring   *RingBuffer

	emitter   Np.PayloadEmitter
	annotator Np.Annotator
	recorder  Np.OutputAdapter
	observer  Observer
	pacer     Pacer

	state       State
	wave        *Nt.Waveform
	chunkSize   int
	chunksTotal int
	nextChunk   int // index of the next unconsumed chunk
	consumed    int // samples consumed so far
	lastFatigue int
	resume      chan struct{}
	cancel      context.CancelFunc
}

// Option configures optional collaborators of a Scheduler.
type Option func(*Scheduler)

func WithPacer(p Pacer) Option               { return func(s *Scheduler) { s.pacer = p } }
func WithAnnotator(a Np.Annotator) Option    { return func(s *Scheduler) { s.annotator = a } }
func WithRecorder(o Np.OutputAdapter) Option { return func(s *Scheduler) { s.recorder = o } }
func WithObserver(o Observer) Option         { return func(s *Scheduler) { s.observer = o } }
func WithSessionID(id string) Option         { return func(s *Scheduler) { s.ID = id } }

// NewScheduler validates the configuration and returns an idle Scheduler.
// The default pacer is a wall-clock ticker of ChunkSeconds.
func NewScheduler(sc Nt.ScoringConfig, stream StreamConfig, emitter Np.PayloadEmitter, opts ...Option) (*Scheduler, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	scorer, err := NewFatigueScorer(sc)
	if err != nil {
		return nil, err
	}
	if emitter == nil {
		return nil, &ConfigError{Field: "emitter", Reason: "an emitter is required"}
	}

	s := &Scheduler{
		Stream:  stream,
		Scorer:  scorer,
		Ring:    &RingBuffer{},
		emitter: emitter,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pacer == nil {
		s.pacer = NewTickerPacer(stream.ChunkInterval())
	}
	if s.annotator == nil {
		s.annotator = &Np.ConstantAnnotator{Quality: Np.DefaultQuality}
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.MU.Lock()
	defer s.MU.Unlock()
	return s.state
}

// Status reports progress for display.
func (s *Scheduler) Status() Status {
	s.MU.Lock()
	defer s.MU.Unlock()

	var pos float64
	if s.wave != nil {
		pos = float64(s.consumed) / s.wave.SampleRate
	}
	return Status{
		ID:            s.ID,
		State:         s.state,
		ChunksEmitted: s.nextChunk,
		ChunksTotal:   s.chunksTotal,
		Position:      FloatPrecise(pos, 3),
		LastFatigue:   s.lastFatigue,
	}
}

// Load accepts a decoded waveform: idle -> loaded.
// Loading again before streaming replaces the waveform and re-initialises the ring.
func (s *Scheduler) Load(w *Nt.Waveform) error {
	s.MU.Lock()
	defer s.MU.Unlock()

	if s.state != StateIdle && s.state != StateLoaded {
		return fmt.Errorf("cannot load waveform in state %s", s.state)
	}
	if err := ValidateWaveform(w); err != nil {
		slog.Error("Waveform rejected", slog.String("session", s.ID), slog.Any("error", err))
		return err
	}

	s.wave = w
	s.chunkSize = ChunkSize(w.SampleRate, s.Stream.ChunkSeconds)
	s.chunksTotal = ChunkCount(SampleCount(w), s.chunkSize)
	s.Ring.Reset(len(w.Channels), WindowCapacity(s.Stream.WindowSeconds, w.SampleRate, s.Stream.MinWindowSamples))
	s.nextChunk = 0
	s.consumed = 0
	s.state = StateLoaded

	slog.Info("Waveform loaded",
		slog.String("session", s.ID),
		slog.Float64("sfreq", w.SampleRate),
		slog.Int("channels", len(w.Channels)),
		slog.Int("samples", SampleCount(w)),
		slog.Int("chunkSize", s.chunkSize),
		slog.Int("windowCapacity", s.Ring.Capacity))
	return nil
}

// Pause suspends the pacing loop before the next chunk. Ring state is kept.
func (s *Scheduler) Pause() error {
	s.MU.Lock()
	defer s.MU.Unlock()

	if s.state != StateStreaming {
		return fmt.Errorf("cannot pause in state %s", s.state)
	}
	s.state = StatePaused
	s.resume = make(chan struct{})
	slog.Info("Stream paused", slog.String("session", s.ID), slog.Int("nextChunk", s.nextChunk))
	return nil
}

// Resume continues from the next unconsumed chunk.
func (s *Scheduler) Resume() error {
	s.MU.Lock()
	defer s.MU.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume in state %s", s.state)
	}
	s.state = StateStreaming
	close(s.resume)
	slog.Info("Stream resumed", slog.String("session", s.ID), slog.Int("nextChunk", s.nextChunk))
	return nil
}

// Abort stops the stream. A running loop exits within one chunk interval.
// Aborting a terminal scheduler is a no-op.
func (s *Scheduler) Abort() {
	s.MU.Lock()
	defer s.MU.Unlock()

	if s.state.IsTerminal() {
		return
	}
	if s.cancel != nil {
		s.cancel()
		return
	}
	s.state = StateAborted
}

// Run streams the loaded waveform until it ends, ctx is cancelled or an emission fails.
// It returns nil when the stream finished, otherwise the reason it was aborted.
func (s *Scheduler) Run(ctx context.Context) error {
	s.MU.Lock()
	if s.state != StateLoaded {
		st := s.state
		s.MU.Unlock()
		return fmt.Errorf("cannot start stream in state %s", st)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	n := SampleCount(s.wave)
	s.MU.Unlock()

	defer cancel()
	defer s.pacer.Stop()

	slog.Info("Stream started",
		slog.String("session", s.ID),
		slog.Int("chunks", s.chunksTotal),
		slog.Float64("chunkSeconds", s.Stream.ChunkSeconds))

	// Nothing to slice, so nothing is emitted
	if n == 0 {
		s.finish()
		return nil
	}

	for {
		if err := s.waitWhilePaused(ctx); err != nil {
			return s.abort(err)
		}

		s.MU.Lock()
		idx := s.nextChunk
		start := s.consumed
		s.MU.Unlock()
		end := min(start+s.chunkSize, n)

		if err := s.step(ctx, idx, start, end); err != nil {
			return s.abort(err)
		}

		if end >= n {
			s.finish()
			return nil
		}

		if err := s.pacer.Wait(ctx); err != nil {
			return s.abort(err)
		}
	}
}

// step handles one chunk: ingest, score, emit.
// Only an emission failure is returned; compute failures become error payloads.
func (s *Scheduler) step(ctx context.Context, idx, start, end int) error {
	// A cancelled context must not emit, even if the tick already fired
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := s.buildPayload(idx, start, end)
	if err != nil {
		slog.Warn("Chunk could not be scored",
			slog.String("session", s.ID),
			slog.Int("chunk", idx),
			slog.Any("error", err))
		if s.observer != nil {
			s.observer.PayloadError()
		}
		if emitErr := s.emitter.EmitError(ctx, Nt.ErrorPayload{Error: err.Error()}); emitErr != nil {
			return &EmissionError{ChunkIndex: idx, Err: emitErr}
		}
	} else {
		if emitErr := s.emitter.Emit(ctx, payload); emitErr != nil {
			return &EmissionError{ChunkIndex: idx, Err: emitErr}
		}
		s.record(payload)
		if s.observer != nil {
			s.observer.ChunkEmitted(payload.Fatigue)
		}
	}

	s.MU.Lock()
	s.nextChunk = idx + 1
	s.consumed = end
	if payload != nil {
		s.lastFatigue = payload.Fatigue
	}
	s.MU.Unlock()
	return nil
}

// buildPayload ingests the chunk and scores the resulting window.
// A panic inside scoring is turned into a TransientComputeError.
func (s *Scheduler) buildPayload(idx, start, end int) (p *Nt.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &TransientComputeError{ChunkIndex: idx, Reason: fmt.Sprintf("scoring panicked: %v", r)}
		}
	}()

	w := s.wave
	if len(w.Channels) != len(w.Samples) {
		return nil, &TransientComputeError{ChunkIndex: idx, Reason: "channel list does not match sample rows"}
	}

	chunk := Slice(w, start, end)
	if err := s.Ring.Ingest(chunk); err != nil {
		return nil, &TransientComputeError{ChunkIndex: idx, Reason: err.Error()}
	}

	fatigue := s.Scorer.Score(s.Ring.CurrentWindow(), w.SampleRate)
	quality, alerts := s.annotator.Annotate(chunk, fatigue)
	if alerts == nil {
		alerts = []string{}
	}

	samples := make([][]float64, len(chunk))
	for ch, row := range chunk {
		samples[ch] = append([]float64(nil), row...)
	}

	p = &Nt.Payload{
		T0:            float64(start) / w.SampleRate,
		SFreq:         w.SampleRate,
		Channels:      append([]string(nil), w.Channels...),
		Samples:       samples,
		Fatigue:       fatigue,
		Quality:       quality,
		Alerts:        alerts,
		ChunkSeconds:  s.Stream.ChunkSeconds,
		WindowSeconds: s.Stream.WindowSeconds,
	}
	if err := ValidatePayload(p); err != nil {
		return nil, &TransientComputeError{ChunkIndex: idx, Reason: err.Error()}
	}
	return p, nil
}

// record keeps score history when a recorder is attached. Failures are logged only.
func (s *Scheduler) record(p *Nt.Payload) {
	if s.recorder == nil {
		return
	}
	rec := &Nt.ScoreRecord{
		SessionID: s.ID,
		T0:        p.T0,
		Fatigue:   p.Fatigue,
		Timestamp: time.Now(),
	}
	if err := s.recorder.WriteScore(rec); err != nil {
		slog.Error("Could not record score", slog.String("session", s.ID), slog.Any("error", err))
	}
}

func (s *Scheduler) waitWhilePaused(ctx context.Context) error {
	for {
		s.MU.Lock()
		if s.state != StatePaused {
			s.MU.Unlock()
			return ctx.Err()
		}
		resume := s.resume
		s.MU.Unlock()

		select {
		case <-resume:
			s.pacer.Reset()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) finish() {
	s.MU.Lock()
	s.state = StateFinished
	s.cancel = nil
	s.MU.Unlock()

	s.flush()
	slog.Info("Stream finished", slog.String("session", s.ID), slog.Int("chunks", s.chunksTotal))
}

func (s *Scheduler) abort(cause error) error {
	s.MU.Lock()
	s.state = StateAborted
	s.cancel = nil
	emitted := s.nextChunk
	s.MU.Unlock()

	s.flush()

	if errors.Is(cause, context.Canceled) {
		slog.Info("Stream aborted", slog.String("session", s.ID), slog.Int("emitted", emitted))
	} else {
		slog.Error("Stream aborted", slog.String("session", s.ID), slog.Int("emitted", emitted), slog.Any("error", cause))
	}
	return fmt.Errorf("stream aborted after %d chunks: %w", emitted, cause)
}

func (s *Scheduler) flush() {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Flush(); err != nil {
		slog.Error("Could not flush score history", slog.String("session", s.ID), slog.Any("error", err))
	}
}
