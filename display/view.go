package neurales

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/maroda/neurales/decoder"
	No "github.com/maroda/neurales/obvy"
	Np "github.com/maroda/neurales/plugin"
	Ns "github.com/maroda/neurales/server"
	Nt "github.com/maroda/neurales/types"
)

// WaveformSource produces the recording a new session plays.
// The returned error text is sent to the client as is.
type WaveformSource func() (*Nt.Waveform, error)

// View holds everything the HTTP side needs to run sessions
type View struct {
	MU         sync.Mutex
	Config     *Ns.Config
	Stats      *No.StatsInternal  // Internal status for prometheus
	Sessions   *SessionRegistry   // Live sessions, owned by this View
	History    Np.OutputAdapter   // Score history, nil when storage is off
	Mirror     *Mirror            // Broker copies of payloads, nil when off
	Source     WaveformSource     // Recording for each new session
	Supervisor *SessionSupervisor // Tracks session goroutines for shutdown
	server     *http.Server
}

// NewView wires a View from a validated config.
// Storage and mirrors are opened here and released by Close.
func NewView(c *Ns.Config) (*View, error) {
	if c == nil {
		return nil, errors.New("config not found")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	v := &View{
		Config:   c,
		Stats:    No.NewStatsInternal(),
		Sessions: NewSessionRegistry(),
		Source:   RecordingSource(c.Recording),
	}
	v.NewSessionSupervisor()

	if c.Storage.Enabled {
		bo, err := Np.NewBadgerOutput(c.Storage.Path, c.Storage.BatchSize)
		if err != nil {
			slog.Error("Failed to open score history", slog.String("path", c.Storage.Path), slog.Any("error", err))
			return nil, err
		}
		v.History = bo
	}

	if c.Mirror.Kind != "" {
		m, err := NewMirror(c.Mirror)
		if err != nil {
			v.Close()
			return nil, err
		}
		v.Mirror = m
	}

	return v, nil
}

// RecordingSource decodes the configured recording on first use and hands
// every later session the same read-only Waveform.
// A failed decode is not kept, so the next session tries again.
// Errors are phrased for the client.
func RecordingSource(rc Ns.RecordingConfig) WaveformSource {
	var (
		mu     sync.Mutex
		cached *Nt.Waveform
	)
	return func() (*Nt.Waveform, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		w, err := decodeRecording(rc)
		if err != nil {
			return nil, err
		}
		cached = w
		return w, nil
	}
}

func decodeRecording(rc Ns.RecordingConfig) (*Nt.Waveform, error) {
	if isSynthetic(rc) {
		return decoder.Synthesize(decoder.DefaultSynthConfig())
	}
	w, err := decoder.LoadEDF(rc.Path, rc.Picks)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("EDF file not found: %s", rc.Path)
		}
		return nil, fmt.Errorf("Failed to load EDF: %w", err)
	}
	return w, nil
}

func isSynthetic(rc Ns.RecordingConfig) bool {
	return rc.Synthetic || rc.Path == ""
}

// Close stops every session and releases storage and brokers
func (v *View) Close() {
	if v.Supervisor != nil {
		v.Supervisor.Stop()
	}
	if v.History != nil {
		if err := v.History.Close(); err != nil {
			slog.Error("Failed to close score history", slog.Any("error", err))
		}
	}
	if v.Mirror != nil {
		v.Mirror.Close()
	}
}

// Serve runs the HTTP server until ctx is done, then shuts down gracefully
func (v *View) Serve(ctx context.Context) error {
	v.MU.Lock()
	v.server = &http.Server{
		Addr:              v.Config.Server.Addr,
		Handler:           v.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := v.server
	v.MU.Unlock()

	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting neurales endpoint...", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not start endpoint", slog.Any("error", err))
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		v.Close()
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down neurales endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v.Supervisor.Stop()
	err := srv.Shutdown(shutdownCtx)
	v.Close()
	return err
}

// RespWriter is a wrapper with StatsMiddleware, used for Prometheus
type RespWriter struct {
	http.ResponseWriter
	Status int
}

// WriteHeader is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

// Write is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) Write(b []byte) (int, error) {
	return w.ResponseWriter.Write(b)
}

func (v *View) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         200,
		}
		next.ServeHTTP(wrapped, r)
		v.Stats.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
	})
}
