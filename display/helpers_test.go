package neurales_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/maroda/neurales/decoder"
	Nd "github.com/maroda/neurales/display"
	Ns "github.com/maroda/neurales/server"
	Nt "github.com/maroda/neurales/types"
)

// makeTestView builds a View whose sessions play wave, or fail with loadErr.
// Chunks are 20ms so streams finish quickly.
func makeTestView(t *testing.T, wave *Nt.Waveform, loadErr error, tweak func(*Ns.Config)) *Nd.View {
	t.Helper()

	cfg := Ns.DefaultConfig()
	cfg.Stream.ChunkSeconds = 0.02
	cfg.Stream.WindowSeconds = 1
	if tweak != nil {
		tweak(cfg)
	}

	view, err := Nd.NewView(cfg)
	assertError(t, err, nil)
	view.Source = func() (*Nt.Waveform, error) {
		return wave, loadErr
	}
	t.Cleanup(view.Close)
	return view
}

// writeEDF writes a two channel 100 Hz recording of the given length
func writeEDF(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.edf")
	writeEDFAt(t, path, seconds)
	return path
}

func writeEDFAt(t *testing.T, path string, seconds int) {
	t.Helper()
	f, err := os.Create(path)
	assertError(t, err, nil)
	defer f.Close()

	var signals []edf.Signal
	for _, label := range []string{"EEG Fpz-Cz", "EEG Pz-Oz"} {
		signals = append(signals, edf.Signal{
			Label:             label,
			PhysicalDimension: "uV",
			PhysicalMin:       -500,
			PhysicalMax:       500,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			SamplesPerRecord:  100,
		})
	}
	w, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        len(signals),
		Signals:            signals,
	})
	assertError(t, err, nil)
	for s := 0; s < seconds; s++ {
		assertError(t, w.WriteRecord([][]float64{make([]float64, 100), make([]float64, 100)}), nil)
	}
	assertError(t, w.Close(), nil)
}

// makeWave is a synthetic recording at 100 Hz
func makeWave(t *testing.T, seconds float64) *Nt.Waveform {
	t.Helper()
	c := decoder.DefaultSynthConfig()
	c.Seconds = seconds
	w, err := decoder.Synthesize(c)
	assertError(t, err, nil)
	return w
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, within time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", within, msg)
}

/// Helpers

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("got error %q want %q", got, want)
	}
}

func assertStatus(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct status, got %d, want %d", got, want)
	}
}

func assertInt(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertStringContains(t *testing.T, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", want, full)
	}
}
