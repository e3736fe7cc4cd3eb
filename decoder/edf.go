package decoder

/*

	EDF decoding for neurales.
	The edf package parses the full header but keeps it private,
	so the few fields needed to pick channels are peeked here first.

*/

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/OpenPSG/edf"

	Ns "github.com/maroda/neurales/server"
	Nt "github.com/maroda/neurales/types"
)

const (
	fixedHeaderBytes  = 256
	signalHeaderBytes = 256
	// label, transducer, dimension, phys min/max, dig min/max, prefiltering
	samplesFieldOffset = 16 + 80 + 8 + 8 + 8 + 8 + 8 + 80
)

// SignalInfo is what the header says about one signal.
type SignalInfo struct {
	Label            string
	SamplesPerRecord int
	SampleRate       float64
}

// Header is the subset of an EDF header neurales cares about.
type Header struct {
	RecordSeconds float64
	Records       int
	Signals       []SignalInfo
}

// Labels returns the signal labels in file order.
func (h *Header) Labels() []string {
	out := make([]string, len(h.Signals))
	for i, s := range h.Signals {
		out[i] = s.Label
	}
	return out
}

// ReadHeader peeks the fixed and per-signal header blocks and rewinds r.
func ReadHeader(r io.ReadSeeker) (*Header, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	fixed := make([]byte, fixedHeaderBytes)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	records, err := strconv.Atoi(strings.TrimSpace(string(fixed[236:244])))
	if err != nil {
		return nil, fmt.Errorf("parse data record count: %w", err)
	}
	// EDF+ allows -1 while a recording is still being written
	if records < 0 {
		return nil, fmt.Errorf("data record count is unknown (%d)", records)
	}
	recordSeconds, err := strconv.ParseFloat(strings.TrimSpace(string(fixed[244:252])), 64)
	if err != nil {
		return nil, fmt.Errorf("parse data record duration: %w", err)
	}
	if !(recordSeconds > 0) {
		return nil, fmt.Errorf("data record duration must be positive, got %v", recordSeconds)
	}
	ns, err := strconv.Atoi(strings.TrimSpace(string(fixed[252:256])))
	if err != nil {
		return nil, fmt.Errorf("parse signal count: %w", err)
	}
	if ns < 1 {
		return nil, errors.New("file declares no signals")
	}

	sig := make([]byte, ns*signalHeaderBytes)
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, fmt.Errorf("read signal headers: %w", err)
	}

	h := &Header{RecordSeconds: recordSeconds, Records: records, Signals: make([]SignalInfo, ns)}
	for i := 0; i < ns; i++ {
		label := strings.TrimSpace(string(sig[i*16 : (i+1)*16]))
		off := ns*samplesFieldOffset + i*8
		spr, err := strconv.Atoi(strings.TrimSpace(string(sig[off : off+8])))
		if err != nil {
			return nil, fmt.Errorf("parse samples per record for %q: %w", label, err)
		}
		if spr <= 0 {
			return nil, fmt.Errorf("signal %q has %d samples per record", label, spr)
		}
		h.Signals[i] = SignalInfo{
			Label:            label,
			SamplesPerRecord: spr,
			SampleRate:       float64(spr) / recordSeconds,
		}
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return h, nil
}

// matchLabel accepts "Fpz-Cz" for both "Fpz-Cz" and "EEG Fpz-Cz".
func matchLabel(label, pick string) bool {
	if strings.EqualFold(label, pick) {
		return true
	}
	i := strings.LastIndexByte(label, ' ')
	return i >= 0 && strings.EqualFold(label[i+1:], pick)
}

// ResolvePicks maps channel names to signal indices, in file order.
// With no explicit picks the defaults that exist are used,
// and when none of them exist the first two signals.
// Explicit picks must all be present.
func ResolvePicks(h *Header, picks []string) ([]int, []string, error) {
	explicit := len(picks) > 0
	if !explicit {
		picks = Ns.DefaultPicks
	}

	var idx []int
	var names []string
	for i, s := range h.Signals {
		for _, p := range picks {
			if matchLabel(s.Label, p) {
				idx = append(idx, i)
				names = append(names, p)
				break
			}
		}
	}

	if explicit && len(idx) != len(picks) {
		missing := []string{}
		for _, p := range picks {
			found := false
			for _, n := range names {
				if n == p {
					found = true
					break
				}
			}
			if !found {
				missing = append(missing, p)
			}
		}
		return nil, nil, fmt.Errorf("channels not in recording: %s", strings.Join(missing, ", "))
	}

	if len(idx) == 0 {
		for i := 0; i < len(h.Signals) && i < 2; i++ {
			idx = append(idx, i)
			names = append(names, h.Signals[i].Label)
		}
	}
	return idx, names, nil
}

// LoadEDF decodes the picked channels of an EDF file into a Waveform.
// A missing file keeps os.ErrNotExist in its chain so callers can tell it apart.
func LoadEDF(path string, picks []string) (*Nt.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Ns.LoadError{Reason: "open " + path, Err: err}
	}
	defer f.Close()

	return ReadEDF(f, picks)
}

// ReadEDF is LoadEDF over any seekable source.
func ReadEDF(r io.ReadSeeker, picks []string) (*Nt.Waveform, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, &Ns.LoadError{Reason: "EDF header", Err: err}
	}

	idx, names, err := ResolvePicks(h, picks)
	if err != nil {
		return nil, &Ns.LoadError{Reason: "channel picks", Err: err}
	}

	rate := h.Signals[idx[0]].SampleRate
	for _, i := range idx[1:] {
		if math.Abs(h.Signals[i].SampleRate-rate) > 1e-9 {
			return nil, &Ns.LoadError{Reason: fmt.Sprintf("picked channels disagree on sample rate: %s is %v Hz, %s is %v Hz",
				h.Signals[idx[0]].Label, rate, h.Signals[i].Label, h.Signals[i].SampleRate)}
		}
	}

	reader, err := edf.Open(r)
	if err != nil {
		return nil, &Ns.LoadError{Reason: "EDF open", Err: err}
	}

	n := h.Records * h.Signals[idx[0]].SamplesPerRecord
	samples := make([][]float64, len(idx))
	for row, i := range idx {
		sr, err := reader.Signal(i)
		if err != nil {
			return nil, &Ns.LoadError{Reason: "signal " + names[row], Err: err}
		}
		buf := make([]float64, n)
		got, err := sr.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &Ns.LoadError{Reason: "read " + names[row], Err: err}
		}
		samples[row] = buf[:got]
	}

	w := &Nt.Waveform{SampleRate: rate, Channels: names, Samples: samples}
	if err := Ns.ValidateWaveform(w); err != nil {
		return nil, err
	}

	slog.Info("EDF decoded",
		slog.Float64("sfreq", rate),
		slog.Any("channels", names),
		slog.Int("samples", n),
		slog.Float64("seconds", float64(n)/rate))
	return w, nil
}
