package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// run executes the root command with fresh flags and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	configFile, logLevel, logFormat = "", "info", "text"

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags undoes what a previous Execute left on the global command tree
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace([]string{})
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeEDF(t *testing.T, labels []string, rate, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.edf")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	signals := make([]edf.Signal, len(labels))
	for i, l := range labels {
		signals[i] = edf.Signal{
			Label: l, PhysicalDimension: "uV",
			PhysicalMin: -500, PhysicalMax: 500,
			DigitalMin: -32768, DigitalMax: 32767,
			SamplesPerRecord: rate,
		}
	}
	w, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        len(labels),
		Signals:            signals,
	})
	require.NoError(t, err)
	for s := 0; s < seconds; s++ {
		rec := make([][]float64, len(labels))
		for i := range rec {
			rec[i] = make([]float64, rate)
		}
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Close())
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestScoreCommand(t *testing.T) {
	t.Run("Synthetic recording scores every chunk", func(t *testing.T) {
		out, err := run(t, "score", "--synthetic", "--fast", "--chunk-seconds", "0.5")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		// 120s in 0.5s chunks
		require.Len(t, lines, 240)
		for _, l := range []string{lines[0], lines[239]} {
			var p map[string]any
			require.NoError(t, json.Unmarshal([]byte(l), &p))
			assert.Contains(t, p, "fatigue")
			assert.EqualValues(t, 0.5, p["chunk_seconds"])
		}
	})

	t.Run("EDF argument is scored", func(t *testing.T) {
		path := writeEDF(t, []string{"EEG Fpz-Cz", "EEG Pz-Oz"}, 100, 2)
		out, err := run(t, "score", path, "--fast")
		require.NoError(t, err)
		// 2s at 100 Hz in the default 50ms chunks
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 40)
		assert.Contains(t, out, `"channels":["Fpz-Cz","Pz-Oz"]`)
	})

	t.Run("Missing file prints an error payload", func(t *testing.T) {
		out, err := run(t, "score", "/nonexistent/rec.edf", "--fast")
		require.Error(t, err)
		assert.Contains(t, out, `{"error":"EDF file not found: /nonexistent/rec.edf"}`)
	})

	t.Run("Invalid chunk size is a config error", func(t *testing.T) {
		_, err := run(t, "score", "--synthetic", "--fast", "--chunk-seconds", "-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chunk_seconds")
	})

	t.Run("Unknown annotator is rejected", func(t *testing.T) {
		_, err := run(t, "score", "--synthetic", "--fast", "--annotator", "oracle")
		require.Error(t, err)
	})
}

func TestInspectCommand(t *testing.T) {
	path := writeEDF(t, []string{"EEG Fpz-Cz", "EEG Pz-Oz", "EMG submental"}, 100, 3)

	t.Run("YAML by default", func(t *testing.T) {
		out, err := run(t, "inspect", path)
		require.NoError(t, err)

		var in Inspection
		require.NoError(t, yaml.Unmarshal([]byte(out), &in))
		assert.Equal(t, 3, in.Records)
		assert.Equal(t, 3.0, in.Seconds)
		assert.Len(t, in.Signals, 3)
		assert.Equal(t, []string{"Fpz-Cz", "Pz-Oz"}, in.Picked)
		assert.Equal(t, 5, in.Chunk.ChunkSamples)
		assert.Equal(t, 60, in.Chunk.Chunks)
		assert.Equal(t, 1000, in.Chunk.WindowCapacity)
	})

	t.Run("JSON on request", func(t *testing.T) {
		out, err := run(t, "inspect", path, "-o", "json", "--picks", "EMG submental")
		require.NoError(t, err)

		var in Inspection
		require.NoError(t, json.Unmarshal([]byte(out), &in))
		assert.Equal(t, []string{"EMG submental"}, in.Picked)
	})

	t.Run("Needs a file", func(t *testing.T) {
		_, err := run(t, "inspect")
		require.Error(t, err)
	})
}

func TestPublishNeedsBroker(t *testing.T) {
	_, err := run(t, "publish", "--synthetic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
}

func TestConfigFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neurales.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stream:
  chunk_seconds: 1.0
  window_seconds: 4
recording:
  synthetic: true
`), 0o644))

	t.Run("File values apply", func(t *testing.T) {
		out, err := run(t, "--config", path, "score", "--fast")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 120)
	})

	t.Run("Flags override the file", func(t *testing.T) {
		out, err := run(t, "--config", path, "score", "--fast", "--chunk-seconds", "2")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 60)
	})

	t.Run("Environment overrides the file", func(t *testing.T) {
		t.Setenv("NEURALES_CHUNK_SECONDS", "4")
		out, err := run(t, "--config", path, "score", "--fast")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 30)
	})

	t.Run("Bad log level fails early", func(t *testing.T) {
		_, err := run(t, "--log-level", "loud", "version")
		require.Error(t, err)
	})
}
