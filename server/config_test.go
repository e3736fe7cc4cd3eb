package neurales_test

import (
	"os"
	"path/filepath"
	"testing"

	Ns "github.com/maroda/neurales/server"
)

// Temporary OS file to use for testing configurations
func createTempFile(t testing.TB, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("could not create temp file %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := Ns.DefaultConfig()
	assertError(t, c.Validate(), nil)
	assertFloat(t, c.Stream.ChunkSeconds, 0.05)
	assertFloat(t, c.Stream.WindowSeconds, 10)
	assertFloat(t, c.Scoring.ThetaMin, 4)
	assertFloat(t, c.Scoring.AlphaMax, 12)
	assertInt(t, len(c.Recording.Picks), 0)
}

func TestLoadConfigFileName(t *testing.T) {
	t.Run("YAML overrides only what it names", func(t *testing.T) {
		path := createTempFile(t, "neurales.yaml", `
stream:
  chunk_seconds: 0.25
recording:
  path: /data/SC4001E0-PSG.edf
  picks: [Fpz-Cz]
mirror:
  kind: mqtt
  brokers: ["tcp://localhost:1883"]
  topic: eeg/fatigue
`)
		c, err := Ns.LoadConfigFileName(path)
		assertError(t, err, nil)
		assertFloat(t, c.Stream.ChunkSeconds, 0.25)
		assertFloat(t, c.Stream.WindowSeconds, 10)
		assertString(t, c.Recording.Path, "/data/SC4001E0-PSG.edf")
		assertString(t, c.Recording.Picks[0], "Fpz-Cz")
		assertString(t, c.Mirror.Kind, "mqtt")
		assertString(t, c.Server.Addr, ":8090")
	})

	t.Run("JSON works the same", func(t *testing.T) {
		path := createTempFile(t, "neurales.json", `{"scoring": {"fatigue_ratio_max": 4.0}, "storage": {"enabled": true}}`)
		c, err := Ns.LoadConfigFileName(path)
		assertError(t, err, nil)
		assertFloat(t, c.Scoring.FatigueRatioMax, 4)
		assertFloat(t, c.Scoring.FatigueRatioMin, 0.5)
		if !c.Storage.Enabled {
			t.Error("storage should be enabled")
		}
	})

	for name, doc := range map[string]string{
		"Unknown field":        `{"stream": {"chunk_size": 3}}`,
		"Wrong type":           `{"stream": {"chunk_seconds": "fast"}}`,
		"Non positive chunk":   `{"stream": {"chunk_seconds": 0}}`,
		"Inverted bands":       `{"scoring": {"theta_min": 9}}`,
		"Mirror without topic": `{"mirror": {"kind": "kafka", "brokers": ["localhost:9092"]}}`,
		"Unknown exporter":     `{"telemetry": {"exporter": "zipkin"}}`,
	} {
		t.Run(name+" is a config error", func(t *testing.T) {
			path := createTempFile(t, "bad.json", doc)
			_, err := Ns.LoadConfigFileName(path)
			assertErrorIs(t, err, Ns.ErrConfig)
		})
	}

	t.Run("Errors with malformed JSON", func(t *testing.T) {
		path := createTempFile(t, "bad.json", `{"stream": `)
		_, err := Ns.LoadConfigFileName(path)
		assertGotError(t, err)
	})

	t.Run("Errors with an empty file", func(t *testing.T) {
		path := createTempFile(t, "empty.yaml", "  \n")
		_, err := Ns.LoadConfigFileName(path)
		assertGotError(t, err)
	})

	t.Run("Errors with missing file", func(t *testing.T) {
		_, err := Ns.LoadConfigFileName(filepath.Join(t.TempDir(), "nope.yaml"))
		assertGotError(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	c := Ns.DefaultConfig()
	c.Storage.Enabled = true
	c.Storage.BatchSize = 0
	assertErrorIs(t, c.Validate(), Ns.ErrConfig)

	c = Ns.DefaultConfig()
	c.Mirror.Kind = "amqp"
	assertErrorIs(t, c.Validate(), Ns.ErrConfig)

	c = Ns.DefaultConfig()
	c.Stream.MinWindowSamples = -1
	assertErrorIs(t, c.Validate(), Ns.ErrConfig)
}

func TestStreamInterval(t *testing.T) {
	sc := Ns.StreamConfig{ChunkSeconds: 0.05, WindowSeconds: 1}
	assertString(t, sc.ChunkInterval().String(), "50ms")
}
