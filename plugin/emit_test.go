package plugin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	Np "github.com/maroda/neurales/plugin"
	Nt "github.com/maroda/neurales/types"
)

func testPayload(fatigue int) *Nt.Payload {
	return &Nt.Payload{
		T0:            0.5,
		SFreq:         100,
		Channels:      []string{"Fpz-Cz", "Pz-Oz"},
		Samples:       [][]float64{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}},
		Fatigue:       fatigue,
		Quality:       Np.DefaultQuality,
		Alerts:        []string{},
		ChunkSeconds:  0.05,
		WindowSeconds: 10,
	}
}

func TestJSONLinesEmitter(t *testing.T) {
	var buf bytes.Buffer
	je := Np.NewJSONLinesEmitter(&buf)

	assertError(t, je.Emit(context.Background(), testPayload(42)), nil)
	assertError(t, je.EmitError(context.Background(), Nt.ErrorPayload{Error: "Stream error: boom"}), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assertInt(t, len(lines), 2)

	t.Run("Payload line carries every field", func(t *testing.T) {
		var got map[string]any
		assertError(t, json.Unmarshal([]byte(lines[0]), &got), nil)
		for _, k := range []string{"t0", "sfreq", "channels", "samples", "fatigue", "quality", "alerts", "chunk_seconds", "window_seconds"} {
			if _, ok := got[k]; !ok {
				t.Errorf("missing key %q in %s", k, lines[0])
			}
		}
		if got["fatigue"].(float64) != 42 {
			t.Errorf("fatigue = %v, want 42", got["fatigue"])
		}
		if alerts, ok := got["alerts"].([]any); !ok || len(alerts) != 0 {
			t.Errorf("alerts should be an empty array, got %v", got["alerts"])
		}
	})

	t.Run("Error line has only the error", func(t *testing.T) {
		assertStringContains(t, lines[1], `{"error":"Stream error: boom"}`)
	})

	assertStringContains(t, je.Type(), "jsonlines")
}

// recordingEmitter keeps what it was sent and fails on demand
type recordingEmitter struct {
	MU       sync.Mutex
	Name     string
	Fail     error
	Payloads []*Nt.Payload
	Errors   []Nt.ErrorPayload
}

func (re *recordingEmitter) Emit(_ context.Context, p *Nt.Payload) error {
	re.MU.Lock()
	defer re.MU.Unlock()
	if re.Fail != nil {
		return re.Fail
	}
	re.Payloads = append(re.Payloads, p)
	return nil
}

func (re *recordingEmitter) EmitError(_ context.Context, e Nt.ErrorPayload) error {
	re.MU.Lock()
	defer re.MU.Unlock()
	if re.Fail != nil {
		return re.Fail
	}
	re.Errors = append(re.Errors, e)
	return nil
}

func (re *recordingEmitter) Type() string { return re.Name }

func TestTeeEmitter(t *testing.T) {
	errGone := errors.New("client gone")

	t.Run("Mirrors receive what primary receives", func(t *testing.T) {
		primary := &recordingEmitter{Name: "ws"}
		mirror := &recordingEmitter{Name: "kafka"}
		tee := Np.NewTeeEmitter(primary, mirror)

		assertError(t, tee.Emit(context.Background(), testPayload(1)), nil)
		assertError(t, tee.EmitError(context.Background(), Nt.ErrorPayload{Error: "x"}), nil)
		assertInt(t, len(mirror.Payloads), 1)
		assertInt(t, len(mirror.Errors), 1)
		assertStringContains(t, tee.Type(), "ws")
	})

	t.Run("Mirror failure is not returned", func(t *testing.T) {
		primary := &recordingEmitter{Name: "ws"}
		mirror := &recordingEmitter{Name: "mqtt", Fail: errors.New("broker down")}
		tee := Np.NewTeeEmitter(primary, mirror)

		assertError(t, tee.Emit(context.Background(), testPayload(1)), nil)
		assertInt(t, len(primary.Payloads), 1)
	})

	t.Run("Primary failure is returned and mirrors skipped", func(t *testing.T) {
		primary := &recordingEmitter{Name: "ws", Fail: errGone}
		mirror := &recordingEmitter{Name: "kafka"}
		tee := Np.NewTeeEmitter(primary, mirror)

		assertError(t, tee.Emit(context.Background(), testPayload(1)), errGone)
		assertInt(t, len(mirror.Payloads), 0)
	})
}

type fakeKafkaWriter struct {
	Fail error
	Msgs []kafka.Message
}

func (fw *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if fw.Fail != nil {
		return fw.Fail
	}
	fw.Msgs = append(fw.Msgs, msgs...)
	return nil
}

func (fw *fakeKafkaWriter) Close() error { return nil }

func TestKafkaEmitter(t *testing.T) {
	t.Run("Messages are keyed by session", func(t *testing.T) {
		fw := &fakeKafkaWriter{}
		ke := Np.NewKafkaEmitter(fw, "eeg.scores", "session-1")

		assertError(t, ke.Emit(context.Background(), testPayload(73)), nil)
		assertInt(t, len(fw.Msgs), 1)
		if string(fw.Msgs[0].Key) != "session-1" {
			t.Errorf("key = %q, want session-1", fw.Msgs[0].Key)
		}
		var got Nt.Payload
		assertError(t, json.Unmarshal(fw.Msgs[0].Value, &got), nil)
		assertInt(t, got.Fatigue, 73)
		assertStringContains(t, ke.Type(), "kafka")
	})

	t.Run("Write failure is wrapped", func(t *testing.T) {
		boom := errors.New("no leader")
		ke := Np.NewKafkaEmitter(&fakeKafkaWriter{Fail: boom}, "eeg.scores", "s")
		assertError(t, ke.EmitError(context.Background(), Nt.ErrorPayload{Error: "x"}), boom)
	})

	t.Run("Writer targets the topic", func(t *testing.T) {
		w := Np.NewKafkaWriter([]string{"localhost:9092"}, "eeg.scores")
		if w.Topic != "eeg.scores" {
			t.Errorf("topic = %q", w.Topic)
		}
	})

	t.Run("Writer never holds a chunk back", func(t *testing.T) {
		w := Np.NewKafkaWriter([]string{"localhost:9092"}, "eeg.scores")
		assertInt(t, w.BatchSize, 1)
		assertInt(t, w.MaxAttempts, 1)
		if w.WriteTimeout <= 0 || w.WriteTimeout > time.Second {
			t.Errorf("write timeout %v should be short and set", w.WriteTimeout)
		}
		if w.BatchTimeout > 5*time.Millisecond {
			t.Errorf("batch timeout %v holds chunks back", w.BatchTimeout)
		}
	})

	t.Run("Unreachable broker fails fast", func(t *testing.T) {
		// nothing listens on port 1
		w := Np.NewKafkaWriter([]string{"127.0.0.1:1"}, "eeg.scores")
		defer w.Close()
		ke := Np.NewKafkaEmitter(w, "eeg.scores", "s")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		err := ke.Emit(ctx, testPayload(10))
		if err == nil {
			t.Fatal("expected an error from an unreachable broker")
		}
		if took := time.Since(start); took > 2*time.Second {
			t.Errorf("emit took %v against a dead broker", took)
		}
	})
}

// fakeToken is an already completed mqtt.Token
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	ft := &fakeToken{err: err, done: make(chan struct{})}
	close(ft.done)
	return ft
}

func (ft *fakeToken) Wait() bool                     { return true }
func (ft *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (ft *fakeToken) Done() <-chan struct{}          { return ft.done }
func (ft *fakeToken) Error() error                   { return ft.err }

type fakePublisher struct {
	Fail   error
	Topics []string
	Bodies [][]byte
}

func (fp *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	fp.Topics = append(fp.Topics, topic)
	fp.Bodies = append(fp.Bodies, payload.([]byte))
	return newFakeToken(fp.Fail)
}

func TestMQTTEmitter(t *testing.T) {
	t.Run("Publishes under the session topic", func(t *testing.T) {
		fp := &fakePublisher{}
		me := Np.NewMQTTEmitter(fp, "neurales/eeg", "abc")

		assertError(t, me.Emit(context.Background(), testPayload(12)), nil)
		assertInt(t, len(fp.Topics), 1)
		if fp.Topics[0] != "neurales/eeg/abc" {
			t.Errorf("topic = %q", fp.Topics[0])
		}
		assertStringContains(t, string(fp.Bodies[0]), `"fatigue":12`)
	})

	t.Run("Token error is returned", func(t *testing.T) {
		boom := errors.New("not connected")
		me := Np.NewMQTTEmitter(&fakePublisher{Fail: boom}, "neurales/eeg", "abc")
		assertError(t, me.EmitError(context.Background(), Nt.ErrorPayload{Error: "x"}), boom)
	})
}
