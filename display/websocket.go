package neurales

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	No "github.com/maroda/neurales/obvy"
	Np "github.com/maroda/neurales/plugin"
	Ns "github.com/maroda/neurales/server"
	Nt "github.com/maroda/neurales/types"
)

const (
	writeWait  = 5 * time.Second
	closeGrace = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Control is a client frame steering its own stream
type Control struct {
	Action string `json:"action"` // pause, resume or stop
}

// WSEmitter writes payloads as JSON text frames.
// gorilla allows one concurrent writer, so every write takes MU.
type WSEmitter struct {
	MU   sync.Mutex
	Conn *websocket.Conn
}

func (we *WSEmitter) write(v any) error {
	we.MU.Lock()
	defer we.MU.Unlock()
	if err := we.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return we.Conn.WriteJSON(v)
}

func (we *WSEmitter) Emit(_ context.Context, p *Nt.Payload) error { return we.write(p) }

func (we *WSEmitter) EmitError(_ context.Context, e Nt.ErrorPayload) error { return we.write(e) }

func (we *WSEmitter) Type() string { return "websocket" }

// close sends a normal close frame, best effort
func (we *WSEmitter) close(reason string) {
	we.MU.Lock()
	defer we.MU.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = we.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
}

// WebsocketHandler runs one EEG stream per connection.
// The recording is loaded first; a failure is reported as an error payload
// and the connection closed before any chunk is sent.
func (v *View) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := NewSessionID()
	ctx, span := No.StartSessionSpan(r.Context(), id, v.sourceName())
	defer span.End()

	ws := &WSEmitter{Conn: conn}

	wave, err := v.Source()
	if err != nil {
		slog.Error("Recording could not be loaded", slog.String("session", id), slog.Any("error", err))
		span.RecordError(err)
		_ = ws.EmitError(ctx, Nt.ErrorPayload{Error: err.Error()})
		ws.close("load failed")
		return
	}

	sched, err := v.newScheduler(id, ws)
	if err != nil {
		slog.Error("Scheduler could not be built", slog.String("session", id), slog.Any("error", err))
		_ = ws.EmitError(ctx, Nt.ErrorPayload{Error: err.Error()})
		ws.close("config error")
		return
	}
	if err := sched.Load(wave); err != nil {
		span.RecordError(err)
		msg := err.Error()
		if !isSynthetic(v.Config.Recording) {
			msg = "Failed to load EDF: " + msg
		}
		_ = ws.EmitError(ctx, Nt.ErrorPayload{Error: msg})
		ws.close("load failed")
		return
	}

	sess := &Session{ID: id, Remote: r.RemoteAddr, Started: time.Now(), Scheduler: sched}
	v.Sessions.Add(sess)
	v.Stats.SessionOpened()
	defer func() {
		v.Sessions.Remove(id)
		v.Stats.SessionClosed(string(sched.State()))
	}()

	// Run without the request context: hijacked connections never see it cancelled,
	// so disconnects arrive through the read loop instead.
	done := make(chan error, 1)
	started := v.Supervisor.Go("stream "+id, func() {
		done <- sched.Run(context.WithoutCancel(ctx))
	})
	if !started {
		_ = ws.EmitError(ctx, Nt.ErrorPayload{Error: "Stream error: server is shutting down"})
		ws.close("shutting down")
		return
	}

	go v.readControl(conn, sched)

	if err := <-done; err != nil {
		span.RecordError(err)
		var emitErr *Ns.EmissionError
		if !errors.As(err, &emitErr) && !errors.Is(err, context.Canceled) {
			_ = ws.EmitError(ctx, Nt.ErrorPayload{Error: "Stream error: " + err.Error()})
		}
	}
	ws.close(string(sched.State()))
}

// readControl applies client actions until the connection drops, then aborts.
func (v *View) readControl(conn *websocket.Conn, sched *Ns.Scheduler) {
	defer sched.Abort()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Websocket read ended", slog.String("session", sched.ID), slog.Any("error", err))
			}
			return
		}

		var c Control
		if err := json.Unmarshal(data, &c); err != nil {
			slog.Warn("Ignoring unreadable control frame", slog.String("session", sched.ID), slog.Any("error", err))
			continue
		}

		switch strings.ToLower(c.Action) {
		case "pause":
			err = sched.Pause()
		case "resume":
			err = sched.Resume()
		case "stop":
			sched.Abort()
			return
		default:
			slog.Warn("Unknown control action", slog.String("session", sched.ID), slog.String("action", c.Action))
			continue
		}
		if err != nil {
			slog.Warn("Control action rejected",
				slog.String("session", sched.ID),
				slog.String("action", c.Action),
				slog.Any("error", err))
		}
	}
}

// newScheduler builds a session scheduler with every configured collaborator
func (v *View) newScheduler(id string, primary Np.PayloadEmitter) (*Ns.Scheduler, error) {
	annotator, err := Np.AnnotatorLookup(v.Config.Stream.Annotator)
	if err != nil {
		return nil, &Ns.ConfigError{Field: "stream.annotator", Reason: err.Error()}
	}

	var emitter Np.PayloadEmitter = primary
	if v.Mirror != nil {
		emitter = Np.NewTeeEmitter(primary, v.Mirror.Emitter(id))
	}

	opts := []Ns.Option{
		Ns.WithSessionID(id),
		Ns.WithAnnotator(annotator),
		Ns.WithObserver(v.Stats),
	}
	if v.History != nil {
		opts = append(opts, Ns.WithRecorder(v.History))
	}
	return Ns.NewScheduler(v.Config.Scoring, v.Config.Stream, emitter, opts...)
}

func (v *View) sourceName() string {
	rc := v.Config.Recording
	if isSynthetic(rc) {
		return "synthetic"
	}
	return rc.Path
}
