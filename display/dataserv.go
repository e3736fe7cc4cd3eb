package neurales

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	Nt "github.com/maroda/neurales/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SetupMux handles all data serving:
// - Prometheus metric endpoint
// - Websocket EEG stream, one session per connection
// - Version for programmatic use
// - Live sessions and their score history
func (v *View) SetupMux() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", v.Stats.Handler())
	r.HandleFunc("/ws", v.WebsocketHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(v.StatsMiddleware)
	api.HandleFunc("/version", v.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions", v.SessionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", v.SessionHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/history", v.HistoryHandler).Methods(http.MethodGet)

	return r
}

// Handler is the full server stack: CORS, access log and tracing around SetupMux
func (v *View) Handler() http.Handler {
	var h http.Handler = v.SetupMux()
	h = handlers.CORS(
		handlers.AllowedOrigins(v.Config.Server.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowCredentials(),
	)(h)
	h = handlers.LoggingHandler(os.Stdout, h)
	return otelhttp.NewHandler(h, "neurales")
}

var Version = "dev"

func (v *View) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (v *View) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	list := v.Sessions.List()
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

func (v *View) SessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := v.Sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, Nt.ErrorPayload{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

// HistoryPoint is one stored score on the wire
type HistoryPoint struct {
	T0        float64   `json:"t0"`
	Fatigue   int       `json:"fatigue"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryHandler returns the stored scores of a session, live or ended.
// Optional RFC3339 "from" and "to" query values bound the range.
func (v *View) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if v.History == nil {
		writeJSON(w, http.StatusNotImplemented, Nt.ErrorPayload{Error: "score history is not enabled"})
		return
	}
	id := mux.Vars(r)["id"]

	var from, to time.Time
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Nt.ErrorPayload{Error: "invalid " + key + ": " + err.Error()})
			return
		}
		*dst = t
	}

	// Scores still buffered for a live session are written first
	if err := v.History.Flush(); err != nil {
		slog.Error("Failed to flush score history", slog.Any("error", err))
	}

	recs, err := v.History.QueryRange(id, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Nt.ErrorPayload{Error: err.Error()})
		return
	}
	out := make([]HistoryPoint, 0, len(recs))
	for _, rec := range recs {
		out = append(out, HistoryPoint{T0: rec.T0, Fatigue: rec.Fatigue, Timestamp: rec.Timestamp})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}
