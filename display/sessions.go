package neurales

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	Ns "github.com/maroda/neurales/server"
)

// Session is one live client stream. It owns its scheduler outright.
type Session struct {
	ID        string
	Remote    string
	Started   time.Time
	Scheduler *Ns.Scheduler
}

// SessionInfo is the JSON view of a Session
type SessionInfo struct {
	Ns.Status
	Remote  string    `json:"remote"`
	Started time.Time `json:"started"`
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Status:  s.Scheduler.Status(),
		Remote:  s.Remote,
		Started: s.Started,
	}
}

// NewSessionID returns an opaque session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// SessionRegistry indexes live sessions by id.
// It only tracks them, each Session's state stays its own.
type SessionRegistry struct {
	MU       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

func (sr *SessionRegistry) Add(s *Session) {
	sr.MU.Lock()
	defer sr.MU.Unlock()
	sr.sessions[s.ID] = s
}

func (sr *SessionRegistry) Remove(id string) {
	sr.MU.Lock()
	defer sr.MU.Unlock()
	delete(sr.sessions, id)
}

func (sr *SessionRegistry) Get(id string) (*Session, bool) {
	sr.MU.RLock()
	defer sr.MU.RUnlock()
	s, ok := sr.sessions[id]
	return s, ok
}

func (sr *SessionRegistry) Len() int {
	sr.MU.RLock()
	defer sr.MU.RUnlock()
	return len(sr.sessions)
}

// List returns sessions oldest first
func (sr *SessionRegistry) List() []*Session {
	sr.MU.RLock()
	out := make([]*Session, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		out = append(out, s)
	}
	sr.MU.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// AbortAll aborts every registered session
func (sr *SessionRegistry) AbortAll() {
	for _, s := range sr.List() {
		s.Scheduler.Abort()
	}
}
