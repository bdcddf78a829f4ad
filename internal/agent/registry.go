package agent

import "sync"

// SessionRegistry maps session identifiers (gateway chat IDs) to
// orchestrator instances, constructing them lazily through the
// injected factory. Each orchestrator is single-session by design;
// the registry is the only concurrency-safe entry point.
type SessionRegistry struct {
	mu       sync.Mutex
	factory  func(sessionID string) *Orchestrator
	sessions map[string]*Orchestrator
}

func NewSessionRegistry(factory func(sessionID string) *Orchestrator) *SessionRegistry {
	return &SessionRegistry{
		factory:  factory,
		sessions: make(map[string]*Orchestrator),
	}
}

// Get returns the orchestrator for a session, creating it on first use.
func (r *SessionRegistry) Get(sessionID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.sessions[sessionID]; ok {
		return o
	}
	o := r.factory(sessionID)
	r.sessions[sessionID] = o
	return o
}

// Remove tears down a session's orchestrator.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Len reports how many sessions are active.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
