package campaign

import (
	"sync"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/dialqueue"
	"github.com/acme/powerdialer/internal/domain"
)

// State is the authoritative in-memory record of one campaign: the campaign
// document plus its live call queue. The Queue guards itself; everything on
// the campaign document goes through Update or Snapshot.
type State struct {
	mu       sync.Mutex
	campaign *domain.Campaign

	// Queue is nil until the campaign starts.
	Queue  *dialqueue.Queue
	Report *domain.CampaignReport
}

// NewState wraps a campaign document.
func NewState(c *domain.Campaign) *State {
	return &State{campaign: c}
}

// ID returns the campaign id.
func (s *State) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.ID
}

// Snapshot copies the campaign document under the lock.
func (s *State) Snapshot() domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaign
}

// Update runs fn against the campaign document under the lock.
func (s *State) Update(fn func(c *domain.Campaign)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.campaign)
}

// Store holds every campaign currently known to this process. It is the
// system of record while the process runs; the database is a write-through
// copy used only for restart recovery and reporting.
type Store struct {
	mu     sync.RWMutex
	states map[uuid.UUID]*State
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{states: make(map[uuid.UUID]*State)}
}

// Put registers a campaign state.
func (s *Store) Put(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID()] = st
}

// Get looks up a campaign state.
func (s *Store) Get(id uuid.UUID) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// List returns all registered states.
func (s *Store) List() []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out
}
