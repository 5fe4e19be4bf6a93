package chat

import (
	"sort"
	"sync"
)

// Store owns the session table. Every mutation swaps in a fresh copy of the
// affected record; readers always get deep copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // display order, newest first
	active   string
	gens     map[string]uint64
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		gens:     make(map[string]uint64),
	}
}

// Prepend inserts s at the front, or replaces it in place when the id exists.
func (st *Store) Prepend(s Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID]; !ok {
		st.order = append([]string{s.ID}, st.order...)
	}
	st.sessions[s.ID] = s.clone()
}

func (st *Store) Get(id string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s.clone(), true
}

func (st *Store) List() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Session, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.sessions[id].clone())
	}
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.order)
}

// Update replaces the record with a modified copy.
func (st *Store) Update(id string, fn func(*Session)) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.updateLocked(id, fn)
}

func (st *Store) updateLocked(id string, fn func(*Session)) (Session, bool) {
	cur, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	next := cur.clone()
	fn(next)
	next.ID = id
	st.sessions[id] = next
	return *next.clone(), true
}

// Append adds messages at the tail of a session.
func (st *Store) Append(id string, msgs ...Message) (Session, bool) {
	return st.Update(id, func(s *Session) {
		s.Messages = append(s.Messages, cloneMessages(msgs)...)
	})
}

// Commit appends the user message of a new send, marks the session loading
// and returns the send's generation.
func (st *Store) Commit(id string, m Message) (Session, uint64, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return Session{}, 0, false
	}
	st.gens[id]++
	sess, _ := st.updateLocked(id, func(s *Session) {
		s.Messages = append(s.Messages, cloneMessages([]Message{m})...)
		s.Loading = true
	})
	return sess, st.gens[id], true
}

func (st *Store) Generation(id string) uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.gens[id]
}

// UpdateIfCurrent applies fn only while gen is still the session's latest send.
func (st *Store) UpdateIfCurrent(id string, gen uint64, fn func(*Session)) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gens[id] != gen {
		return Session{}, false
	}
	return st.updateLocked(id, fn)
}

// Delete removes a session. When it was active, the first remaining session becomes active.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	delete(st.gens, id)
	order := make([]string, 0, len(st.order))
	for _, oid := range st.order {
		if oid != id {
			order = append(order, oid)
		}
	}
	st.order = order
	if st.active == id {
		st.active = ""
		if len(order) > 0 {
			st.active = order[0]
		}
	}
	return true
}

// ReplaceAll swaps the table for sessions, newest first. Messages and
// non-default titles of sessions already held locally are kept.
func (st *Store) ReplaceAll(sessions []Session) {
	sorted := append([]Session(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	st.mu.Lock()
	defer st.mu.Unlock()
	next := make(map[string]*Session, len(sorted))
	order := make([]string, 0, len(sorted))
	for _, s := range sorted {
		if _, dup := next[s.ID]; dup {
			continue
		}
		rec := s.clone()
		if old, ok := st.sessions[s.ID]; ok {
			rec.Messages = cloneMessages(old.Messages)
			if old.Title != "" && old.Title != DefaultTitle {
				rec.Title = old.Title
			}
			rec.Loading = old.Loading
			rec.LoadError = old.LoadError
		}
		next[s.ID] = rec
		order = append(order, s.ID)
	}
	for id := range st.gens {
		if _, ok := next[id]; !ok {
			delete(st.gens, id)
		}
	}
	st.sessions = next
	st.order = order
	if _, ok := next[st.active]; !ok {
		st.active = ""
	}
}

func (st *Store) SetActive(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id != "" {
		if _, ok := st.sessions[id]; !ok {
			return false
		}
	}
	st.active = id
	return true
}

func (st *Store) ActiveID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.active
}
