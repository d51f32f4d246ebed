package session

import "sync"

// Store is the in-memory session map, keyed by Telegram user ID. Sessions
// live for the process lifetime only; restarting the bot starts everyone at
// the consent gate again.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// GetOrCreate returns the session for the given user, creating it in state
// StateNew on first contact.
func (st *Store) GetOrCreate(userID, chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		s = newSession(userID, chatID)
		st.sessions[userID] = s
	}
	// Chat IDs can change when a user re-contacts the bot from a new chat.
	s.ChatID = chatID
	return s
}

// Get returns the session for the given user, or nil if none exists.
func (st *Store) Get(userID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[userID]
}

// Delete removes a user's session.
func (st *Store) Delete(userID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, userID)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// CountInState returns how many live sessions are currently in the given
// state. Used by the metrics collector at scrape time.
func (st *Store) CountInState(state string) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for _, s := range st.sessions {
		if s.State() == state {
			n++
		}
	}
	return n
}
