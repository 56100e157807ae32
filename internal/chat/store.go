package chat

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultWindow is the retained-turn ceiling: 10 turns, i.e. 5 exchanges.
const DefaultWindow = 10

// Store owns per-conversation message history. All mutations happen under one
// lock; the lock is never held across network I/O, so turns for different
// conversations proceed independently through the model call.
//
// Conversations are created lazily on first append and live for the process
// lifetime. There is no expiry policy; the store is injected at construction
// so one can be added at a single site.
type Store struct {
	mu            sync.Mutex
	conversations map[string][]Turn
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{conversations: make(map[string][]Turn)}
}

// NewConversationID mints a random conversation handle for callers that did
// not supply one.
func NewConversationID() string {
	return uuid.NewString()
}

// Append adds a turn to the conversation, creating it if absent.
func (s *Store) Append(id string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[id] = append(s.conversations[id], turn)
}

// RollbackLast removes the most recently appended turn, if any. Used only to
// undo a speculative user-turn append after a failed model call.
func (s *Store) RollbackLast(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.conversations[id]
	if len(turns) == 0 {
		return
	}
	s.conversations[id] = turns[:len(turns)-1]
}

// TrimToWindow evicts the oldest turns until at most maxTurns remain. This is
// a sliding window over append order, not an LRU.
func (s *Store) TrimToWindow(id string, maxTurns int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.conversations[id]
	if len(turns) <= maxTurns {
		return
	}
	s.conversations[id] = turns[len(turns)-maxTurns:]
}

// Snapshot returns a copy of the conversation history. The copy does not
// track later mutations.
func (s *Store) Snapshot(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.conversations[id]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len returns the current turn count for a conversation.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations[id])
}
