package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore is the default Store. Sessions live until cleared or the
// process restarts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

type memSession struct {
	createdAt time.Time
	turns     []Turn
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*memSession{}}
}

func (s *MemoryStore) Append(_ context.Context, turn Turn) error {
	if s == nil {
		return errors.New("memory session store: nil store")
	}
	id := strings.TrimSpace(turn.SessionID)
	if id == "" {
		return errors.New("memory session store: session id is empty")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memSession{createdAt: time.Now()}
		s.sessions[id] = sess
	}
	sess.turns = append(sess.turns, turn)
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	if s == nil {
		return nil, errors.New("memory session store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (s *MemoryStore) Describe(_ context.Context, sessionID string) (Info, error) {
	if s == nil {
		return Info{}, errors.New("memory session store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(sessionID)
	sess, ok := s.sessions[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return Info{SessionID: id, TurnCount: len(sess.turns), CreatedAt: sess.createdAt}, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if s == nil {
		return errors.New("memory session store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, strings.TrimSpace(sessionID))
	return nil
}

func (s *MemoryStore) Close() error { return nil }
