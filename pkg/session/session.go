// Package session records conversation turns per session id and hands them
// back in submission order.
package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded exchange entry. Immutable once appended.
type Turn struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Info describes a session without its turns.
type Info struct {
	SessionID string    `json:"session_id"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound is returned by History and Describe for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store keeps ordered turn lists per session. Concurrent appends to the same
// session must preserve submission order; implementations serialize appends
// internally.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Describe(ctx context.Context, sessionID string) (Info, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}
