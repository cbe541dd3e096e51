package compare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound indicates a comparison session id with no stored state.
var ErrSessionNotFound = errors.New("compare: session not found")

// Store persists comparison sessions in Redis as JSON payloads with a TTL,
// one key per session. A session belongs to one user and one screen; the
// store never shares state across sessions.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. TTL bounds how long an abandoned comparison
// survives.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// NewSessionID mints a session identifier.
func (st *Store) NewSessionID() string {
	return uuid.NewString()
}

func (st *Store) key(sessionID string) string {
	return "sourcing:cmp:" + sessionID
}

// Save snapshots the session and writes it under the session id, refreshing
// the TTL.
func (st *Store) Save(ctx context.Context, sessionID string, sess *Session) error {
	payload, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return fmt.Errorf("compare: marshal session: %w", err)
	}
	if err := st.client.Set(ctx, st.key(sessionID), payload, st.ttl).Err(); err != nil {
		return fmt.Errorf("compare: store session: %w", err)
	}
	return nil
}

// Load restores a stored session.
func (st *Store) Load(ctx context.Context, sessionID string) (*Session, error) {
	payload, err := st.client.Get(ctx, st.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("compare: load session: %w", err)
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("compare: decode session: %w", err)
	}
	return FromState(state)
}

// Delete removes a session. Used when orders are built and the session is
// committed.
func (st *Store) Delete(ctx context.Context, sessionID string) error {
	if err := st.client.Del(ctx, st.key(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("compare: delete session: %w", err)
	}
	return nil
}
