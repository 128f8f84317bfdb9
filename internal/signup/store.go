// Package signup keeps provider profiles that are waiting for the member
// to finish registration.
package signup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sumire/stay/internal/domain"
)

// Pending is a verified provider profile with no member behind it yet.
type Pending struct {
	Provider      domain.Provider `json:"provider"`
	Subject       string          `json:"subject"`
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	AvatarURL     string          `json:"avatar_url"`
	EmailVerified bool            `json:"email_verified"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Store holds pending signups by ticket. Get and Delete return
// domain.ErrSignupExpired for unknown or expired tickets.
type Store interface {
	Put(ctx context.Context, ticket string, p Pending) error
	Get(ctx context.Context, ticket string) (*Pending, error)
	Delete(ctx context.Context, ticket string) error
}

// NewTicket returns an unguessable ticket.
func NewTicket() string {
	return uuid.NewString()
}

// RedisStore keeps pending signups in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed pending signup store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "signup:",
	}
}

func (r *RedisStore) key(ticket string) string {
	return r.prefix + ticket
}

func (r *RedisStore) Put(ctx context.Context, ticket string, p Pending) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("signup: expires_at must be in the future")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("signup: marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(ticket), data, ttl).Err(); err != nil {
		return fmt.Errorf("signup: save: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, ticket string) (*Pending, error) {
	val, err := r.client.Get(ctx, r.key(ticket)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSignupExpired
	}
	if err != nil {
		return nil, fmt.Errorf("signup: load: %w", err)
	}

	var p Pending
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("signup: unmarshal: %w", err)
	}
	return &p, nil
}

func (r *RedisStore) Delete(ctx context.Context, ticket string) error {
	return r.client.Del(ctx, r.key(ticket)).Err()
}

// MemoryStore is a single-process Store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Pending
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Pending), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, ticket string, p Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !p.ExpiresAt.After(m.now()) {
		return fmt.Errorf("signup: expires_at must be in the future")
	}
	m.items[ticket] = p
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ticket string) (*Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[ticket]
	if !ok {
		return nil, domain.ErrSignupExpired
	}
	if !p.ExpiresAt.After(m.now()) {
		delete(m.items, ticket)
		return nil, domain.ErrSignupExpired
	}
	return &p, nil
}

func (m *MemoryStore) Delete(_ context.Context, ticket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, ticket)
	return nil
}
