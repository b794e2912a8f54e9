package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisTokenKeyPrefix = "lodo:token:"

// RedisTokenStore keeps issued tokens in Redis so logins survive restarts
// and are shared across replicas.
type RedisTokenStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisTokenStore creates a token store on an existing Redis client.
func NewRedisTokenStore(client *redis.Client, logger zerolog.Logger) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		logger: logger.With().Str("component", "token_store").Logger(),
	}
}

func (s *RedisTokenStore) Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisTokenKeyPrefix+tokenHash, userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Lookup(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	value, err := s.client.Get(ctx, redisTokenKeyPrefix+tokenHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, fmt.Errorf("lookup token: %w", err)
	}
	userID, err := uuid.Parse(value)
	if err != nil {
		s.logger.Warn().Str("value", value).Msg("malformed user id in token store")
		return uuid.Nil, ErrTokenNotFound
	}
	return userID, nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, redisTokenKeyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// MemoryTokenStore is the single-process fallback used when Redis is not
// configured. Expired entries are dropped lazily on lookup.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
}

type memoryToken struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// NewMemoryTokenStore creates an in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]memoryToken)}
}

func (s *MemoryTokenStore) Save(_ context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = memoryToken{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Lookup(_ context.Context, tokenHash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[tokenHash]
	if !ok {
		return uuid.Nil, ErrTokenNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.tokens, tokenHash)
		return uuid.Nil, ErrTokenNotFound
	}
	return entry.userID, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenHash)
	return nil
}
