package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "permitbot:session:"

// RedisClient is the subset of redis.Cmdable the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps JSON-encoded sessions in Redis with a sliding TTL.
type RedisStore struct {
	client    RedisClient
	ttl       time.Duration
	keyPrefix string
}

// NewRedisStore wires a store over client.
func NewRedisStore(client RedisClient, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session: redis client is nil")
	}
	return &RedisStore{client: client, ttl: ttl, keyPrefix: defaultKeyPrefix}, nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	return redis.NewClient(options), nil
}

func (store *RedisStore) Load(ctx context.Context, owner permit.OwnerID) (permit.Session, bool, error) {
	payload, err := store.client.Get(ctx, store.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return permit.Session{}, false, nil
	}
	if err != nil {
		return permit.Session{}, false, fmt.Errorf("session: load %s: %w", owner, err)
	}
	var session permit.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return permit.Session{}, false, fmt.Errorf("session: decode %s: %w", owner, err)
	}
	return session, true, nil
}

func (store *RedisStore) Save(ctx context.Context, owner permit.OwnerID, session permit.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", owner, err)
	}
	if err := store.client.Set(ctx, store.key(owner), payload, store.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", owner, err)
	}
	return nil
}

func (store *RedisStore) Delete(ctx context.Context, owner permit.OwnerID) error {
	if err := store.client.Del(ctx, store.key(owner)).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", owner, err)
	}
	return nil
}

func (store *RedisStore) key(owner permit.OwnerID) string {
	return store.keyPrefix + owner.String()
}
