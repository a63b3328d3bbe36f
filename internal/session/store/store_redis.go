package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trustmesh/internal/models"
	"trustmesh/pkg/domain"
	"trustmesh/pkg/platform/sentinel"
)

const (
	// Redis key prefix for session records
	sessionKeyPrefix = "session:"
	// Records outlive expiry briefly so late validations see "expired", not "unknown".
	expiryGrace   = time.Minute
	maxCASRetries = 3
)

// RedisStore persists session metadata in Redis. Renewal uses WATCH/MULTI so
// a concurrent writer makes the transaction fail instead of interleaving.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

type RedisOption func(*RedisStore)

func WithClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type redisRecord struct {
	SessionID  string   `json:"session_id"`
	Identity   string   `json:"identity"`
	Protocol   int      `json:"protocol"`
	Scope      []string `json:"scope,omitempty"`
	Generation uint64   `json:"generation"`
	IssuedAt   int64    `json:"issued_at"`
	ExpiresAt  int64    `json:"expires_at"`
	KeyRef     string   `json:"key_ref"`
}

func toRecord(info models.SessionInfo) redisRecord {
	return redisRecord{
		SessionID:  info.SessionID.String(),
		Identity:   info.Identity,
		Protocol:   int(info.Protocol),
		Scope:      info.Scope,
		Generation: info.Generation,
		IssuedAt:   info.IssuedAt.UnixNano(),
		ExpiresAt:  info.ExpiresAt.UnixNano(),
		KeyRef:     string(info.KeyRef),
	}
}

func (r redisRecord) toModel() (models.SessionInfo, error) {
	id, err := domain.ParseSessionID(r.SessionID)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return models.SessionInfo{
		SessionID:  id,
		Identity:   r.Identity,
		Protocol:   models.ProtocolKind(r.Protocol),
		Scope:      r.Scope,
		Generation: r.Generation,
		IssuedAt:   time.Unix(0, r.IssuedAt),
		ExpiresAt:  time.Unix(0, r.ExpiresAt),
		KeyRef:     models.KeyRef(r.KeyRef),
	}, nil
}

func sessionKey(id domain.SessionID) string {
	return sessionKeyPrefix + id.String()
}

func (s *RedisStore) ttlFor(info models.SessionInfo) time.Duration {
	ttl := info.ExpiresAt.Sub(s.clock()) + expiryGrace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisStore) Create(ctx context.Context, info models.SessionInfo) error {
	payload, err := json.Marshal(toRecord(info))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(info.SessionID), payload, s.ttlFor(info)).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.SessionID) (models.SessionInfo, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SessionInfo{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.SessionInfo{}, fmt.Errorf("get session: %w", err)
	}
	return decode(raw)
}

// CompareAndSwap retries only on WATCH aborts caused by unrelated writes
// (for example a TTL refresh); a generation mismatch is final.
func (s *RedisStore) CompareAndSwap(ctx context.Context, expectedGeneration uint64, next models.SessionInfo) error {
	key := sessionKey(next.SessionID)
	payload, err := json.Marshal(toRecord(next))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := decode(raw)
		if err != nil {
			return err
		}
		if current.Generation != expectedGeneration {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttlFor(next))
			return nil
		})
		return err
	}

	for range maxCASRetries {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return sentinel.ErrConflict
}

func (s *RedisStore) Delete(ctx context.Context, id domain.SessionID) error {
	n, err := s.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func decode(raw []byte) (models.SessionInfo, error) {
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.SessionInfo{}, fmt.Errorf("decode session: %w", err)
	}
	return rec.toModel()
}
