package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trustmesh/internal/models"
	"trustmesh/pkg/platform/sentinel"
)

const (
	bindingKeyPrefix = "pairing:binding:"
	userKeyPrefix    = "pairing:user:"
)

// RedisStore keeps one JSON document per device plus a set of device ids per
// user. Bindings do not expire.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, deviceID string) (models.DeviceBinding, error) {
	raw, err := s.client.Get(ctx, bindingKeyPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DeviceBinding{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.DeviceBinding{}, fmt.Errorf("get device binding: %w", err)
	}
	var b models.DeviceBinding
	if err := json.Unmarshal(raw, &b); err != nil {
		return models.DeviceBinding{}, fmt.Errorf("decode device binding: %w", err)
	}
	return b, nil
}

func (s *RedisStore) Save(ctx context.Context, binding models.DeviceBinding) error {
	raw, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("encode device binding: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, bindingKeyPrefix+binding.DeviceID, raw, 0)
		pipe.SAdd(ctx, userKeyPrefix+binding.UserID, binding.DeviceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save device binding: %w", err)
	}
	return nil
}

// Create claims the binding key with SETNX before indexing it under the user.
func (s *RedisStore) Create(ctx context.Context, binding models.DeviceBinding) error {
	raw, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("encode device binding: %w", err)
	}
	created, err := s.client.SetNX(ctx, bindingKeyPrefix+binding.DeviceID, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("create device binding: %w", err)
	}
	if !created {
		return sentinel.ErrConflict
	}
	if err := s.client.SAdd(ctx, userKeyPrefix+binding.UserID, binding.DeviceID).Err(); err != nil {
		return fmt.Errorf("index device binding: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, deviceID string) error {
	b, err := s.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, bindingKeyPrefix+deviceID)
		pipe.SRem(ctx, userKeyPrefix+b.UserID, deviceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete device binding: %w", err)
	}
	return nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]models.DeviceBinding, error) {
	ids, err := s.client.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("list device bindings: %w", err)
	}
	out := make([]models.DeviceBinding, 0, len(ids))
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
