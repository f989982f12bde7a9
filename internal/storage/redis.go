package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"narrative-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	playerKeyPrefix  = "narrative:player:"
	versionKeySuffix = ":version"
)

// RedisStore keeps one JSON document per player plus a version counter,
// updated inside a WATCH transaction so a concurrent writer aborts instead of
// overwriting.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

var _ ProgressStore = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed progress store.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.Named("RedisProgressStore")}
}

func (s *RedisStore) Get(ctx context.Context, playerID string) (*models.Player, int64, error) {
	key := playerKeyPrefix + playerID
	pipe := s.client.Pipeline()
	docCmd := pipe.Get(ctx, key)
	verCmd := pipe.Get(ctx, key+versionKeySuffix)
	_, err := pipe.Exec(ctx)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, models.ErrProgressNotFound
		}
		s.logger.Error("Failed to fetch player document", zap.String("playerID", playerID), zap.Error(err))
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	p, err := unmarshalPlayer([]byte(docCmd.Val()))
	if err != nil {
		s.logger.Error("Failed to decode player document", zap.String("playerID", playerID), zap.Error(err))
		return nil, 0, err
	}
	version, err := strconv.ParseInt(verCmd.Val(), 10, 64)
	if err != nil {
		s.logger.Error("Player version key is not numeric", zap.String("playerID", playerID), zap.Error(err))
		return nil, 0, err
	}
	return p, version, nil
}

func (s *RedisStore) Put(ctx context.Context, playerID string, p *models.Player, version int64) error {
	key := playerKeyPrefix + playerID
	verKey := key + versionKeySuffix

	data, err := marshalPlayer(p)
	if err != nil {
		return err
	}

	txn := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if stored != version {
			return models.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Set(ctx, verKey, version+1, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txn, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the key between WATCH and EXEC.
		return models.ErrVersionConflict
	}
	if err != nil && !errors.Is(err, models.ErrVersionConflict) {
		s.logger.Error("Failed to store player document", zap.String("playerID", playerID), zap.Error(err))
	}
	return err
}
