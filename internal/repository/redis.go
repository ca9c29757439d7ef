package repository

import (
	"context"
	"errors"
	"strconv"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/redis/go-redis/v9"
)

const (
	fieldVersion = "v"
	fieldData    = "data"
)

// RedisBlobRepository keeps every blob in a hash {v, data} under prefix+key.
type RedisBlobRepository struct {
	client *redis.Client
	prefix string
	logger *utils.Logger
}

func NewRedisBlobRepository(client *redis.Client, prefix string, logger *utils.Logger) *RedisBlobRepository {
	return &RedisBlobRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisBlobRepository) Get(ctx context.Context, key string) ([]byte, int64, error) {
	vals, err := r.client.HMGet(ctx, r.prefix+key, fieldVersion, fieldData).Result()
	if err != nil {
		return nil, 0, apperr.NewStoreError("get "+key, err)
	}
	return decodeRedisBlob(vals)
}

func (r *RedisBlobRepository) CompareAndSwap(ctx context.Context, key string, expected int64, value []byte) (bool, error) {
	fullKey := r.prefix + key
	swapped := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, fullKey, fieldVersion, fieldData).Result()
		if err != nil {
			return err
		}
		_, version, err := decodeRedisBlob(vals)
		if err != nil {
			return err
		}
		if version != expected {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, fullKey, fieldVersion, expected+1, fieldData, value)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, fullKey)

	if errors.Is(err, redis.TxFailedErr) {
		r.logger.Debugf("Blob %s changed during write, retry needed", key)
		return false, nil
	}
	if err != nil {
		return false, apperr.NewStoreError("write "+key, err)
	}
	return swapped, nil
}

func (r *RedisBlobRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return apperr.NewStoreError("delete "+key, err)
	}
	return nil
}

func decodeRedisBlob(vals []interface{}) ([]byte, int64, error) {
	if len(vals) != 2 || vals[0] == nil {
		return nil, 0, nil
	}

	rawVersion, _ := vals[0].(string)
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return nil, 0, apperr.NewStoreError("decode version", err)
	}

	data, _ := vals[1].(string)
	return []byte(data), version, nil
}
