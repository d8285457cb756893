package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "transit:download:"

// Caches downloaded documents in Redis, letting several processes
// share one cache. Expiry is left to Redis.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, logger: logger}
}

// Connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr string, password string, db int, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return NewRedis(client, logger), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	key := redisKey(url)

	if options.Cache {
		body, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			r.logger.Debug("cache hit", zap.String("url", url))
			return body, nil
		}
		if !errors.Is(err, redis.Nil) {
			// A broken cache shouldn't stop downloads.
			r.logger.Warn("reading cache", zap.String("url", url), zap.Error(err))
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		err = r.client.Set(ctx, key, body, options.CacheTTL).Err()
		if err != nil {
			r.logger.Warn("writing cache", zap.String("url", url), zap.Error(err))
		}
	}

	return body, nil
}

func redisKey(url string) string {
	return redisKeyPrefix + cacheKey(url)
}
