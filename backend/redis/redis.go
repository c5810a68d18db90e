package redis

import (
	"github.com/docflowlabs/docflow/backend"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	backend.Options

	// KeyPrefix is prepended to every key written by the store.
	KeyPrefix string
}

type RedisStoreOption func(*RedisOptions)

func WithKeyPrefix(keyPrefix string) RedisStoreOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}

func WithBackendOptions(opts ...backend.BackendOption) RedisStoreOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

var _ backend.Store = (*redisStore)(nil)

func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*redisStore, error) {
	// Default options
	options := &RedisOptions{
		Options:   backend.ApplyOptions(),
		KeyPrefix: "docflow:",
	}

	for _, opt := range opts {
		opt(options)
	}

	return &redisStore{
		rdb:     client,
		options: options,
	}, nil
}

type redisStore struct {
	rdb     redis.UniversalClient
	options *RedisOptions
}

func (rs *redisStore) Close() error {
	return rs.rdb.Close()
}
