package redis

import (
	"context"
	"testing"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/test"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	address  = "localhost:6379"
	user     = ""
	password = "RedisPassw0rd"
)

func Test_RedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	var client redis.UniversalClient

	test.StoreTest(t, func() backend.Store {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{address},
			Username: user,
			Password: password,
			DB:       1,
		})

		require.NoError(t, client.FlushDB(context.Background()).Err())

		s, err := NewRedisStore(client)
		require.NoError(t, err)

		return s
	}, func(s backend.Store) {
		s.Close()
	})
}
