package repository

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestDeviceStorage_KeyPerDevice(t *testing.T) {
	repo := NewDeviceStorageRepository(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	defer repo.Close()

	require.Equal(t, "site:device:abc:storage", repo.ForDevice("abc").key)
	require.NotEqual(t, repo.ForDevice("abc").key, repo.ForDevice("abd").key)
}

func TestDeviceStorage_PropagatesErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewDeviceStorageRepository(client)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	storage := repo.ForDevice("d1")
	_, ok, err := storage.Get(ctx, "pwa-install-dismissed")
	require.Error(t, err)
	require.False(t, ok)
	require.Error(t, storage.Set(ctx, "pwa-install-dismissed", "true"))
	require.Error(t, repo.Ping(ctx))
}
