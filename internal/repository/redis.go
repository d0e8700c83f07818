package repository

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// DeviceStorageRepository keeps small per-device key/value areas in Redis,
// one hash per device. Entries never expire.
type DeviceStorageRepository struct {
	client *redis.Client
}

func NewDeviceStorageRepository(client *redis.Client) *DeviceStorageRepository {
	return &DeviceStorageRepository{client: client}
}

func (r *DeviceStorageRepository) Close() error {
	return r.client.Close()
}

func (r *DeviceStorageRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ForDevice returns the storage area of one device.
func (r *DeviceStorageRepository) ForDevice(deviceID string) *DeviceStorage {
	return &DeviceStorage{client: r.client, key: "site:device:" + deviceID + ":storage"}
}

// DeviceStorage is the storage area of one device.
type DeviceStorage struct {
	client *redis.Client
	key    string
}

func (d *DeviceStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := d.client.HGet(ctx, d.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (d *DeviceStorage) Set(ctx context.Context, key, value string) error {
	return d.client.HSet(ctx, d.key, key, value).Err()
}
