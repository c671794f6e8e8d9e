package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Channel names used on redis pub/sub.
const (
	RoomChannelPrefix = "parley:room:"
	UserEditedChannel = "parley:user-edited"
	RoomEvictChannel  = "parley:room-evict"
)

func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks if Redis is available
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
