package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PresenceStatus is the mirrored presence of one user.
type PresenceStatus struct {
	UserID   int64     `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceStore mirrors the gateway's in-process presence map so other tools can read it.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

const (
	presenceKeyPrefix = "parley:presence:"
	presenceOnlineSet = "parley:presence:online"
)

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func presenceKey(userID int64) string {
	return presenceKeyPrefix + strconv.FormatInt(userID, 10)
}

// Set writes the status and keeps the online set in step with it.
func (p *PresenceStore) Set(ctx context.Context, status PresenceStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	member := strconv.FormatInt(status.UserID, 10)
	pipe := p.client.Pipeline()
	pipe.Set(ctx, presenceKey(status.UserID), data, p.ttl)
	if status.IsOnline {
		pipe.SAdd(ctx, presenceOnlineSet, member)
	} else {
		pipe.SRem(ctx, presenceOnlineSet, member)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns nil on a cache miss.
func (p *PresenceStore) Get(ctx context.Context, userID int64) (*PresenceStatus, error) {
	data, err := p.client.Get(ctx, presenceKey(userID)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var status PresenceStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (p *PresenceStore) OnlineCount(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, presenceOnlineSet).Result()
}
