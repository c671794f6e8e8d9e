package redis

import (
	"context"
	"encoding/json"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/domain/membership"

	goredis "github.com/redis/go-redis/v9"
)

// MemberCache keeps member listings under parley:members:{type}_{id}.
type MemberCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewMemberCache(client *goredis.Client, ttl time.Duration) *MemberCache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &MemberCache{client: client, ttl: ttl}
}

func membersKey(ref conversation.Ref) string {
	return "parley:members:" + ref.String()
}

// GetMembers returns nil, nil on a cache miss.
func (c *MemberCache) GetMembers(ctx context.Context, ref conversation.Ref) ([]membership.Member, error) {
	data, err := c.client.Get(ctx, membersKey(ref)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var members []membership.Member
	if err := json.Unmarshal([]byte(data), &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *MemberCache) SetMembers(ctx context.Context, ref conversation.Ref, members []membership.Member) error {
	data, err := json.Marshal(members)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, membersKey(ref), data, c.ttl).Err()
}

func (c *MemberCache) Invalidate(ctx context.Context, ref conversation.Ref) error {
	return c.client.Del(ctx, membersKey(ref)).Err()
}
