package redis

import (
	"context"
	"encoding/json"

	"github.com/m-lab/iperfer/data"
	"github.com/redis/go-redis/v9"
)

const (
	resultPrefix = "iperfer:result:"
	latestPrefix = "iperfer:latest:"
)

// SetResult stores result under its UUID and marks it as the latest result
// for its role.
func (c *Client) SetResult(ctx context.Context, result *data.Result) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resultPrefix+result.UUID, b, c.ttl)
		pipe.Set(ctx, latestPrefix+result.Role.String(), result.UUID, c.ttl)
		return nil
	})
	return err
}

// GetResult returns the result stored for uuid. It returns redis.Nil when
// there is none.
func (c *Client) GetResult(ctx context.Context, uuid string) (*data.Result, error) {
	b, err := c.rdb.Get(ctx, resultPrefix+uuid).Bytes()
	if err != nil {
		return nil, err
	}
	result := &data.Result{}
	err = json.Unmarshal(b, result)
	return result, err
}

// GetLatest returns the UUID of the latest result stored for role, or the
// empty string if not found.
func (c *Client) GetLatest(ctx context.Context, role string) (string, error) {
	uuid, err := c.rdb.Get(ctx, latestPrefix+role).Result()
	if err == redis.Nil {
		return "", nil
	}
	return uuid, err
}
