// Package redismirror implements pathwaycache.Mirror on Redis, the
// distributed tier named in spec §6 for mirroring valid pathways across a
// multi-instance deployment.
package redismirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
)

const keyPrefix = "dendrite:pathway:"

// Mirror implements pathwaycache.Mirror over a Redis client.
type Mirror struct {
	client *redis.Client
}

var _ pathwaycache.Mirror = (*Mirror)(nil)

// New wraps an already-configured Redis client.
func New(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

func (m *Mirror) Put(ctx context.Context, pathway model.Pathway) error {
	data, err := json.Marshal(pathway)
	if err != nil {
		return fmt.Errorf("pathwaycache/redismirror: marshal: %w", err)
	}
	return m.client.Set(ctx, keyPrefix+pathway.ID, data, 0).Err()
}

func (m *Mirror) Invalidate(ctx context.Context, id string) error {
	return m.client.Del(ctx, keyPrefix+id).Err()
}
