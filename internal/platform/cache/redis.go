// Package cache keeps rendered public template snapshots in Redis so the
// widget endpoint does not hit Postgres on every page view.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dpdp/internal/widget"
)

const keyPrefix = "dpdp:tpl:"

// Connect returns nil, nil when url is empty (cache disabled).
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Snapshots stores one hash per template with a field per
// language/platform variant, so a template update drops every variant.
type Snapshots struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshots(client *redis.Client, ttl time.Duration) *Snapshots {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Snapshots{client: client, ttl: ttl}
}

func key(templateID string) string {
	return keyPrefix + templateID
}

func field(language, platform string) string {
	return language + ":" + platform
}

func (s *Snapshots) Get(ctx context.Context, templateID, language, platform string) (widget.Snapshot, bool, error) {
	raw, err := s.client.HGet(ctx, key(templateID), field(language, platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return widget.Snapshot{}, false, nil
	}
	if err != nil {
		return widget.Snapshot{}, false, err
	}
	var snap widget.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return widget.Snapshot{}, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *Snapshots) Set(ctx context.Context, snap widget.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	k := key(snap.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, field(snap.Language, snap.Platform), raw)
	pipe.Expire(ctx, k, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Snapshots) Invalidate(ctx context.Context, templateID string) error {
	return s.client.Del(ctx, key(templateID)).Err()
}

func (s *Snapshots) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
