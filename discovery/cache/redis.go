// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/industrial-twin/twinhub/pkg/errors"
)

const keyPrefix = "twinhub:registry:"

var _ discovery.Cache = (*redisCache)(nil)

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis returns a Redis-backed registry cache. Entries of one partner
// share a hash keyed by BPN; per-entry expiry is evaluated lazily on
// Lookup, with a key-level expiration as a backstop.
func NewRedis(client *redis.Client, ttl time.Duration) discovery.Cache {
	if ttl <= 0 {
		ttl = DefTTL
	}
	return &redisCache{
		client: client,
		ttl:    ttl,
	}
}

func (rc *redisCache) Lookup(ctx context.Context, bpn string) ([]discovery.Entry, error) {
	fields, err := rc.client.HGetAll(ctx, keyPrefix+bpn).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrViewEntity, err)
	}

	now := time.Now()
	var live []discovery.Entry
	var expired []string
	for assetID, raw := range fields {
		var entry discovery.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			expired = append(expired, assetID)
			continue
		}
		if now.Sub(entry.InsertedAt) > rc.ttl {
			expired = append(expired, assetID)
			continue
		}
		live = append(live, entry)
	}

	if len(expired) > 0 {
		if err := rc.client.HDel(ctx, keyPrefix+bpn, expired...).Err(); err != nil {
			return nil, errors.Wrap(errors.ErrRemoveEntity, err)
		}
	}

	return live, nil
}

func (rc *redisCache) Save(ctx context.Context, bpn string, entry discovery.Entry) error {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = time.Now()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(errors.ErrMalformedEntity, err)
	}

	key := keyPrefix + bpn
	if err := rc.client.HSet(ctx, key, entry.AssetID, raw).Err(); err != nil {
		return errors.Wrap(errors.ErrCreateEntity, err)
	}
	// Key-level backstop so an idle partner's hash does not outlive its
	// newest entry.
	if err := rc.client.Expire(ctx, key, rc.ttl).Err(); err != nil {
		return errors.Wrap(errors.ErrCreateEntity, err)
	}
	return nil
}

func (rc *redisCache) Remove(ctx context.Context, bpn, assetID string) error {
	if err := rc.client.HDel(ctx, keyPrefix+bpn, assetID).Err(); err != nil {
		return errors.Wrap(errors.ErrRemoveEntity, err)
	}
	return nil
}

func (rc *redisCache) Purge(ctx context.Context, bpn string) error {
	if err := rc.client.Del(ctx, keyPrefix+bpn).Err(); err != nil {
		return errors.Wrap(errors.ErrRemoveEntity, err)
	}
	return nil
}

func (rc *redisCache) Reset(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(errors.ErrRemoveEntity, err)
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(errors.ErrRemoveEntity, err)
	}
	return nil
}

func (rc *redisCache) Count(ctx context.Context, bpn string) (int, error) {
	live, err := rc.Lookup(ctx, bpn)
	if err != nil {
		return 0, err
	}
	return len(live), nil
}
