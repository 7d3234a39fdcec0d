package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"merchant-admin/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix = "merchant:"
	genPrefix = "merchant:gen:"
)

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// errStaleFill aborts a read-through fill that lost the race with a write.
var errStaleFill = errors.New("cache fill superseded by a write")

// MerchantSource is the authoritative merchant backend behind the cache.
type MerchantSource interface {
	GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error)
	UpdateMerchant(ctx context.Context, id string, patch models.MerchantPatch) (*models.Merchant, error)
	DeleteMerchant(ctx context.Context, id string) error
}

// MerchantCache is a read-through, write-through Redis cache over a
// MerchantSource. Redis failures are logged and never fail the call.
type MerchantCache struct {
	client *redis.Client
	next   MerchantSource
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisClient(addr string, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("Redis cache connected")
	return client, nil
}

func NewMerchantCache(client *redis.Client, next MerchantSource, ttl time.Duration, logger zerolog.Logger) *MerchantCache {
	return &MerchantCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *MerchantCache) GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error) {
	raw, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case err == nil:
		var m models.Merchant
		if err := json.Unmarshal(raw, &m); err == nil {
			return &m, nil
		}
		c.logger.Warn().Str("merchant_id", id).Msg("Discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("merchant_id", id).Msg("Cache read failed")
	}

	gen, genErr := c.generation(ctx, c.client, id)

	m, err := c.next.GetMerchantByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		c.fill(ctx, m, gen)
	}
	return m, nil
}

func (c *MerchantCache) UpdateMerchant(ctx context.Context, id string, patch models.MerchantPatch) (*models.Merchant, error) {
	m, err := c.next.UpdateMerchant(ctx, id, patch)
	if err != nil {
		c.evict(ctx, id)
		return nil, err
	}

	c.store(ctx, m)
	return m, nil
}

func (c *MerchantCache) DeleteMerchant(ctx context.Context, id string) error {
	err := c.next.DeleteMerchant(ctx, id)
	c.evict(ctx, id)
	return err
}

// generation reads the write counter for id. Every write bumps it, so a
// read-through fill only lands when no write happened since the read began.
func (c *MerchantCache) generation(ctx context.Context, cmd stringGetter, id string) (int64, error) {
	gen, err := cmd.Get(ctx, genPrefix+id).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("merchant_id", id).Msg("Cache generation read failed")
	}
	return gen, err
}

func (c *MerchantCache) fill(ctx context.Context, m *models.Merchant, gen int64) {
	raw, err := json.Marshal(m)
	if err != nil {
		c.logger.Warn().Err(err).Str("merchant_id", m.ID).Msg("Failed to encode merchant for cache")
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+m.ID, raw, c.ttl)
			return nil
		})
		return err
	}, genPrefix+m.ID)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug().Str("merchant_id", m.ID).Msg("Skipping stale cache fill")
	default:
		c.logger.Warn().Err(err).Str("merchant_id", m.ID).Msg("Cache write failed")
	}
}

func (c *MerchantCache) store(ctx context.Context, m *models.Merchant) {
	raw, err := json.Marshal(m)
	if err != nil {
		c.logger.Warn().Err(err).Str("merchant_id", m.ID).Msg("Failed to encode merchant for cache")
		c.evict(ctx, m.ID)
		return
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genPrefix+m.ID)
		pipe.Set(ctx, keyPrefix+m.ID, raw, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("merchant_id", m.ID).Msg("Cache write failed")
	}
}

func (c *MerchantCache) evict(ctx context.Context, id string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genPrefix+id)
		pipe.Del(ctx, keyPrefix+id)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("merchant_id", id).Msg("Cache eviction failed")
	}
}
