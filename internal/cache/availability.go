// Package cache keeps listing availability in Redis so calendar reads do not
// hit the bookings table on every page view.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/go-redis/redis/v8"
)

// NewClient connects to Redis. url may be a redis:// URL or a host:port address.
func NewClient(url string) (*redis.Client, error) {
	if strings.Contains(url, "://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: url}), nil
}

// versionTTL outlives any cached entry so a reader never sees the counter
// reset while it is between Get and Set.
const versionTTL = 24 * time.Hour

var errStale = errors.New("availability changed since read")

// AvailabilityCache stores the blocking date ranges of each listing. Every
// invalidation bumps a per-listing version; Set only writes when the version
// still matches the one Get returned, so a slow reader cannot put ranges back
// that a booking change has already invalidated. A nil cache or one without a
// client is a no-op.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func Key(listingID uint) string {
	return fmt.Sprintf("availability:listing:%d", listingID)
}

func VersionKey(listingID uint) string {
	return Key(listingID) + ":version"
}

func (c *AvailabilityCache) enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached ranges, the listing's current version and whether
// the ranges were found. The version is meaningful on a miss too and must be
// passed to Set.
func (c *AvailabilityCache) Get(ctx context.Context, listingID uint) ([]models.DateRange, int64, bool) {
	if !c.enabled() {
		return nil, 0, false
	}
	vals, err := c.client.MGet(ctx, Key(listingID), VersionKey(listingID)).Result()
	if err != nil {
		log.Printf("[AvailabilityCache] get listing %d: %v", listingID, err)
		return nil, 0, false
	}
	version := parseVersion(vals[1])
	raw, ok := vals[0].(string)
	if !ok {
		return nil, version, false
	}
	var ranges []models.DateRange
	if err := json.Unmarshal([]byte(raw), &ranges); err != nil {
		log.Printf("[AvailabilityCache] decode listing %d: %v", listingID, err)
		return nil, version, false
	}
	return ranges, version, true
}

// Set stores ranges read at version. It is skipped when the listing was
// invalidated after that version was read.
func (c *AvailabilityCache) Set(ctx context.Context, listingID uint, version int64, ranges []models.DateRange) {
	if !c.enabled() {
		return
	}
	if ranges == nil {
		ranges = []models.DateRange{}
	}
	raw, err := json.Marshal(ranges)
	if err != nil {
		log.Printf("[AvailabilityCache] encode listing %d: %v", listingID, err)
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, VersionKey(listingID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(listingID), raw, c.ttl)
			return nil
		})
		return err
	}, VersionKey(listingID))

	switch {
	case err == nil, errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
	default:
		log.Printf("[AvailabilityCache] set listing %d: %v", listingID, err)
	}
}

// Invalidate drops the cached ranges and bumps the listing's version.
func (c *AvailabilityCache) Invalidate(ctx context.Context, listingID uint) {
	if !c.enabled() {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, VersionKey(listingID))
		pipe.Expire(ctx, VersionKey(listingID), versionTTL)
		pipe.Del(ctx, Key(listingID))
		return nil
	})
	if err != nil {
		log.Printf("[AvailabilityCache] invalidate listing %d: %v", listingID, err)
	}
}

func parseVersion(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
