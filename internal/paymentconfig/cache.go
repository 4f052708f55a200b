package paymentconfig

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/redis"
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetIfNewer(ctx context.Context, key string, value any, version int64, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

// cache is a read-through copy of the singleton. Every failure degrades to a
// database read. Entries are versioned by UpdatedAt so a reader that loaded
// the row before an update committed cannot overwrite the newer entry.
type cache struct {
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func (c *cache) enabled() bool {
	return c != nil && c.store != nil && c.ttl > 0
}

func (c *cache) key() string {
	return c.store.CacheKey("paymentconfig", models.PaymentConfigSingletonKey)
}

func (c *cache) get(ctx context.Context) (View, bool) {
	if !c.enabled() {
		return View{}, false
	}
	raw, err := c.store.Get(ctx, c.key())
	if err != nil {
		if !redis.IsNil(err) {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment config cache read failed")
		}
		return View{}, false
	}
	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment config cache entry unreadable")
		return View{}, false
	}
	return view, true
}

// set reports false only when the write failed; losing to a newer entry is
// not a failure.
func (c *cache) set(ctx context.Context, view View) bool {
	if !c.enabled() {
		return true
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return false
	}
	written, err := c.store.SetIfNewer(ctx, c.key(), payload, view.UpdatedAt.UnixMicro(), c.ttl)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment config cache write failed")
		return false
	}
	if !written {
		c.logg.Debug(ctx, "payment config cache already holds a newer entry")
	}
	return true
}

// refresh publishes a freshly committed view, dropping the entry when the
// write fails so readers fall back to the database.
func (c *cache) refresh(ctx context.Context, view View) {
	if !c.set(ctx, view) {
		c.invalidate(ctx)
	}
}

func (c *cache) invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if err := c.store.Del(ctx, c.key(), redis.VersionKey(c.key())); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment config cache invalidation failed")
	}
}
