package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/backtest"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps a Loader with a Redis read-through cache. Series are stored as
// JSON arrays under "<prefix>series:<ticker>" and expire after ttl.
type Cache struct {
	primary Loader
	rdb     redis.Cmdable
	ttl     time.Duration
	prefix  string
	log     zerolog.Logger
}

// NewCache creates a cached wrapper around primary.
func NewCache(primary Loader, rdb redis.Cmdable, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{primary: primary, rdb: rdb, ttl: ttl, prefix: "backtest:", log: log}
}

func (c *Cache) key(ticker backtest.Ticker) string {
	return fmt.Sprintf("%sseries:%s", c.prefix, ticker)
}

// LoadSeries implements Loader. Redis errors are logged and the primary is
// used instead.
func (c *Cache) LoadSeries(ctx context.Context, ticker backtest.Ticker) (*Series, error) {
	key := c.key(ticker)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if s, err := unmarshalSeries(data); err == nil {
			c.log.Debug().Str("ticker", string(ticker)).Msg("series cache hit")
			return s, nil
		}
		c.log.Warn().Str("key", key).Msg("corrupted cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("cache unavailable")
	}

	s, err := c.primary.LoadSeries(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if data, err := marshalSeries(s); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cannot cache series")
		}
	}
	return s, nil
}

// Invalidate removes the cached series of tickers.
func (c *Cache) Invalidate(ctx context.Context, tickers ...backtest.Ticker) error {
	if len(tickers) == 0 {
		return nil
	}
	keys := make([]string, len(tickers))
	for i, t := range tickers {
		keys[i] = c.key(t)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
