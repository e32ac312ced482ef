// ABOUTME: Decoded-buffer cache keyed by asset id and context sample rate
// ABOUTME: Concurrent loads of one asset share a single fetch and decode
package assets

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio/resample"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultEntries bounds the cache when no size is configured
const DefaultEntries = 64

// CacheConfig configures a Cache
type CacheConfig struct {
	Catalog *Catalog
	Fetcher Fetcher
	Entries int
	// Disabled decodes on every load
	Disabled   bool
	SampleRate int
	Logger     zerolog.Logger
	OnHit      func(id string)
	OnMiss     func(id string)
}

// Policy is the resource budget the optimizer imposes on the cache
type Policy struct {
	// MaxBytes bounds the decoded PCM held; zero is unbounded
	MaxBytes int
	// MaxBitrate selects LowURL for assets encoded above it; zero is no cap
	MaxBitrate int
	// StreamNonCritical decodes non-critical assets per play without caching
	StreamNonCritical bool
}

// Cache loads assets through the fetcher, decodes them and converts them
// to the context sample rate
type Cache struct {
	cfg     CacheConfig
	log     zerolog.Logger
	buffers *lru.Cache[string, *audio.Buffer]
	group   singleflight.Group

	mu     sync.RWMutex
	rate   int
	policy Policy
}

// NewCache creates a cache over cfg.Catalog
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Entries <= 0 {
		cfg.Entries = DefaultEntries
	}
	buffers, err := lru.New[string, *audio.Buffer](cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "assets").Logger(),
		buffers: buffers,
		rate:    cfg.SampleRate,
	}, nil
}

// Catalog returns the catalog the cache serves
func (c *Cache) Catalog() *Catalog {
	return c.cfg.Catalog
}

// SetSampleRate changes the target rate. Cached buffers at the old rate
// are dropped.
func (c *Cache) SetSampleRate(rate int) {
	c.mu.Lock()
	changed := c.rate != rate
	c.rate = rate
	c.mu.Unlock()
	if changed {
		c.buffers.Purge()
	}
}

// SetPolicy replaces the budget and trims the cache to it
func (c *Cache) SetPolicy(p Policy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
	c.trim(p.MaxBytes)
}

// Policy returns the budget in force
func (c *Cache) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// trim evicts least recently used buffers until the cache fits maxBytes.
// The most recent buffer is kept even when it alone exceeds the budget.
func (c *Cache) trim(maxBytes int) {
	if maxBytes <= 0 {
		return
	}
	for c.buffers.Len() > 1 && c.SizeBytes() > maxBytes {
		if key, _, ok := c.buffers.RemoveOldest(); ok {
			c.log.Debug().Str("key", key).Int("budget", maxBytes).Msg("evicted over budget")
		}
	}
}

// Load returns the decoded buffer for id
func (c *Cache) Load(ctx context.Context, id string) (*audio.Buffer, Asset, error) {
	asset, err := c.cfg.Catalog.Get(id)
	if err != nil {
		return nil, Asset{}, err
	}
	c.mu.RLock()
	rate, policy := c.rate, c.policy
	c.mu.RUnlock()

	src := asset.URLFor(policy.MaxBitrate)
	key := id + "@" + strconv.Itoa(rate)
	if src != asset.URL {
		key += "/low"
	}
	store := !c.cfg.Disabled && (asset.Critical || !policy.StreamNonCritical)

	if !c.cfg.Disabled {
		if buf, ok := c.buffers.Get(key); ok {
			if c.cfg.OnHit != nil {
				c.cfg.OnHit(id)
			}
			return buf, asset, nil
		}
	}
	if c.cfg.OnMiss != nil {
		c.cfg.OnMiss(id)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		buf, err := c.decode(ctx, asset, src, rate)
		if err != nil {
			return nil, err
		}
		if store {
			c.buffers.Add(key, buf)
			c.trim(policy.MaxBytes)
		}
		return buf, nil
	})
	if err != nil {
		return nil, asset, err
	}
	return v.(*audio.Buffer), asset, nil
}

func (c *Cache) decode(ctx context.Context, asset Asset, src string, rate int) (*audio.Buffer, error) {
	if c.cfg.Fetcher == nil {
		return nil, fmt.Errorf("load %s: no fetcher configured", asset.ID)
	}

	format := audio.Format{
		Codec:      decode.CodecForPath(src),
		SampleRate: asset.SampleRate,
		Channels:   asset.Channels,
		BitDepth:   16,
	}
	dec, err := decode.New(format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", asset.ID, err)
	}

	r, err := c.cfg.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", asset.ID, err)
	}
	defer r.Close()

	buf, err := dec.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", asset.ID, err)
	}

	out := resample.Buffer(buf, rate)
	c.log.Debug().
		Str("asset", asset.ID).
		Str("url", src).
		Int("source_rate", buf.Format.SampleRate).
		Int("rate", out.Format.SampleRate).
		Dur("duration", out.Duration()).
		Msg("decoded")
	return out, nil
}

// Preload loads ids with at most limit concurrent decodes. The first
// error cancels the rest.
func (c *Cache) Preload(ctx context.Context, ids []string, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, _, err := c.Load(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// Len is the number of cached buffers
func (c *Cache) Len() int {
	return c.buffers.Len()
}

// SizeBytes sums the PCM size of cached buffers
func (c *Cache) SizeBytes() int {
	total := 0
	for _, buf := range c.buffers.Values() {
		total += buf.SizeBytes()
	}
	return total
}

// Purge empties the cache
func (c *Cache) Purge() {
	c.buffers.Purge()
}
