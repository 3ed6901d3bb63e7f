// Package geocache decorates a domain.Geocoder with a bounded, expiring
// lookup cache. Matches are kept for a day by default; "not found" answers
// are kept briefly so repeated misspellings do not hit the provider.
// Concurrent lookups of the same query share one upstream request.
package geocache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultNotFoundTTL   = 10 * time.Minute
	DefaultLookupTimeout = 10 * time.Second
)

// Lookup outcomes recorded on the GeocodeCache metric.
const (
	resultHit         = "hit"
	resultNegativeHit = "negative_hit"
	resultMiss        = "miss"
	resultExpired     = "expired"
)

// Option tunes a CachedGeocoder.
type Option func(*CachedGeocoder)

// WithTTL sets how long a match is served from the cache.
func WithTTL(d time.Duration) Option {
	return func(c *CachedGeocoder) { c.ttl = d }
}

// WithNotFoundTTL sets how long a "not found" answer is remembered. Zero
// disables negative caching.
func WithNotFoundTTL(d time.Duration) Option {
	return func(c *CachedGeocoder) { c.notFoundTTL = d }
}

// WithLookupTimeout bounds a shared upstream lookup. The lookup is detached
// from the caller that started it, so this is its only deadline.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *CachedGeocoder) { c.lookupTimeout = d }
}

// WithClock replaces the wall clock used for expiry.
func WithClock(clk clockwork.Clock) Option {
	return func(c *CachedGeocoder) { c.clock = clk }
}

// CachedGeocoder is a domain.Geocoder backed by an LRU keyed on the
// normalized query text. Transport failures are never cached.
type CachedGeocoder struct {
	inner       domain.Geocoder
	metrics     *observability.Metrics
	clock       clockwork.Clock
	ttl           time.Duration
	notFoundTTL   time.Duration
	lookupTimeout time.Duration
	group         singleflight.Group

	mu         sync.Mutex
	maxEntries int
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type cached struct {
	key      string
	result   domain.GeocodingResult
	notFound bool
	expires  time.Time
}

// New wraps inner with a cache holding at most maxEntries queries.
func New(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics, opts ...Option) *CachedGeocoder {
	c := &CachedGeocoder{
		inner:         inner,
		metrics:       metrics,
		clock:         clockwork.NewRealClock(),
		ttl:           DefaultTTL,
		notFoundTTL:   DefaultNotFoundTTL,
		lookupTimeout: DefaultLookupTimeout,
		maxEntries:    max(1, maxEntries),
		order:         list.New(),
		entries:       make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search answers from the cache when a live entry exists, otherwise asks the
// wrapped geocoder once per distinct in-flight query. A caller that gives up
// does not cancel the lookup for the others.
func (c *CachedGeocoder) Search(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := normalize(query)

	e, outcome := c.lookup(key)
	c.metrics.GeocodeCache.WithLabelValues(outcome).Inc()
	if e != nil {
		if e.notFound {
			return domain.GeocodingResult{}, domain.ErrGeocodeNotFound
		}
		return e.result, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), key, query)
	})
	select {
	case <-ctx.Done():
		return domain.GeocodingResult{}, fmt.Errorf("%w: %w", domain.ErrGeocodeUnavailable, ctx.Err())
	case r := <-ch:
		result, _ := r.Val.(domain.GeocodingResult)
		return result, r.Err
	}
}

// fetch asks the wrapped geocoder and caches the answer. It runs once per
// distinct in-flight query, on behalf of every caller waiting for it.
func (c *CachedGeocoder) fetch(ctx context.Context, key, query string) (domain.GeocodingResult, error) {
	if c.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.lookupTimeout)
		defer cancel()
	}

	result, err := c.inner.Search(ctx, query)
	switch {
	case err == nil:
		c.store(cached{key: key, result: result, expires: c.clock.Now().Add(c.ttl)})
	case errors.Is(err, domain.ErrGeocodeNotFound) && c.notFoundTTL > 0:
		c.store(cached{key: key, notFound: true, expires: c.clock.Now().Add(c.notFoundTTL)})
	}
	return result, err
}

// Len returns the number of cached queries, live or expired.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedGeocoder) lookup(key string) (*cached, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, resultMiss
	}
	e := el.Value.(*cached)
	if !c.clock.Now().Before(e.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, resultExpired
	}
	c.order.MoveToFront(el)
	if e.notFound {
		return e, resultNegativeHit
	}
	return e, resultHit
}

func (c *CachedGeocoder) store(e cached) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[e.key]; ok {
		*el.Value.(*cached) = e
		c.order.MoveToFront(el)
		return
	}
	c.entries[e.key] = c.order.PushFront(&e)
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cached).key)
	}
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
