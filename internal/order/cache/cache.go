package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"go.uber.org/zap"
)

// DefaultTTL bounds how stale a painted-from-cache order list may be.
const DefaultTTL = 84 * time.Hour

const keyOrders = "orders"

var ErrCorruptEntry = errors.New("corrupt_cache_entry")

type Config struct {
	TTL    time.Duration
	Prefix string
}

func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, Prefix: "orderfeed"}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = "orderfeed"
	}
	return c
}

// Entry is the last aggregate persisted for an owner.
type Entry struct {
	Orders     []domain.OrderRecord `json:"orders"`
	CapturedAt time.Time            `json:"captured_at"`
}

// Facade persists the last-known order list per owner. It is an
// optimization only: every failure is logged and swallowed.
type Facade struct {
	kv    KV
	cfg   Config
	clock clock.Clock
	log   *zap.Logger
	obs   Observer
	ttl   func() time.Duration
}

// Observer receives cache outcomes, mainly for metrics.
type Observer interface {
	CacheLoad(result string)
	CacheStoreFailed()
}

const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultStale = "stale"
	ResultError = "error"
)

func New(kv KV, cfg Config, clk clock.Clock, log *zap.Logger) *Facade {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Facade{
		kv:    kv,
		cfg:   cfg.withDefaults(),
		clock: clk,
		log:   log.Named("order.cache"),
	}
}

// WithObserver attaches an outcome observer and returns the facade.
func (f *Facade) WithObserver(obs Observer) *Facade {
	f.obs = obs
	return f
}

// WithTTLSource makes the facade read its TTL from fn on every call.
// Non-positive values fall back to the configured TTL.
func (f *Facade) WithTTLSource(fn func() time.Duration) *Facade {
	f.ttl = fn
	return f
}

func (f *Facade) TTL() time.Duration {
	if f.ttl != nil {
		if ttl := f.ttl(); ttl > 0 {
			return ttl
		}
	}
	return f.cfg.TTL
}

// Load returns the owner's entry when one exists and is no older than TTL.
func (f *Facade) Load(ctx context.Context, ownerID string) (Entry, bool) {
	if f == nil || f.kv == nil {
		return Entry{}, false
	}
	key := f.key(ownerID)
	if key == "" {
		return Entry{}, false
	}

	raw, ok, err := f.kv.Get(ctx, key)
	if err != nil {
		f.log.Warn("cache load failed", zap.String("owner_id", ownerID), zap.Error(err))
		f.observeLoad(ResultError)
		return Entry{}, false
	}
	if !ok {
		f.observeLoad(ResultMiss)
		return Entry{}, false
	}

	entry, err := decode(raw)
	if err != nil {
		f.log.Warn("discarding unreadable cache entry", zap.String("owner_id", ownerID), zap.Error(err))
		f.observeLoad(ResultError)
		return Entry{}, false
	}

	age := f.clock.Now().Sub(entry.CapturedAt)
	if age > f.TTL() {
		f.log.Debug("cache entry expired",
			zap.String("owner_id", ownerID),
			zap.Duration("age", age),
		)
		f.observeLoad(ResultStale)
		return Entry{}, false
	}

	f.observeLoad(ResultHit)
	return entry, true
}

// Store replaces the owner's entry with records captured now.
func (f *Facade) Store(ctx context.Context, ownerID string, records []domain.OrderRecord) {
	if f == nil || f.kv == nil {
		return
	}
	key := f.key(ownerID)
	if key == "" {
		return
	}

	raw, err := encode(Entry{Orders: records, CapturedAt: f.clock.Now()})
	if err != nil {
		f.log.Warn("cache encode failed", zap.String("owner_id", ownerID), zap.Error(err))
		f.observeStoreFailed()
		return
	}
	if err := f.kv.Set(ctx, key, raw, f.TTL()); err != nil {
		f.log.Warn("cache store failed", zap.String("owner_id", ownerID), zap.Error(err))
		f.observeStoreFailed()
	}
}

func (f *Facade) Invalidate(ctx context.Context, ownerID string) {
	if f == nil || f.kv == nil {
		return
	}
	key := f.key(ownerID)
	if key == "" {
		return
	}
	if err := f.kv.Delete(ctx, key); err != nil {
		f.log.Warn("cache invalidate failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

func (f *Facade) key(ownerID string) string {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ""
	}
	return cacheKey(f.cfg.Prefix, keyOrders, ownerID)
}

func (f *Facade) observeLoad(result string) {
	if f.obs != nil {
		f.obs.CacheLoad(result)
	}
}

func (f *Facade) observeStoreFailed() {
	if f.obs != nil {
		f.obs.CacheStoreFailed()
	}
}

func encode(entry Entry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decode(data []byte) (Entry, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return entry, nil
}

// cacheKey joins the parts with "|". Owner ids are case sensitive; only the
// fixed parts are lower-cased.
func cacheKey(prefix, kind, ownerID string) string {
	values := make([]string, 0, 3)
	for _, part := range []string{prefix, kind} {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			values = append(values, part)
		}
	}
	values = append(values, strings.TrimSpace(ownerID))
	return strings.Join(values, "|")
}
