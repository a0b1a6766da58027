// Package session follows one signed-in owner: it watches the owner's
// profile, keeps one chunk watcher per identifier batch and writes the
// merged view through to the cache.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/orderfeed/internal/observability/logger"
	"github.com/smallbiznis/orderfeed/internal/order/aggregate"
	"github.com/smallbiznis/orderfeed/internal/order/cache"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/partition"
	"github.com/smallbiznis/orderfeed/internal/order/timestamp"
	"github.com/smallbiznis/orderfeed/internal/order/watcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateIdle          State = "idle"
	StateBootstrapping State = "bootstrapping"
	StateLive          State = "live"
)

var ErrAlreadyRunning = errors.New("session_already_running")

const (
	cacheWriteTimeout = 5 * time.Second
	// DefaultHandoverTimeout bounds how long superseded batches stay up
	// while their replacements load.
	DefaultHandoverTimeout = 5 * time.Second
)

type Observer interface {
	watcher.Observer
	AddActivePartitions(delta int)
	RootTransition(from, to string)
}

type Options struct {
	Store      domain.DocumentStore
	Merger     *aggregate.Merger
	Cache      *cache.Facade
	Normalizer *timestamp.Normalizer
	// BatchSize is read on every profile change; nil means partition.DefaultSize.
	BatchSize func() int
	// HandoverTimeout defaults to DefaultHandoverTimeout.
	HandoverTimeout time.Duration
	Log             *zap.Logger
	Observer        Observer
}

type RootWatcher struct {
	store    domain.DocumentStore
	merger   *aggregate.Merger
	cache    *cache.Facade
	norm     *timestamp.Normalizer
	batch    func() int
	handover time.Duration
	log      *zap.Logger
	obs      Observer
	watchers map[string]*watcher.ChunkWatcher

	mu     sync.Mutex
	state  State
	owner  string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRootWatcher(opts Options) *RootWatcher {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	merger := opts.Merger
	if merger == nil {
		merger = aggregate.New(log)
	}
	batch := opts.BatchSize
	if batch == nil {
		batch = func() int { return partition.DefaultSize }
	}
	handover := opts.HandoverTimeout
	if handover <= 0 {
		handover = DefaultHandoverTimeout
	}
	return &RootWatcher{
		store:    opts.Store,
		merger:   merger,
		cache:    opts.Cache,
		norm:     opts.Normalizer,
		batch:    batch,
		handover: handover,
		log:      log.Named("order.session"),
		obs:      opts.Observer,
		watchers: make(map[string]*watcher.ChunkWatcher),
		state:    StateIdle,
	}
}

func (r *RootWatcher) Merger() *aggregate.Merger { return r.merger }

func (r *RootWatcher) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RootWatcher) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// Start begins following ownerID. The profile subscription is opened
// before Start returns; everything else happens on the session goroutine.
func (r *RootWatcher) Start(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := r.store.WatchProfile(ctx, ownerID)
	if err != nil {
		cancel()
		return err
	}

	r.merger.Reset()
	r.owner = ownerID
	r.cancel = cancel
	r.done = make(chan struct{})
	r.setStateLocked(StateBootstrapping)

	go r.run(ctx, ownerID, sub, r.done)
	return nil
}

// Stop tears down every watcher, resets the aggregate and returns to Idle.
// It returns once the session goroutine has exited.
func (r *RootWatcher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *RootWatcher) run(ctx context.Context, ownerID string, sub domain.Subscription[domain.ProfileSnapshot], done chan struct{}) {
	defer close(done)
	log := logger.WithOwner(r.log, ownerID)

	writer := r.merger.Subscribe()
	writerDone := make(chan struct{})
	go r.writeThrough(ctx, ownerID, writer, writerDone)

	defer func() {
		sub.Close()
		writer.Close()
		<-writerDone
		r.stopWatchers(r.runningKeys())
		r.merger.Reset()

		r.mu.Lock()
		if r.done == done {
			r.cancel()
			r.cancel = nil
			r.done = nil
			r.owner = ""
			r.setStateLocked(StateIdle)
		}
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			if snap.Err != nil {
				log.Warn("profile subscription error, keeping last state", zap.Error(snap.Err))
				continue
			}
			r.apply(ctx, log, ownerID, snap)
		}
	}
}

// apply reconciles the running watchers with the profile's identifier list.
func (r *RootWatcher) apply(ctx context.Context, log *zap.Logger, ownerID string, snap domain.ProfileSnapshot) {
	var ids []string
	if snap.Exists {
		ids = snap.Profile.OrderIDs
	}
	batches := partition.Batches(ids, r.batch())
	first := r.State() == StateBootstrapping

	if len(batches) == 0 {
		r.stopWatchers(r.runningKeys())
		r.merger.Clear()
		r.invalidate(ctx, ownerID)
		r.setState(StateLive)
		log.Debug("profile has no orders")
		return
	}

	if first {
		keys := make([]string, 0, len(batches))
		for _, b := range batches {
			keys = append(keys, b.Key)
		}
		r.merger.Expect(keys)
		if entry, ok := r.cache.Load(ctx, ownerID); ok {
			r.merger.Bootstrap(entry.Orders)
			log.Debug("painted from cache",
				zap.Int("orders", len(entry.Orders)),
				zap.Time("captured_at", entry.CapturedAt),
			)
		}
	}

	running := make(map[string]struct{}, len(r.watchers))
	for key := range r.watchers {
		running[key] = struct{}{}
	}
	start, stop := partition.Diff(running, batches)

	// Replacement batches report before the ones they supersede are purged,
	// so ids that only moved between batches stay visible throughout.
	started := r.startWatchers(ctx, log, start)
	if len(stop) > 0 {
		r.awaitFirstDelivery(ctx, log, started)
	}
	r.stopWatchers(stop)

	log.Debug("profile applied",
		zap.Int("ids", len(ids)),
		zap.Int("batches", len(batches)),
		zap.Int("started", len(start)),
		zap.Int("stopped", len(stop)),
	)
	r.setState(StateLive)
}

func (r *RootWatcher) startWatchers(ctx context.Context, log *zap.Logger, batches []partition.Batch) []*watcher.ChunkWatcher {
	started := make([]*watcher.ChunkWatcher, 0, len(batches))
	for _, b := range batches {
		w := watcher.New(b, r.store, r.merger, r.log).WithNormalizer(r.norm)
		if r.obs != nil {
			w.WithObserver(r.obs)
		}
		if err := w.Start(ctx); err != nil {
			log.Warn("batch watcher failed to start", zap.String("batch", b.Key), zap.Error(err))
			if r.obs != nil {
				r.obs.ChunkError()
			}
			// nothing will ever report for this key
			r.merger.RemovePartition(b.Key)
			continue
		}
		r.watchers[b.Key] = w
		started = append(started, w)
		if r.obs != nil {
			r.obs.AddActivePartitions(1)
		}
	}
	return started
}

// awaitFirstDelivery blocks until every watcher has handed its first batch
// to the merger, the handover timeout elapses or ctx ends.
func (r *RootWatcher) awaitFirstDelivery(ctx context.Context, log *zap.Logger, watchers []*watcher.ChunkWatcher) {
	if len(watchers) == 0 {
		return
	}
	timer := time.NewTimer(r.handover)
	defer timer.Stop()
	for _, w := range watchers {
		select {
		case <-w.Reported():
		case <-timer.C:
			log.Warn("replacement batches slow to report, purging superseded batches anyway",
				zap.Duration("timeout", r.handover))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *RootWatcher) runningKeys() []string {
	keys := make([]string, 0, len(r.watchers))
	for key := range r.watchers {
		keys = append(keys, key)
	}
	return keys
}

// stopWatchers stops the given batches in parallel, waits for every
// acknowledgement and only then purges their records.
func (r *RootWatcher) stopWatchers(keys []string) {
	if len(keys) == 0 {
		return
	}
	var g errgroup.Group
	for _, key := range keys {
		w, ok := r.watchers[key]
		if !ok {
			continue
		}
		g.Go(func() error {
			w.Stop()
			return nil
		})
	}
	_ = g.Wait()

	for _, key := range keys {
		if _, ok := r.watchers[key]; !ok {
			continue
		}
		delete(r.watchers, key)
		r.merger.RemovePartition(key)
		if r.obs != nil {
			r.obs.AddActivePartitions(-1)
		}
	}
}

// writeThrough stores live snapshots once no expected partition is pending,
// so cached rows are never re-stamped as fresh. A cleared view removes the
// entry instead; this orders the delete after any store already in flight.
func (r *RootWatcher) writeThrough(ctx context.Context, ownerID string, sub *aggregate.Subscription, done chan struct{}) {
	defer close(done)
	for snap := range sub.Updates() {
		switch {
		case snap.Cleared:
			r.invalidate(ctx, ownerID)
		case !snap.Live || snap.Pending > 0:
			continue
		default:
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
			r.cache.Store(wctx, ownerID, snap.Orders)
			cancel()
		}
	}
}

func (r *RootWatcher) invalidate(ctx context.Context, ownerID string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	r.cache.Invalidate(wctx, ownerID)
}

func (r *RootWatcher) setState(next State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStateLocked(next)
}

func (r *RootWatcher) setStateLocked(next State) {
	if r.state == next {
		return
	}
	r.log.Debug("state transition", zap.String("from", string(r.state)), zap.String("to", string(next)))
	if r.obs != nil {
		r.obs.RootTransition(string(r.state), string(next))
	}
	r.state = next
}
