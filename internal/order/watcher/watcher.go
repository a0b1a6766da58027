// Package watcher runs one live query per identifier batch and hands every
// complete delivery to the aggregate merger.
package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/smallbiznis/orderfeed/internal/order/aggregate"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/partition"
	"github.com/smallbiznis/orderfeed/internal/order/timestamp"
	"go.uber.org/zap"
)

var ErrAlreadyStarted = errors.New("watcher_already_started")

// Sink receives the full record set of one batch.
type Sink interface {
	ReplacePartition(key string, records []domain.OrderRecord) aggregate.Snapshot
}

type Observer interface {
	ChunkUpdate(records int)
	ChunkError()
}

type ChunkWatcher struct {
	batch partition.Batch
	store domain.DocumentStore
	sink  Sink
	norm  *timestamp.Normalizer
	log   *zap.Logger
	obs   Observer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	reported     chan struct{}
	reportedOnce sync.Once
}

func New(batch partition.Batch, store domain.DocumentStore, sink Sink, log *zap.Logger) *ChunkWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChunkWatcher{
		batch: partition.Batch{Key: batch.Key, IDs: append([]string(nil), batch.IDs...)},
		store: store,
		sink:  sink,
		log:   log.Named("order.watcher").With(zap.String("batch", batch.Key), zap.Int("ids", len(batch.IDs))),

		reported: make(chan struct{}),
	}
}

func (w *ChunkWatcher) WithObserver(obs Observer) *ChunkWatcher {
	w.obs = obs
	return w
}

func (w *ChunkWatcher) WithNormalizer(norm *timestamp.Normalizer) *ChunkWatcher {
	w.norm = norm
	return w
}

func (w *ChunkWatcher) Key() string { return w.batch.Key }

// Reported is closed once the first delivery has reached the sink, or when
// the watcher exits without ever delivering.
func (w *ChunkWatcher) Reported() <-chan struct{} { return w.reported }

func (w *ChunkWatcher) markReported() {
	w.reportedOnce.Do(func() { close(w.reported) })
}

// Start opens the batch subscription. Deliveries are processed on a
// dedicated goroutine until Stop or ctx cancellation.
func (w *ChunkWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := w.store.WatchOrders(ctx, w.batch.IDs)
	if err != nil {
		cancel()
		return err
	}

	w.started = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, sub, w.done)
	return nil
}

func (w *ChunkWatcher) run(ctx context.Context, sub domain.Subscription[domain.OrdersSnapshot], done chan struct{}) {
	defer close(done)
	defer w.markReported()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			if snap.Err != nil {
				// Keep the last delivered content in place.
				w.log.Warn("batch subscription error", zap.Error(snap.Err))
				if w.obs != nil {
					w.obs.ChunkError()
				}
				continue
			}
			records := ToRecords(snap.Documents, w.norm)
			if ctx.Err() != nil {
				return
			}
			w.sink.ReplacePartition(w.batch.Key, records)
			w.markReported()
			if w.obs != nil {
				w.obs.ChunkUpdate(len(records))
			}
			w.log.Debug("batch delivered", zap.Int("records", len(records)))
		}
	}
}

// Stop cancels the subscription and returns once the delivery goroutine
// has exited. No sink call happens after Stop returns.
func (w *ChunkWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
