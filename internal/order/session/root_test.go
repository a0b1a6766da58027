package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/internal/order/cache"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const waitFor = 3 * time.Second
const tick = 5 * time.Millisecond

func setupDocstore(t *testing.T) *docstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(docstore.Models()...))

	return docstore.New(docstore.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.System(),
		Repo:  docstore.NewRepository(),
		Hub:   docstore.NewHub(),
	})
}

func seedOrders(t *testing.T, store *docstore.Store, owner string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("ord-%02d", i)
		ids = append(ids, id)
		require.NoError(t, store.PutOrder(ctx, owner, domain.OrderDocument{
			ID: id,
			Fields: map[string]any{
				"item":   fmt.Sprintf("Pack %d", i),
				"status": "success",
				"cost":   float64(1000 + i),
				"date":   fmt.Sprintf("%02d-01-2024", i+1),
				"time":   "10:00:00 AM",
			},
		}))
	}
	return ids
}

func newCache(clk clock.Clock) *cache.Facade {
	return cache.New(cache.NewMemoryKV(clk), cache.DefaultConfig(), clk, zap.NewNop())
}

func TestRootWatcherAggregatesAllBatches(t *testing.T) {
	store := setupDocstore(t)
	ids := seedOrders(t, store, "u1", 25)
	require.NoError(t, store.SaveProfile(context.Background(), domain.Profile{OwnerID: "u1", OrderIDs: ids}))

	obs := &recordingObserver{}
	root := NewRootWatcher(Options{Store: store, Cache: newCache(clock.System()), Log: zap.NewNop(), Observer: obs})
	require.NoError(t, root.Start(context.Background(), "u1"))
	defer root.Stop()

	require.Eventually(t, func() bool { return len(root.Merger().Snapshot().Orders) == 25 }, waitFor, tick)
	snap := root.Merger().Snapshot()
	assert.True(t, snap.Live)
	assert.Equal(t, StateLive, root.State())
	assert.Equal(t, 3, snap.Partitions)
	assert.Equal(t, "ord-24", snap.Orders[0].ID)
	assert.Equal(t, "ord-00", snap.Orders[24].ID)
	for i := 1; i < len(snap.Orders); i++ {
		assert.False(t, snap.Orders[i].OccurredAt.After(snap.Orders[i-1].OccurredAt))
	}
	assert.Equal(t, 3, obs.partitions())
}

func TestRootWatcherFollowsListChanges(t *testing.T) {
	store := setupDocstore(t)
	ctx := context.Background()
	ids := seedOrders(t, store, "u1", 25)
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: ids}))

	root := NewRootWatcher(Options{Store: store, Cache: newCache(clock.System()), Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()
	require.Eventually(t, func() bool { return len(root.Merger().Snapshot().Orders) == 25 }, waitFor, tick)

	// Keep the first batch intact, drop the rest.
	kept := ids[:12]
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: kept}))

	want := partition.Batches(kept, partition.DefaultSize)
	wantKeys := []string{want[0].Key, want[1].Key}
	require.Eventually(t, func() bool {
		snap := root.Merger().Snapshot()
		return len(snap.Orders) == 12 && slices.Equal(slices.Sorted(slices.Values(wantKeys)), root.Merger().Keys())
	}, waitFor, tick)

	for _, rec := range root.Merger().Snapshot().Orders {
		assert.Contains(t, kept, rec.ID)
	}
}

func TestRootWatcherEmptyListClearsAndInvalidates(t *testing.T) {
	store := setupDocstore(t)
	ctx := context.Background()
	clk := clock.System()
	facade := newCache(clk)
	ids := seedOrders(t, store, "u1", 3)
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: ids}))

	root := NewRootWatcher(Options{Store: store, Cache: facade, Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	require.Eventually(t, func() bool {
		entry, ok := facade.Load(ctx, "u1")
		return ok && len(entry.Orders) == 3
	}, waitFor, tick)

	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1"}))
	require.Eventually(t, func() bool {
		snap := root.Merger().Snapshot()
		return snap.Ready && snap.Live && len(snap.Orders) == 0 && snap.Partitions == 0
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		_, ok := facade.Load(ctx, "u1")
		return !ok
	}, waitFor, tick)
}

func TestRootWatcherPrependKeepsOrdersVisible(t *testing.T) {
	store := setupDocstore(t)
	ctx := context.Background()
	clk := clock.System()
	kv := &countingKV{KV: cache.NewMemoryKV(clk)}
	facade := cache.New(kv, cache.DefaultConfig(), clk, zap.NewNop())
	ids := seedOrders(t, store, "u1", 5)
	require.NoError(t, store.PutOrder(ctx, "u1", domain.OrderDocument{
		ID:     "ord-new",
		Fields: map[string]any{"item": "Pack new", "status": "success", "date": "01-02-2024"},
	}))
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: ids}))

	root := NewRootWatcher(Options{Store: store, Cache: facade, Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()
	require.Eventually(t, func() bool {
		entry, ok := facade.Load(ctx, "u1")
		return ok && len(entry.Orders) == 5
	}, waitFor, tick)

	sub := root.Merger().Subscribe()
	var emptyLive int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range sub.Updates() {
			if snap.Live && len(snap.Orders) == 0 {
				emptyLive++
			}
		}
	}()

	prepended := append([]string{"ord-new"}, ids...)
	require.NotEqual(t, partition.Batches(ids, partition.DefaultSize)[0].Key,
		partition.Batches(prepended, partition.DefaultSize)[0].Key)
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: prepended}))

	require.Eventually(t, func() bool {
		snap := root.Merger().Snapshot()
		return len(snap.Orders) == 6 && snap.Partitions == 1
	}, waitFor, tick)
	sub.Close()
	<-done

	assert.Zero(t, emptyLive)
	assert.Zero(t, kv.deletes())
	require.Eventually(t, func() bool {
		entry, ok := facade.Load(ctx, "u1")
		return ok && len(entry.Orders) == 6
	}, waitFor, tick)
}

func TestRootWatcherReorderWaitsForReplacementBatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	root := NewRootWatcher(Options{Store: store, Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	docs := []domain.OrderDocument{
		{ID: "a", Fields: map[string]any{"date": "01-05-2024"}},
		{ID: "b", Fields: map[string]any{"date": "02-05-2024"}},
	}
	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"a", "b"}}})
	require.Eventually(t, func() bool { return store.orderSub("a") != nil }, waitFor, tick)
	old := store.orderSub("a")
	old.push(domain.OrdersSnapshot{Documents: docs})
	require.Eventually(t, func() bool { return len(root.Merger().Snapshot().Orders) == 2 }, waitFor, tick)

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"b", "a"}}})
	require.Eventually(t, func() bool { return store.orderSub("b") != nil }, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, old.isClosed())
	assert.Len(t, root.Merger().Snapshot().Orders, 2)

	store.orderSub("b").push(domain.OrdersSnapshot{Documents: docs})
	require.Eventually(t, old.isClosed, waitFor, tick)
	snap := root.Merger().Snapshot()
	assert.Len(t, snap.Orders, 2)
	assert.Equal(t, 1, snap.Partitions)
}

func TestRootWatcherHandoverTimeoutPurgesOldBatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	root := NewRootWatcher(Options{Store: store, Log: zap.NewNop(), HandoverTimeout: 30 * time.Millisecond})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"a"}}})
	require.Eventually(t, func() bool { return store.orderSub("a") != nil }, waitFor, tick)
	old := store.orderSub("a")
	old.push(domain.OrdersSnapshot{Documents: []domain.OrderDocument{{ID: "a"}}})
	require.Eventually(t, func() bool { return len(root.Merger().Snapshot().Orders) == 1 }, waitFor, tick)

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"c", "a"}}})
	require.Eventually(t, old.isClosed, waitFor, tick)
	assert.NotNil(t, store.orderSub("c"))
}

func TestRootWatcherSkipsCacheWriteWhilePending(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2024, 5, 13, 12, 0, 0, 0, time.UTC))
	facade := newCache(clk)
	facade.Store(ctx, "u1", []domain.OrderRecord{{ID: "a", ItemLabel: "cached"}, {ID: "b", ItemLabel: "cached"}})
	paintedAt := clk.Now()
	clk.Advance(time.Minute)

	store := newFakeStore()
	root := NewRootWatcher(Options{
		Store:     store,
		Cache:     facade,
		BatchSize: func() int { return 1 },
		Log:       zap.NewNop(),
	})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"a", "b"}}})
	require.Eventually(t, func() bool { return store.orderSub("a") != nil && store.orderSub("b") != nil }, waitFor, tick)

	store.orderSub("a").push(domain.OrdersSnapshot{Documents: []domain.OrderDocument{{ID: "a", Fields: map[string]any{"item": "live"}}}})
	require.Eventually(t, func() bool {
		snap := root.Merger().Snapshot()
		return snap.Live && snap.Pending == 1
	}, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	entry, ok := facade.Load(ctx, "u1")
	require.True(t, ok)
	assert.True(t, paintedAt.Equal(entry.CapturedAt))

	store.orderSub("b").push(domain.OrdersSnapshot{Documents: []domain.OrderDocument{{ID: "b", Fields: map[string]any{"item": "live"}}}})
	require.Eventually(t, func() bool {
		entry, ok := facade.Load(ctx, "u1")
		return ok && entry.CapturedAt.Equal(clk.Now()) && len(entry.Orders) == 2
	}, waitFor, tick)
	for _, rec := range root.Merger().Snapshot().Orders {
		assert.Equal(t, "live", rec.ItemLabel)
	}
}

func TestRootWatcherMissingProfileIsEmpty(t *testing.T) {
	store := setupDocstore(t)
	root := NewRootWatcher(Options{Store: store, Log: zap.NewNop()})
	require.NoError(t, root.Start(context.Background(), "nobody"))
	defer root.Stop()

	require.Eventually(t, func() bool {
		snap := root.Merger().Snapshot()
		return snap.Ready && len(snap.Orders) == 0
	}, waitFor, tick)
	assert.Equal(t, StateLive, root.State())
}

func TestRootWatcherStopReturnsToIdle(t *testing.T) {
	store := setupDocstore(t)
	ctx := context.Background()
	ids := seedOrders(t, store, "u1", 12)
	require.NoError(t, store.SaveProfile(ctx, domain.Profile{OwnerID: "u1", OrderIDs: ids}))

	obs := &recordingObserver{}
	root := NewRootWatcher(Options{Store: store, Log: zap.NewNop(), Observer: obs})
	assert.ErrorIs(t, root.Start(ctx, " "), domain.ErrInvalidOwner)
	require.NoError(t, root.Start(ctx, "u1"))
	assert.ErrorIs(t, root.Start(ctx, "u1"), ErrAlreadyRunning)
	require.Eventually(t, func() bool { return len(root.Merger().Snapshot().Orders) == 12 }, waitFor, tick)

	root.Stop()
	assert.Equal(t, StateIdle, root.State())
	assert.Empty(t, root.Owner())
	snap := root.Merger().Snapshot()
	assert.False(t, snap.Ready)
	assert.Empty(t, snap.Orders)
	assert.Equal(t, 0, obs.partitions())

	require.NoError(t, root.Start(ctx, "u1"))
	require.Eventually(t, func() bool { return len(root.Merger().Snapshot().Orders) == 12 }, waitFor, tick)
	root.Stop()
}

// Scenario: the instant-paint path. The fake store lets the test decide
// when each batch reports.
func TestRootWatcherCachePaintsUntilLive(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2024, 5, 13, 12, 0, 0, 0, time.UTC))
	facade := newCache(clk)
	cached := []domain.OrderRecord{
		{ID: "a", ItemLabel: "cached", OccurredAt: clk.Now()},
		{ID: "gone", ItemLabel: "cached", OccurredAt: clk.Now().Add(-time.Hour)},
	}
	facade.Store(ctx, "u1", cached)

	store := newFakeStore()
	root := NewRootWatcher(Options{Store: store, Cache: facade, Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"a", "b"}}})
	require.Eventually(t, func() bool { return root.Merger().Snapshot().Ready }, waitFor, tick)
	snap := root.Merger().Snapshot()
	assert.False(t, snap.Live)
	assert.Len(t, snap.Orders, 2)

	require.Eventually(t, func() bool { return store.orderSub("a") != nil }, waitFor, tick)
	store.orderSub("a").push(domain.OrdersSnapshot{Documents: []domain.OrderDocument{
		{ID: "a", Fields: map[string]any{"item": "live", "date": "13-05-2024"}},
		{ID: "b", Fields: map[string]any{"item": "new", "date": "12-05-2024"}},
	}})

	require.Eventually(t, func() bool {
		snap := root.Merger().Snapshot()
		return snap.Live && len(snap.Orders) == 2
	}, waitFor, tick)
	for _, rec := range root.Merger().Snapshot().Orders {
		assert.NotEqual(t, "cached", rec.ItemLabel)
	}
}

func TestRootWatcherStaleCacheShowsLoading(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2024, 5, 13, 12, 0, 0, 0, time.UTC))
	facade := newCache(clk)
	facade.Store(ctx, "u1", []domain.OrderRecord{{ID: "a"}})
	clk.Advance(90 * time.Hour)

	store := newFakeStore()
	root := NewRootWatcher(Options{Store: store, Cache: facade, Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"a"}}})
	require.Eventually(t, func() bool { return root.State() == StateLive }, waitFor, tick)

	snap := root.Merger().Snapshot()
	assert.False(t, snap.Ready)
	assert.Empty(t, snap.Orders)
	assert.NotNil(t, store.orderSub("a"))
}

func TestRootWatcherKeepsStateOnProfileError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	root := NewRootWatcher(Options{Store: store, Log: zap.NewNop()})
	require.NoError(t, root.Start(ctx, "u1"))
	defer root.Stop()

	store.pushProfile(domain.ProfileSnapshot{Err: fmt.Errorf("unavailable")})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateBootstrapping, root.State())

	store.pushProfile(domain.ProfileSnapshot{Exists: true, Profile: domain.Profile{OwnerID: "u1", OrderIDs: []string{"a"}}})
	require.Eventually(t, func() bool { return root.State() == StateLive }, waitFor, tick)

	store.pushProfile(domain.ProfileSnapshot{Err: fmt.Errorf("unavailable")})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateLive, root.State())
	assert.NotNil(t, store.orderSub("a"))
	assert.False(t, store.orderSub("a").isClosed())
}

type fakeSub[T any] struct {
	ch     chan T
	once   sync.Once
	closed chan struct{}
}

func newFakeSub[T any]() *fakeSub[T] {
	return &fakeSub[T]{ch: make(chan T, 8), closed: make(chan struct{})}
}

func (s *fakeSub[T]) Updates() <-chan T { return s.ch }

func (s *fakeSub[T]) Close() { s.once.Do(func() { close(s.closed) }) }

func (s *fakeSub[T]) push(v T) { s.ch <- v }

func (s *fakeSub[T]) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeStore struct {
	mu      sync.Mutex
	profile *fakeSub[domain.ProfileSnapshot]
	orders  map[string]*fakeSub[domain.OrdersSnapshot]
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profile: newFakeSub[domain.ProfileSnapshot](),
		orders:  make(map[string]*fakeSub[domain.OrdersSnapshot]),
	}
}

func (f *fakeStore) GetProfile(context.Context, string) (domain.Profile, error) {
	return domain.Profile{}, domain.ErrProfileNotFound
}

func (f *fakeStore) WatchProfile(context.Context, string) (domain.Subscription[domain.ProfileSnapshot], error) {
	return f.profile, nil
}

func (f *fakeStore) WatchOrders(_ context.Context, ids []string) (domain.Subscription[domain.OrdersSnapshot], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := newFakeSub[domain.OrdersSnapshot]()
	f.orders[ids[0]] = sub
	return sub, nil
}

func (f *fakeStore) pushProfile(snap domain.ProfileSnapshot) { f.profile.push(snap) }

func (f *fakeStore) orderSub(first string) *fakeSub[domain.OrdersSnapshot] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[first]
}

type countingKV struct {
	cache.KV
	mu      sync.Mutex
	deleted int
}

func (k *countingKV) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	k.deleted++
	k.mu.Unlock()
	return k.KV.Delete(ctx, key)
}

func (k *countingKV) deletes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.deleted
}

type recordingObserver struct {
	mu          sync.Mutex
	active      int
	transitions []string
}

func (o *recordingObserver) ChunkUpdate(int) {}

func (o *recordingObserver) ChunkError() {}

func (o *recordingObserver) AddActivePartitions(delta int) {
	o.mu.Lock()
	o.active += delta
	o.mu.Unlock()
}

func (o *recordingObserver) RootTransition(from, to string) {
	o.mu.Lock()
	o.transitions = append(o.transitions, from+">"+to)
	o.mu.Unlock()
}

func (o *recordingObserver) partitions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}
