// Package aggregate merges the per-batch order lists delivered by the chunk
// watchers into one deduplicated, sorted view.
//
// Each batch is replaced wholesale on every delivery and the merged list is
// recomputed from scratch, so a record that moves between batches or vanishes
// from the store can never linger. All mutation goes through one mutex;
// readers only ever see copies.
package aggregate

import (
	"slices"
	"sync"

	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"go.uber.org/zap"
)

// Snapshot is an immutable view of the aggregate.
type Snapshot struct {
	Version    uint64
	Orders     []domain.OrderRecord
	Ready      bool // some data (cached or live) has been published
	Live       bool // at least one live partition has reported
	Partitions int
	// Pending counts expected partitions that have not reported yet. Cached
	// records may still be part of Orders while it is non-zero.
	Pending int
	// Cleared marks the view published for an empty identifier list.
	Cleared bool
}

func (s Snapshot) clone() Snapshot {
	s.Orders = slices.Clone(s.Orders)
	return s
}

type partState struct {
	records []domain.OrderRecord
	seq     uint64
}

// Observer is told about every publish.
type Observer interface {
	MergePublish()
}

type Merger struct {
	mu  sync.Mutex
	log *zap.Logger
	obs Observer

	parts     map[string]*partState
	bootstrap []domain.OrderRecord
	pending   map[string]struct{}
	firstSeen map[string]uint64

	seq     uint64
	version uint64
	ready   bool
	live    bool
	cleared bool
	current Snapshot

	subs   map[uint64]chan Snapshot
	nextID uint64
}

func New(log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{
		log:       log.Named("order.aggregate"),
		parts:     make(map[string]*partState),
		pending:   make(map[string]struct{}),
		firstSeen: make(map[string]uint64),
		subs:      make(map[uint64]chan Snapshot),
	}
}

func (m *Merger) WithObserver(obs Observer) *Merger {
	m.mu.Lock()
	m.obs = obs
	m.mu.Unlock()
	return m
}

// ReplacePartition drops everything the partition reported last time and
// installs records as its new membership.
func (m *Merger) ReplacePartition(key string, records []domain.OrderRecord) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.parts[key] = &partState{
		records: slices.Clone(records),
		seq:     m.seq,
	}
	m.live = true
	m.ready = true
	m.cleared = false
	if _, ok := m.pending[key]; ok {
		delete(m.pending, key)
		if len(m.pending) == 0 && m.bootstrap != nil {
			m.log.Debug("live partitions complete, dropping cached orders",
				zap.Int("cached", len(m.bootstrap)))
			m.bootstrap = nil
		}
	}
	return m.publishLocked()
}

// RemovePartition purges the records currently attributed to the partition.
// Records another partition also reported stay visible.
func (m *Merger) RemovePartition(key string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, known := m.parts[key]
	delete(m.parts, key)
	delete(m.pending, key)
	if len(m.pending) == 0 {
		m.bootstrap = nil
	}
	if !known {
		return m.current.clone()
	}
	return m.publishLocked()
}

// Bootstrap publishes cached records ahead of live data. Live records with
// the same id take precedence; the cached layer is dropped once every
// expected partition has reported.
func (m *Merger) Bootstrap(records []domain.OrderRecord) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live && len(m.pending) == 0 {
		return m.current.clone()
	}
	m.bootstrap = slices.Clone(records)
	m.cleared = false
	if len(records) > 0 {
		m.ready = true
	}
	return m.publishLocked()
}

// Expect registers the partitions that must report before cached records are
// discarded.
func (m *Merger) Expect(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if _, ok := m.parts[key]; ok {
			continue
		}
		m.pending[key] = struct{}{}
	}
}

// Clear empties the aggregate for an owner whose order list is empty. The
// result is a ready, live, empty view.
func (m *Merger) Clear() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked()
	m.ready = true
	m.live = true
	m.cleared = true
	return m.publishLocked()
}

// Reset returns the aggregate to its pre-session state.
func (m *Merger) Reset() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked()
	return m.publishLocked()
}

func (m *Merger) resetLocked() {
	m.parts = make(map[string]*partState)
	m.pending = make(map[string]struct{})
	m.firstSeen = make(map[string]uint64)
	m.bootstrap = nil
	m.ready = false
	m.live = false
	m.cleared = false
}

func (m *Merger) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.clone()
}

// Keys lists the partitions currently holding records.
func (m *Merger) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.parts))
	for key := range m.parts {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (m *Merger) publishLocked() Snapshot {
	m.version++
	m.current = Snapshot{
		Version:    m.version,
		Orders:     m.mergeLocked(),
		Ready:      m.ready,
		Live:       m.live,
		Partitions: len(m.parts),
		Pending:    len(m.pending),
		Cleared:    m.cleared,
	}
	if m.obs != nil {
		m.obs.MergePublish()
	}

	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- m.current.clone():
		default:
		}
	}
	return m.current.clone()
}

func (m *Merger) mergeLocked() []domain.OrderRecord {
	states := make([]*partState, 0, len(m.parts))
	for _, st := range m.parts {
		states = append(states, st)
	}
	// the most recent reporter of an id wins
	slices.SortFunc(states, func(a, b *partState) int {
		return cmpSeq(a.seq, b.seq)
	})

	byID := make(map[string]domain.OrderRecord)
	order := make([]string, 0, len(m.bootstrap))
	put := func(rec domain.OrderRecord) {
		if _, ok := byID[rec.ID]; !ok {
			order = append(order, rec.ID)
		}
		byID[rec.ID] = rec
	}
	for _, rec := range m.bootstrap {
		put(rec)
	}
	for _, st := range states {
		for _, rec := range st.records {
			put(rec)
		}
	}

	for id := range m.firstSeen {
		if _, ok := byID[id]; !ok {
			delete(m.firstSeen, id)
		}
	}

	out := make([]domain.OrderRecord, 0, len(order))
	for _, id := range order {
		if _, ok := m.firstSeen[id]; !ok {
			m.seq++
			m.firstSeen[id] = m.seq
		}
		if rec := byID[id]; !rec.IsTopUp {
			out = append(out, rec)
		}
	}

	slices.SortFunc(out, func(a, b domain.OrderRecord) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		return cmpSeq(m.firstSeen[a.ID], m.firstSeen[b.ID])
	})
	return out
}

func cmpSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
