// Package service is the order history surface handed to the UI layer:
// the filtered view of the live aggregate plus the search and status
// setters.
package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/orderfeed/internal/order/aggregate"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/view"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseEmpty     Phase = "empty"
	PhaseNoMatches Phase = "no_matches"
	PhaseReady     Phase = "ready"
)

// View is what the UI renders.
type View struct {
	Version       uint64               `json:"version"`
	Orders        []domain.OrderRecord `json:"orders"`
	Search        string               `json:"search"`
	Status        string               `json:"status"`
	RawCount      int                  `json:"raw_count"`
	FilteredCount int                  `json:"filtered_count"`
	Phase         Phase                `json:"phase"`
	Live          bool                 `json:"live"`
}

func (v View) clone() View {
	v.Orders = slices.Clone(v.Orders)
	return v
}

type Service struct {
	merger   *aggregate.Merger
	log      *zap.Logger
	debounce *view.Debouncer
	delay    func() time.Duration

	mu      sync.RWMutex
	query   view.Query
	typed   string
	snap    aggregate.Snapshot
	current View
	recomp  uint64
	subs    map[uint64]chan View
	nextID  uint64

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the facade over merger. delay is consulted on every search
// change; nil means view.DefaultDebounce.
func New(merger *aggregate.Merger, delay func() time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if delay == nil {
		delay = func() time.Duration { return view.DefaultDebounce }
	}
	s := &Service{
		merger: merger,
		log:    log.Named("order.service"),
		delay:  delay,
		query:  view.Query{Status: domain.StatusAll},
		subs:   make(map[uint64]chan View),
	}
	s.debounce = view.NewDebouncer(delay(), s.applySearch)
	s.snap = merger.Snapshot()
	s.recomputeLocked()
	return s
}

// Start follows the aggregate until Stop or ctx cancellation.
func (s *Service) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	sub := s.merger.Subscribe()
	go func(done chan struct{}) {
		defer close(done)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-sub.Updates():
				if !ok {
					return
				}
				s.mu.Lock()
				s.snap = snap
				s.recomputeLocked()
				s.mu.Unlock()
			}
		}
	}(s.done)
}

func (s *Service) Stop() {
	s.lifeMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// CurrentOrders returns the filtered, ordered records.
func (s *Service) CurrentOrders() []domain.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.current.Orders)
}

// SetSearchText records the typed text and applies it after the debounce
// delay.
func (s *Service) SetSearchText(text string) {
	s.mu.Lock()
	s.typed = text
	s.mu.Unlock()
	s.debounce.SetDelay(s.delay())
	s.debounce.Push(text)
}

// FlushSearch applies pending search text without waiting.
func (s *Service) FlushSearch() {
	s.debounce.Flush()
}

func (s *Service) SetStatusFilter(kind string) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = domain.StatusAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.query.Status == kind {
		return
	}
	s.query.Status = kind
	s.recomputeLocked()
}

func (s *Service) RawCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RawCount
}

func (s *Service) FilteredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.FilteredCount
}

// View returns the full render state. Search is the typed text, which may
// run ahead of the applied filter while the debounce is pending.
func (s *Service) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.current.clone()
	v.Search = s.typed
	return v
}

func (s *Service) applySearch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.query.Search == text {
		return
	}
	s.query.Search = text
	s.recomputeLocked()
}

func (s *Service) recomputeLocked() {
	filtered := view.Apply(s.snap.Orders, s.query)
	raw := len(s.snap.Orders)

	phase := PhaseReady
	switch {
	case !s.snap.Ready:
		phase = PhaseLoading
	case raw == 0:
		phase = PhaseEmpty
	case len(filtered) == 0:
		phase = PhaseNoMatches
	}

	s.recomp++
	s.current = View{
		Version:       s.recomp,
		Orders:        filtered,
		Search:        s.typed,
		Status:        s.query.Status,
		RawCount:      raw,
		FilteredCount: len(filtered),
		Phase:         phase,
		Live:          s.snap.Live,
	}

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.current.clone():
		default:
		}
	}
}
