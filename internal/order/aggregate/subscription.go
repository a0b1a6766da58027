package aggregate

import "sync"

// Subscription receives the latest snapshot after every publish. The channel
// holds one value; an unread snapshot is replaced by the next one.
type Subscription struct {
	merger *Merger
	id     uint64
	ch     chan Snapshot
	once   sync.Once
}

// Subscribe registers a new listener primed with the current snapshot.
func (m *Merger) Subscribe() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Snapshot, 1)
	if m.version > 0 {
		ch <- m.current.clone()
	}
	m.subs[id] = ch
	return &Subscription{merger: m, id: id, ch: ch}
}

func (s *Subscription) Updates() <-chan Snapshot {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.merger == nil {
		return
	}
	s.once.Do(func() {
		s.merger.mu.Lock()
		delete(s.merger.subs, s.id)
		s.merger.mu.Unlock()
		close(s.ch)
	})
}
