package service

import "sync"

// Subscription receives the latest view after every recompute.
type Subscription struct {
	svc  *Service
	id   uint64
	ch   chan View
	once sync.Once
}

// Subscribe registers a listener primed with the current view.
func (s *Service) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan View, 1)
	v := s.current.clone()
	v.Search = s.typed
	ch <- v
	s.subs[id] = ch
	return &Subscription{svc: s, id: id, ch: ch}
}

func (sub *Subscription) Updates() <-chan View {
	return sub.ch
}

func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.svc.mu.Lock()
		delete(sub.svc.subs, sub.id)
		sub.svc.mu.Unlock()
		close(sub.ch)
	})
}
