package docstore

import (
	"strings"
	"sync"
)

const (
	topicProfile = "profile:"
	topicOrder   = "order:"
)

func ProfileTopic(ownerID string) string { return topicProfile + strings.TrimSpace(ownerID) }

func OrderTopic(id string) string { return topicOrder + strings.TrimSpace(id) }

// Hub fans change signals out to the watches interested in a topic. Signals
// carry no payload: a watch re-reads its documents when poked, so a dropped
// duplicate signal loses nothing.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]chan struct{}
	nextID uint64
}

type Listener struct {
	hub    *Hub
	id     uint64
	topics []string
	ch     chan struct{}
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[uint64]chan struct{})}
}

// Notify pokes every listener of topic. It never blocks.
func (h *Hub) Notify(topic string) {
	if h == nil || topic == "" {
		return
	}
	h.mu.RLock()
	subs := make([]chan struct{}, 0, len(h.topics[topic]))
	for _, ch := range h.topics[topic] {
		subs = append(subs, ch)
	}
	h.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listen registers one listener for all topics.
func (h *Hub) Listen(topics ...string) *Listener {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	for _, topic := range topics {
		subs := h.topics[topic]
		if subs == nil {
			subs = make(map[uint64]chan struct{})
			h.topics[topic] = subs
		}
		subs[id] = ch
	}
	return &Listener{
		hub:    h,
		id:     id,
		topics: append([]string(nil), topics...),
		ch:     ch,
	}
}

// Topics reports how many topics currently have listeners.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (l *Listener) C() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.ch
}

func (l *Listener) Close() {
	if l == nil || l.hub == nil {
		return
	}
	l.once.Do(func() {
		h := l.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, topic := range l.topics {
			subs := h.topics[topic]
			delete(subs, l.id)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	})
}
