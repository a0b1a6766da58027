package session

import (
	"context"
	"strings"
	"sync"
)

// Identity is a switchable identity provider. Sign-in and sign-out arrive
// from the HTTP session endpoints or from configuration.
type Identity struct {
	mu      sync.Mutex
	current string
	subs    map[uint64]chan string
	nextID  uint64
}

func NewIdentity(initial string) *Identity {
	return &Identity{
		current: strings.TrimSpace(initial),
		subs:    make(map[uint64]chan string),
	}
}

func (i *Identity) Current() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

func (i *Identity) SignIn(ownerID string) {
	i.set(strings.TrimSpace(ownerID))
}

func (i *Identity) SignOut() {
	i.set("")
}

func (i *Identity) set(owner string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current == owner {
		return
	}
	i.current = owner
	for _, ch := range i.subs {
		select {
		case <-ch:
		default:
		}
		ch <- owner
	}
}

// Owners delivers the current owner immediately and every change after
// it. Only the latest value is kept for a slow reader. The channel closes
// when ctx ends.
func (i *Identity) Owners(ctx context.Context) <-chan string {
	i.mu.Lock()
	id := i.nextID
	i.nextID++
	ch := make(chan string, 1)
	ch <- i.current
	i.subs[id] = ch
	i.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() {
			i.mu.Lock()
			delete(i.subs, id)
			i.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case owner := <-ch:
				select {
				case out <- owner:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
