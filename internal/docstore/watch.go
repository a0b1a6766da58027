package docstore

import (
	"context"
	"sync"
)

// watchSub re-runs load on every change signal and delivers the result.
// The channel holds one value; a pending result is replaced by a newer one,
// which is safe because every result is complete.
type watchSub[T any] struct {
	ch     chan T
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startWatch[T any](parent context.Context, listener *Listener, load func(context.Context) T) *watchSub[T] {
	ctx, cancel := context.WithCancel(parent)
	w := &watchSub[T]{
		ch:     make(chan T, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer close(w.ch)
		defer listener.Close()

		for {
			result := load(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case <-w.ch:
			default:
			}
			w.ch <- result

			select {
			case <-ctx.Done():
				return
			case <-listener.C():
			}
		}
	}()
	return w
}

func (w *watchSub[T]) Updates() <-chan T {
	return w.ch
}

// Close stops the watch and returns once no further value can be sent.
func (w *watchSub[T]) Close() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}
