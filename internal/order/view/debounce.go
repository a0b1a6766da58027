package view

import (
	"sync"
	"time"
)

// DefaultDebounce bounds how often search text reaches Apply.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer delivers the last value once no newer value arrived for delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	apply   func(string)
	timer   *time.Timer
	gen     uint64
	pending *string
	stopped bool
}

func NewDebouncer(delay time.Duration, apply func(string)) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{delay: delay, apply: apply}
}

// SetDelay changes the delay for values pushed afterwards.
func (d *Debouncer) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.delay == 0 {
		d.mu.Unlock()
		d.apply(value)
		return
	}
	d.pending = &value
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()
}

// fire applies the pending value unless a newer push superseded its timer.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.pending = nil
	stopped := d.stopped
	d.mu.Unlock()
	if value == nil || stopped {
		return
	}
	d.apply(*value)
}

// Flush applies a pending value immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	value := d.pending
	d.pending = nil
	d.mu.Unlock()
	if value != nil {
		d.apply(*value)
	}
}

// Stop drops any pending value; later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.gen++
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
}
