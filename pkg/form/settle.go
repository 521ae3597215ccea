package form

import (
	"context"
	"sync"
)

// tracker counts background work and lets callers wait for it to drain. It
// satisfies the Tracker interfaces of the options and validation packages.
type tracker struct {
	mu      sync.Mutex
	active  int
	waiters []chan struct{}
}

func (t *tracker) Add(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active += delta
	if t.active < 0 {
		t.active = 0
	}
	if t.active == 0 {
		t.release()
	}
}

func (t *tracker) Done() {
	t.Add(-1)
}

func (t *tracker) release() {
	for _, ch := range t.waiters {
		close(ch)
	}
	t.waiters = nil
}

// Wait blocks until no work is active or ctx is done.
func (t *tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	if t.active == 0 {
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifier delivers events to subscribers on a dedicated goroutine, in the
// order they were emitted. Delivery never happens under the form lock.
type notifier struct {
	tracker *tracker

	mu     sync.Mutex
	subs   map[int]func(Event)
	next   int
	queue  []Event
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newNotifier(t *tracker) *notifier {
	n := &notifier{
		tracker: t,
		subs:    make(map[int]func(Event)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *notifier) subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) emit(evt Event) {
	n.mu.Lock()
	if n.closed || len(n.subs) == 0 {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, evt)
	n.tracker.Add(1)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) loop() {
	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			evt := n.queue[0]
			n.queue = n.queue[1:]
			subs := make([]func(Event), 0, len(n.subs))
			for i := 0; i < n.next; i++ {
				if fn, ok := n.subs[i]; ok {
					subs = append(subs, fn)
				}
			}
			n.mu.Unlock()

			for _, fn := range subs {
				fn(evt)
			}
			n.tracker.Done()
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for range n.queue {
		n.tracker.Done()
	}
	n.queue = nil
	close(n.done)
}
