package socket

import (
	"context"
	"sync"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
)

type observerEntry struct {
	id       uint64
	observer resocket.Observer
}

type observerSet struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []observerEntry
}

func (set *observerSet) subscribe(observer resocket.Observer) func() {
	set.mu.Lock()
	set.nextID++
	id := set.nextID
	set.entries = append(set.entries, observerEntry{id: id, observer: observer})
	set.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { set.unsubscribe(id) })
	}
}

func (set *observerSet) unsubscribe(id uint64) {
	set.mu.Lock()
	defer set.mu.Unlock()

	for i, e := range set.entries {
		if e.id == id {
			set.entries = append(set.entries[:i], set.entries[i+1:]...)
			return
		}
	}
}

func (set *observerSet) snapshot() []resocket.Observer {
	set.mu.RLock()
	defer set.mu.RUnlock()

	out := make([]resocket.Observer, len(set.entries))
	for i, e := range set.entries {
		out[i] = e.observer
	}
	return out
}

func (set *observerSet) len() int {
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.entries)
}

func (s *Socket) emitConnect(ctx context.Context) {
	for _, o := range s.observers.snapshot() {
		o.OnConnect(ctx)
	}
}

func (s *Socket) emitDisconnect(ctx context.Context, err error) {
	for _, o := range s.observers.snapshot() {
		o.OnDisconnect(ctx, err)
	}
}

func (s *Socket) emitReconnecting(ctx context.Context, attempt int, delay time.Duration) {
	for _, o := range s.observers.snapshot() {
		o.OnReconnecting(ctx, attempt, delay)
	}
}

func (s *Socket) emitMessage(ctx context.Context, message any) {
	for _, o := range s.observers.snapshot() {
		o.OnMessage(ctx, message)
	}
}
