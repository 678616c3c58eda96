package observers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
)

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventReconnecting
	eventMessage
)

type asyncEvent struct {
	ctx     context.Context
	kind    eventKind
	err     error
	attempt int
	delay   time.Duration
	message any
}

// AsyncObserver wraps another observer and delivers events to it from a
// background goroutine through a buffered queue, so the socket is never
// held up by a slow observer. Events that arrive while the queue is full
// are dropped and counted.
type AsyncObserver struct {
	wrapped   resocket.Observer
	queue     chan asyncEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewAsyncObserver creates an AsyncObserver with the given queue size and
// starts its delivery goroutine. Call Close to stop it.
//
//	async := observers.NewAsyncObserver(slowObserver, 100)
//	defer async.Close()
//	unsubscribe := s.Subscribe(async)
func NewAsyncObserver(wrapped resocket.Observer, queueSize int) *AsyncObserver {
	if queueSize <= 0 {
		queueSize = 100
	}

	a := &AsyncObserver{
		wrapped: wrapped,
		queue:   make(chan asyncEvent, queueSize),
		done:    make(chan struct{}),
	}

	a.wg.Add(1)
	go a.processQueue()

	return a
}

func (a *AsyncObserver) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case ev := <-a.queue:
			a.deliver(ev)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncObserver) drainQueue() {
	for {
		select {
		case ev := <-a.queue:
			a.deliver(ev)
		default:
			return
		}
	}
}

func (a *AsyncObserver) deliver(ev asyncEvent) {
	switch ev.kind {
	case eventConnect:
		a.wrapped.OnConnect(ev.ctx)
	case eventDisconnect:
		a.wrapped.OnDisconnect(ev.ctx, ev.err)
	case eventReconnecting:
		a.wrapped.OnReconnecting(ev.ctx, ev.attempt, ev.delay)
	case eventMessage:
		a.wrapped.OnMessage(ev.ctx, ev.message)
	}
}

func (a *AsyncObserver) enqueue(ev asyncEvent) {
	if a.IsClosed() {
		a.dropped.Add(1)
		return
	}

	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) OnConnect(ctx context.Context) {
	a.enqueue(asyncEvent{ctx: ctx, kind: eventConnect})
}

func (a *AsyncObserver) OnDisconnect(ctx context.Context, err error) {
	a.enqueue(asyncEvent{ctx: ctx, kind: eventDisconnect, err: err})
}

func (a *AsyncObserver) OnReconnecting(ctx context.Context, attempt int, delay time.Duration) {
	a.enqueue(asyncEvent{ctx: ctx, kind: eventReconnecting, attempt: attempt, delay: delay})
}

func (a *AsyncObserver) OnMessage(ctx context.Context, message any) {
	a.enqueue(asyncEvent{ctx: ctx, kind: eventMessage, message: message})
}

// Close stops the delivery goroutine after delivering everything already
// queued.
func (a *AsyncObserver) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// Dropped returns the number of events dropped because the queue was full
// or the observer was closed.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// QueueSize returns the current number of events in the queue.
func (a *AsyncObserver) QueueSize() int {
	return len(a.queue)
}

// IsClosed returns true if the observer has been closed.
func (a *AsyncObserver) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
