package resocket

import (
	"context"
	"time"
)

// Observer receives socket lifecycle and message events.
//
// Events are delivered synchronously from the goroutine that produced them.
// Implementations must return quickly and must not wait on the socket they
// observe; wrap slow observers with observers.NewAsyncObserver.
type Observer interface {
	// OnConnect is called each time a transport is established.
	OnConnect(ctx context.Context)

	// OnDisconnect is called when the socket stops for good: the caller
	// disconnected, the peer closed with a final close code, the first
	// connection attempt failed, or reconnection gave up. err is nil for a
	// caller-initiated disconnect.
	OnDisconnect(ctx context.Context, err error)

	// OnReconnecting is called when a reconnect attempt is scheduled.
	OnReconnecting(ctx context.Context, attempt int, delay time.Duration)

	// OnMessage is called with every decoded inbound message.
	OnMessage(ctx context.Context, message any)
}

// BaseObserver implements Observer with no-ops. Embed it to implement only
// the events you care about.
type BaseObserver struct{}

func (BaseObserver) OnConnect(ctx context.Context) {}

func (BaseObserver) OnDisconnect(ctx context.Context, err error) {}

func (BaseObserver) OnReconnecting(ctx context.Context, attempt int, delay time.Duration) {}

func (BaseObserver) OnMessage(ctx context.Context, message any) {}
