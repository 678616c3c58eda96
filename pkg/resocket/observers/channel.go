package observers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tsarna/resocket/pkg/resocket"
)

// ChannelObserver exposes message and disconnect events as channels.
// Sends never block; events that do not fit are dropped and counted.
type ChannelObserver struct {
	resocket.BaseObserver

	messages    chan any
	disconnects chan error
	dropped     atomic.Int64
}

// NewChannelObserver creates a ChannelObserver buffering up to size messages.
func NewChannelObserver(size int) *ChannelObserver {
	if size <= 0 {
		size = 100
	}
	return &ChannelObserver{
		messages:    make(chan any, size),
		disconnects: make(chan error, 1),
	}
}

// Messages returns the channel of decoded messages.
func (c *ChannelObserver) Messages() <-chan any {
	return c.messages
}

// Disconnects returns a channel receiving the error of each terminal
// disconnect (nil for a caller disconnect).
func (c *ChannelObserver) Disconnects() <-chan error {
	return c.disconnects
}

// Dropped returns the number of events that were dropped.
func (c *ChannelObserver) Dropped() int64 {
	return c.dropped.Load()
}

func (c *ChannelObserver) OnMessage(ctx context.Context, message any) {
	select {
	case c.messages <- message:
	default:
		c.dropped.Add(1)
	}
}

func (c *ChannelObserver) OnDisconnect(ctx context.Context, err error) {
	select {
	case c.disconnects <- err:
	default:
		c.dropped.Add(1)
	}
}

// Funcs adapts optional callbacks to resocket.Observer. Nil fields are skipped.
type Funcs struct {
	Connect      func(ctx context.Context)
	Disconnect   func(ctx context.Context, err error)
	Reconnecting func(ctx context.Context, attempt int, delay time.Duration)
	Message      func(ctx context.Context, message any)
}

func (f Funcs) OnConnect(ctx context.Context) {
	if f.Connect != nil {
		f.Connect(ctx)
	}
}

func (f Funcs) OnDisconnect(ctx context.Context, err error) {
	if f.Disconnect != nil {
		f.Disconnect(ctx, err)
	}
}

func (f Funcs) OnReconnecting(ctx context.Context, attempt int, delay time.Duration) {
	if f.Reconnecting != nil {
		f.Reconnecting(ctx, attempt, delay)
	}
}

func (f Funcs) OnMessage(ctx context.Context, message any) {
	if f.Message != nil {
		f.Message(ctx, message)
	}
}
