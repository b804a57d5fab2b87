package domain

import (
	"context"
	"time"
)

// SignalBus fans out market lifecycle events to interested consumers
// (websocket hub, external subscribers). Publish is fire-and-forget pub/sub;
// StreamAppend writes to a durable, trimmed stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// LockManager provides a distributed mutex used to serialize market
// operations across replicas. Acquire returns ErrLockHeld when another party
// holds the lock; the returned unlock function is safe to call repeatedly.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Well-known signal bus channels.
const (
	ChannelFunded = "market:funded"
	ChannelTrade  = "market:trade"
	ChannelClosed = "market:closed"
	ChannelFees   = "market:fees"
)
