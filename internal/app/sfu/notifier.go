// Package sfu talks to the external media-routing collaborator. Signaling only
// reports stream state; packet forwarding lives on the other side.
package sfu

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull      = errors.New("media notification queue full")
	ErrNotifierClosed = errors.New("media notifier closed")
)

// StreamEvent is one stream state transition.
type StreamEvent struct {
	RoomID    domain.RoomID `json:"room_id"`
	StreamKey string        `json:"stream_key"`
	Active    bool          `json:"active"`
}

// Notifier decouples the signaling path from the media router: events are
// queued without blocking and delivered in order by a single worker.
type Notifier struct {
	next    core.MediaRouter
	timeout time.Duration
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	events chan StreamEvent
	done   chan struct{}
}

func NewNotifier(next core.MediaRouter, queueSize int, timeout time.Duration, m *metrics.Metrics) *Notifier {
	if queueSize < 1 {
		queueSize = 1
	}
	n := &Notifier{
		next:    next,
		timeout: timeout,
		metrics: m,
		events:  make(chan StreamEvent, queueSize),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

// StreamStateChanged enqueues the event. It never blocks.
func (n *Notifier) StreamStateChanged(_ context.Context, roomID domain.RoomID, streamKey string, active bool) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNotifierClosed
	}
	select {
	case n.events <- StreamEvent{RoomID: roomID, StreamKey: streamKey, Active: active}:
		return nil
	default:
		n.metrics.Drop(metrics.DropMediaQueue)
		log.Warn().Str("module", "sfu").Str("room_id", string(roomID)).Bool("active", active).Msg("media queue full, event dropped")
		return ErrQueueFull
	}
}

func (n *Notifier) loop() {
	defer close(n.done)
	for ev := range n.events {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if n.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, n.timeout)
		}
		err := n.next.StreamStateChanged(ctx, ev.RoomID, ev.StreamKey, ev.Active)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("module", "sfu").Str("room_id", string(ev.RoomID)).Bool("active", ev.Active).Msg("media router notify failed")
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.events)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
