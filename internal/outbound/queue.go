// Package outbound serializes everything a session sends to its client.
// Producers push without blocking; one drain goroutine writes in FIFO order.
package outbound

import (
	"context"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"tiryaq/voice/internal/types"
)

// Conn is the transport write primitive. *websocket.Conn satisfies it.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Queue is an unbounded per-session FIFO with a single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []types.Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
	log    *slog.Logger
}

func New(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
}

// Push enqueues an event. It never blocks. Events pushed after Close are
// dropped.
func (q *Queue) Push(ev types.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metricDropped.Inc()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	metricEnqueued.WithLabelValues(ev.Kind.String()).Inc()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue into c until ctx is cancelled, the queue is closed or
// a write fails. Write failures end the drain quietly; the session is going
// away and producers are never told.
func (q *Queue) Run(ctx context.Context, c Conn) {
	for {
		ev, ok := q.next(ctx)
		if !ok {
			return
		}
		if err := write(ctx, c, ev); err != nil {
			q.log.Debug("outbound drain stopped", "err", err)
			return
		}
		metricWritten.Inc()
	}
}

func (q *Queue) next(ctx context.Context) (types.Event, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return types.Event{}, false
		}
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = types.Event{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.done:
		case <-ctx.Done():
			return types.Event{}, false
		}
	}
}

func write(ctx context.Context, c Conn, ev types.Event) error {
	if ev.Binary() {
		return c.Write(ctx, websocket.MessageBinary, ev.Audio)
	}
	b, err := ev.Encode()
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, b)
}

// Close stops the drain and discards pending events.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

// Len returns the number of events waiting to be written.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
