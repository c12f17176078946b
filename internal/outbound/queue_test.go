package outbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"tiryaq/voice/internal/types"
)

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type fakeConn struct {
	mu     sync.Mutex
	frames []frame
	failAt int
	delay  time.Duration
}

func (c *fakeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.frames)+1 == c.failAt {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, frame{typ: typ, data: append([]byte(nil), p...)})
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) snapshot() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

func TestDrainPreservesOrderAndFrameTypes(t *testing.T) {
	q := New(nil)
	conn := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, conn)

	q.Push(types.StateChanged("thinking"))
	q.Push(types.UserTranscript("hello"))
	q.Push(types.AudioStart())
	q.Push(types.AudioChunk([]byte{1, 2, 3, 4}))
	q.Push(types.TextDelta("hi"))
	q.Push(types.AudioEnd())

	require.Eventually(t, func() bool { return conn.count() == 6 }, time.Second, 5*time.Millisecond)
	got := conn.snapshot()
	assert.JSONEq(t, `{"type":"state","state":"thinking"}`, string(got[0].data))
	assert.JSONEq(t, `{"type":"user_text","content":"hello"}`, string(got[1].data))
	assert.JSONEq(t, `{"type":"audio_start"}`, string(got[2].data))
	assert.Equal(t, websocket.MessageBinary, got[3].typ)
	assert.Equal(t, []byte{1, 2, 3, 4}, got[3].data)
	assert.Equal(t, websocket.MessageText, got[4].typ)
	assert.JSONEq(t, `{"type":"audio_end"}`, string(got[5].data))
}

func TestPushNeverBlocksWithoutConsumer(t *testing.T) {
	q := New(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.Push(types.AudioChunk(make([]byte, 32)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked")
	}
	assert.Equal(t, 10000, q.Len())
}

func TestSlowTransportDoesNotBlockProducers(t *testing.T) {
	q := New(nil)
	conn := &fakeConn{delay: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, conn)

	start := time.Now()
	for i := 0; i < 50; i++ {
		q.Push(types.TextDelta("x"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDrainStopsOnWriteError(t *testing.T) {
	q := New(nil)
	conn := &fakeConn{failAt: 2}
	done := make(chan struct{})
	go func() {
		q.Run(context.Background(), conn)
		close(done)
	}()
	q.Push(types.Pong())
	q.Push(types.Pong())
	q.Push(types.Pong())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not exit on write error")
	}
	assert.Equal(t, 1, conn.count())
	// Producers keep pushing into a queue nobody drains.
	q.Push(types.Pong())
}

func TestCloseStopsDrainAndDropsLaterPushes(t *testing.T) {
	q := New(nil)
	done := make(chan struct{})
	go func() {
		q.Run(context.Background(), &fakeConn{})
		close(done)
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not exit on close")
	}
	q.Push(types.Pong())
	assert.Zero(t, q.Len())
	q.Close()
}

func TestContextCancelStopsDrain(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, &fakeConn{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not exit on cancel")
	}
}
