package live

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, o *Observer) Message {
	t.Helper()
	select {
	case frame, ok := <-o.C():
		require.True(t, ok, "observer channel closed")
		var m Message
		require.NoError(t, json.Unmarshal(frame, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
	return Message{}
}

func TestBroadcastReachesEveryObserver(t *testing.T) {
	h := NewHub(4)
	a, b := h.Attach(), h.Attach()
	assert.Equal(t, 2, h.Len())

	n := h.Broadcast(Message{Type: "pl", Data: map[string]any{"clientId": "c1", "pnl": 12.5}})
	assert.Equal(t, 2, n)
	for _, o := range []*Observer{a, b} {
		m := recv(t, o)
		assert.Equal(t, "pl", m.Type)
		assert.Equal(t, "c1", m.Data.(map[string]any)["clientId"])
	}
}

func TestDetachedObserverMissesLaterBroadcasts(t *testing.T) {
	h := NewHub(4)
	a := h.Attach()
	b := h.Attach()

	assert.Equal(t, 2, h.Broadcast(Message{Type: "m1"}))
	h.Detach(a)
	assert.Equal(t, 1, h.Broadcast(Message{Type: "m2"}))

	assert.Equal(t, "m1", recv(t, a).Type)
	_, ok := <-a.C()
	assert.False(t, ok)

	assert.Equal(t, "m1", recv(t, b).Type)
	assert.Equal(t, "m2", recv(t, b).Type)
	select {
	case frame := <-b.C():
		t.Fatalf("unexpected extra frame %s", frame)
	default:
	}
	assert.Zero(t, h.Dropped())
}

func TestDetachIsIdempotent(t *testing.T) {
	h := NewHub(1)
	o := h.Attach()
	h.Detach(o)
	h.Detach(o)
	h.Detach(nil)
	_, ok := <-o.C()
	assert.False(t, ok)
	assert.Zero(t, h.Len())
	assert.Zero(t, h.Broadcast(Message{Type: "x"}))
}

func TestSlowObserverIsDropped(t *testing.T) {
	h := NewHub(1)
	slow := h.Attach()
	fast := h.Attach()

	assert.Equal(t, 2, h.Broadcast(Message{Type: "a"}))
	recv(t, fast)
	// slow never reads; its single slot is still full
	assert.Equal(t, 1, h.Broadcast(Message{Type: "b"}))
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, int64(1), h.Dropped())

	// the buffered frame is still readable, then the channel reports closed
	<-slow.C()
	_, ok := <-slow.C()
	assert.False(t, ok)
	assert.Equal(t, "b", recv(t, fast).Type)
}

func TestConcurrentAttachDetachDuringBroadcast(t *testing.T) {
	h := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan Message)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, in) }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				o := h.Attach()
				h.Detach(o)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		in <- Message{Type: "tick", Data: i}
	}
	wg.Wait()
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, h.Len())
}

func TestRunClosesObserversWhenInputEnds(t *testing.T) {
	h := NewHub(2)
	o := h.Attach()
	in := make(chan Message, 1)
	in <- Message{Type: "last"}
	close(in)
	require.NoError(t, h.Run(context.Background(), in))

	frame, ok := <-o.C()
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"last","data":null}`, string(frame))
	_, ok = <-o.C()
	assert.False(t, ok)
}
