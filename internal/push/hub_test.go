package push

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PushToConnection(t *testing.T) {
	t.Run("delivers to a registered handle", func(t *testing.T) {
		hub := NewHub(4)
		ch := hub.Register("conn-1")

		err := hub.PushToConnection("conn-1", "receiveMessage", "hello")

		require.NoError(t, err)
		event := <-ch
		assert.Equal(t, "receiveMessage", event.Name)
		assert.Equal(t, "hello", event.Payload)
	})

	t.Run("unknown handle errors", func(t *testing.T) {
		hub := NewHub(4)

		err := hub.PushToConnection("ghost", "receiveMessage", "hello")

		assert.Error(t, err)
	})

	t.Run("full queue drops instead of blocking", func(t *testing.T) {
		hub := NewHub(1)
		hub.Register("conn-1")

		require.NoError(t, hub.PushToConnection("conn-1", "e", 1))
		err := hub.PushToConnection("conn-1", "e", 2)

		assert.Error(t, err)
	})
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(4)
	ch := hub.Register("conn-1")

	hub.Unregister("conn-1")

	_, open := <-ch
	assert.False(t, open, "queue should be closed on unregister")
	assert.Error(t, hub.PushToConnection("conn-1", "e", nil))

	// Second unregister is a no-op.
	hub.Unregister("conn-1")
	assert.Equal(t, 0, hub.Connections())
}

func TestHub_ReRegisterReplacesQueue(t *testing.T) {
	hub := NewHub(4)
	old := hub.Register("conn-1")
	fresh := hub.Register("conn-1")

	_, open := <-old
	assert.False(t, open, "stale queue should be closed")

	require.NoError(t, hub.PushToConnection("conn-1", "e", "x"))
	event := <-fresh
	assert.Equal(t, "x", event.Payload)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(4)
	a := hub.Register("conn-a")
	b := hub.Register("conn-b")

	hub.Broadcast("updateOnlineUsers", []string{"user-1"})

	eventA := <-a
	eventB := <-b
	assert.Equal(t, "updateOnlineUsers", eventA.Name)
	assert.Equal(t, "updateOnlineUsers", eventB.Name)
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub(256)
	ch := hub.Register("conn-1")

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.PushToConnection("conn-1", "e", j)
				hub.Broadcast("b", j)
			}
		}()
	}
	wg.Wait()

	hub.Unregister("conn-1")
	<-done
	assert.Equal(t, 0, hub.Connections())
}
