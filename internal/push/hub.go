package push

import (
	"fmt"
	"log"
	"sync"
)

// Event is one unit on a connection's outbound queue.
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Hub routes events to live connections by handle. Sends never block: a
// connection that cannot drain its queue loses events, and the persisted
// state is what the client reconciles against on reconnect.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]chan Event
	buffer int
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		conns:  make(map[string]chan Event),
		buffer: bufferSize,
	}
}

// Register creates the outbound queue for a new connection handle. The
// returned channel is closed by Unregister.
func (h *Hub) Register(handle string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[handle]; ok {
		close(old)
	}

	ch := make(chan Event, h.buffer)
	h.conns[handle] = ch
	return ch
}

func (h *Hub) Unregister(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.conns[handle]; ok {
		close(ch)
		delete(h.conns, handle)
	}
}

func (h *Hub) PushToConnection(handle string, event string, payload interface{}) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.conns[handle]
	if !ok {
		return fmt.Errorf("no connection for handle %s", handle)
	}

	select {
	case ch <- Event{Name: event, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("queue full for handle %s, dropping %s", handle, event)
	}
}

func (h *Hub) Broadcast(event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for handle, ch := range h.conns {
		select {
		case ch <- Event{Name: event, Payload: payload}:
		default:
			log.Printf("queue full for handle %s, dropping broadcast %s", handle, event)
		}
	}
}

// Connections reports the number of live handles.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
