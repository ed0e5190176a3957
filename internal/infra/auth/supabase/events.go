package supabase

import (
	"sync"

	"gratia/internal/domain/entity"
	"gratia/internal/domain/service"
)

// eventHub fans auth events out to subscribers. Delivery is synchronous and
// serialized by the dispatch mutex, so every subscriber observes events in the
// exact order they were emitted.
type eventHub struct {
	mu       sync.Mutex
	dispatch sync.Mutex
	subs     map[int]func(entity.AuthEvent)
	order    []int
	nextID   int

	// current returns the session to report in the INITIAL_SESSION event
	// emitted on subscribe.
	current func() *entity.Session
}

func newEventHub(current func() *entity.Session) *eventHub {
	return &eventHub{
		subs:    make(map[int]func(entity.AuthEvent)),
		current: current,
	}
}

// Subscribe registers a callback and synchronously delivers an INITIAL_SESSION
// event before returning, mirroring the hosted SDK's behavior.
func (h *eventHub) Subscribe(fn func(entity.AuthEvent)) service.Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	h.deliver([]func(entity.AuthEvent){fn}, entity.AuthEvent{
		Type:    entity.EventInitialSession,
		Session: h.current(),
	})

	return &subscription{remove: func() { h.remove(id) }}
}

// Emit delivers an event to all current subscribers in subscription order.
func (h *eventHub) Emit(eventType entity.AuthEventType, session *entity.Session) {
	h.mu.Lock()
	fns := make([]func(entity.AuthEvent), 0, len(h.subs))
	for _, id := range h.order {
		if fn, ok := h.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	h.deliver(fns, entity.AuthEvent{Type: eventType, Session: session})
}

func (h *eventHub) deliver(fns []func(entity.AuthEvent), event entity.AuthEvent) {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	for _, fn := range fns {
		// Each subscriber gets its own session copy.
		fn(entity.AuthEvent{Type: event.Type, Session: event.Session.Clone()})
	}
}

func (h *eventHub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, id)
	for i, existing := range h.order {
		if existing == id {
			h.order = append(h.order[:i], h.order[i+1:]...)

			break
		}
	}
}

type subscription struct {
	once   sync.Once
	remove func()
}

// Unsubscribe releases the registration. Safe to call more than once.
func (s *subscription) Unsubscribe() {
	s.once.Do(s.remove)
}
