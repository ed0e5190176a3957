package supabase

import (
	"testing"

	"gratia/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHub_InitialSessionOnSubscribe(t *testing.T) {
	session := &entity.Session{AccessToken: "at", Identity: &entity.Identity{ID: "u1"}}
	hub := newEventHub(func() *entity.Session { return session })

	var events []entity.AuthEvent
	sub := hub.Subscribe(func(e entity.AuthEvent) {
		events = append(events, e)
	})
	defer sub.Unsubscribe()

	// Delivered synchronously, before Subscribe returns.
	require.Len(t, events, 1)
	assert.Equal(t, entity.EventInitialSession, events[0].Type)
	require.NotNil(t, events[0].Session)
	assert.Equal(t, "u1", events[0].Session.Identity.ID)
}

func TestEventHub_DeliversInSubscriptionOrder(t *testing.T) {
	hub := newEventHub(func() *entity.Session { return nil })

	var order []string
	hub.Subscribe(func(e entity.AuthEvent) {
		if e.Type != entity.EventInitialSession {
			order = append(order, "first")
		}
	})
	hub.Subscribe(func(e entity.AuthEvent) {
		if e.Type != entity.EventInitialSession {
			order = append(order, "second")
		}
	})

	hub.Emit(entity.EventSignedIn, nil)
	hub.Emit(entity.EventSignedOut, nil)

	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestEventHub_UnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	hub := newEventHub(func() *entity.Session { return nil })

	var count int
	sub := hub.Subscribe(func(e entity.AuthEvent) {
		if e.Type != entity.EventInitialSession {
			count++
		}
	})

	hub.Emit(entity.EventSignedIn, nil)
	sub.Unsubscribe()
	sub.Unsubscribe()
	hub.Emit(entity.EventSignedOut, nil)

	assert.Equal(t, 1, count)
}

func TestEventHub_SubscribersGetOwnSessionCopy(t *testing.T) {
	hub := newEventHub(func() *entity.Session { return nil })

	var second *entity.Session
	hub.Subscribe(func(e entity.AuthEvent) {
		if e.Session != nil {
			// A misbehaving subscriber must not affect the next one.
			e.Session.Identity.ID = "tampered"
		}
	})
	hub.Subscribe(func(e entity.AuthEvent) {
		second = e.Session
	})

	hub.Emit(entity.EventSignedIn, &entity.Session{Identity: &entity.Identity{ID: "u1"}})

	require.NotNil(t, second)
	assert.Equal(t, "u1", second.Identity.ID)
}
