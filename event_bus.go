// event_bus.go
// ------------
// AuthEventBus is the seam between this package and session-management code:
// token refreshes and terminal authentication failures are broadcast here so
// the client never depends on any UI or session layer.
//
// Each Client owns its own bus (no process-wide state), so tests inject a
// fresh one per case.
package resilientclient

import "sync"

const (
	// EventTokenRefreshed is published after a successful refresh; the
	// payload carries the new access token.
	EventTokenRefreshed = "tokenRefreshed"
	// EventAuthenticationFailed is published when the session is considered
	// terminated; the payload carries the status, message, and originating
	// URL.
	EventAuthenticationFailed = "authenticationFailed"
)

// AuthEvent is the payload delivered to subscribers. Name is one of the
// Event* constants; the remaining fields are populated per event.
type AuthEvent struct {
	Name string

	// AccessToken is set for EventTokenRefreshed.
	AccessToken string

	// Status, Message, and URL are set for EventAuthenticationFailed.
	Status  int
	Message string
	URL     string
}

// AuthEventBus fans events out to zero or more subscribers. Publish never
// fails: with no subscribers it is a no-op, and a panicking subscriber does
// not disturb the publisher or other subscribers. Subscribers are invoked
// synchronously in subscription order, so each one observes every event in
// publish order.
type AuthEventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(AuthEvent)
	order  []int
}

func NewAuthEventBus() *AuthEventBus {
	return &AuthEventBus{subs: make(map[int]func(AuthEvent))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *AuthEventBus) Subscribe(fn func(AuthEvent)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers ev to every current subscriber.
func (b *AuthEventBus) Publish(ev AuthEvent) {
	b.mu.RLock()
	fns := make([]func(AuthEvent), 0, len(b.order))
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn, ev)
	}
}

// deliver shields the publisher from subscriber panics.
func deliver(fn func(AuthEvent), ev AuthEvent) {
	defer func() { _ = recover() }()
	fn(ev)
}

func (b *AuthEventBus) publishTokenRefreshed(accessToken string) {
	b.Publish(AuthEvent{Name: EventTokenRefreshed, AccessToken: accessToken})
}

func (b *AuthEventBus) publishAuthenticationFailed(status int, message, url string) {
	b.Publish(AuthEvent{
		Name:    EventAuthenticationFailed,
		Status:  status,
		Message: message,
		URL:     url,
	})
}
