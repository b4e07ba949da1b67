package event

import (
	"sync"

	"github.com/wattcap/wattcap/printer"
)

// Handler receives one event of a given kind. Handlers run synchronously on
// the decoder thread; they must not block or perform slow I/O.
type Handler func(Envelope)

// Router is a per-kind publish-subscribe registry. The zero value is ready
// to use.
type Router struct {
	mu   sync.Mutex
	subs map[Kind][]subscription
	next int
}

type subscription struct {
	id      int
	handler Handler
}

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	kind Kind
	id   int
}

func (r *Router) Subscribe(k Kind, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs == nil {
		r.subs = make(map[Kind][]subscription)
	}
	r.next++
	id := r.next
	r.subs[k] = append(r.subs[k], subscription{id: id, handler: h})
	return Subscription{kind: k, id: id}
}

func (r *Router) Unsubscribe(s Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[s.kind]
	for i, sub := range list {
		if sub.id == s.id {
			r.subs[s.kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers env to every subscriber of env.Kind, in subscription
// order, on the calling goroutine. Each handler invocation is isolated: a
// panic is recovered, logged, and does not prevent delivery to the
// remaining subscribers. The registry is only locked long enough to copy
// the subscriber list -- never around delivery, so a subscriber that
// subscribes or unsubscribes from within its own handler cannot deadlock.
func (r *Router) Publish(env Envelope) {
	r.mu.Lock()
	handlers := append([]subscription(nil), r.subs[env.Kind]...)
	r.mu.Unlock()

	for _, sub := range handlers {
		deliver(sub.handler, env)
	}
}

func deliver(h Handler, env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			printer.Stderr.Errorf("subscriber panicked handling %s event: %v\n", env.Kind, rec)
		}
	}()
	h(env)
}
