package pwa

import (
	"slices"
	"sync"
)

// Kind identifies a lifecycle notification.
type Kind int

const (
	InstallAvailable Kind = iota + 1
	Installed
	UpdateAvailable
)

func (k Kind) String() string {
	switch k {
	case InstallAvailable:
		return "install-available"
	case Installed:
		return "installed"
	case UpdateAvailable:
		return "update-available"
	default:
		return "unknown"
	}
}

// Notification is delivered to subscribers. It carries no payload beyond its kind.
type Notification struct {
	Kind Kind
}

type subscriber struct {
	kind Kind
	fn   func(Notification)
}

// Bus is a small typed publish/subscribe hub scoped to one coordinator.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]subscriber)}
}

// Subscription is returned by Subscribe. Unsubscribe may be called more than once.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

func (b *Bus) Subscribe(kind Kind, fn func(Notification)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[b.next] = subscriber{kind: kind, fn: fn}
	return &Subscription{bus: b, id: b.next}
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// Publish delivers n synchronously to every subscriber of its kind. Handlers
// run outside the bus lock and may subscribe or unsubscribe.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id, sub := range b.subs {
		if sub.kind == n.Kind {
			ids = append(ids, id)
		}
	}
	fns := make([]func(Notification), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id].fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}
