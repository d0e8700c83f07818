package pwa

import "sync"

type listeners struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(bool)
}

func (l *listeners) add(fn func(bool)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(bool))
	}
	l.next++
	id := l.next
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) notify(online bool) {
	l.mu.Lock()
	fns := make([]func(bool), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// CheckOnlineStatus reports the host's current network status.
func (c *Coordinator) CheckOnlineStatus() bool {
	return c.host.Online()
}

// SetupOnlineStatusListener calls cb(true) on every online transition and
// cb(false) on every offline transition until the returned function is called.
// The owner must call the returned function exactly once on every exit path;
// extra calls are ignored.
func (c *Coordinator) SetupOnlineStatusListener(cb func(online bool)) func() {
	return c.online.add(cb)
}

// HandleOnline is called by the host when the network comes back.
func (c *Coordinator) HandleOnline() {
	c.online.notify(true)
}

// HandleOffline is called by the host when the network goes away.
func (c *Coordinator) HandleOffline() {
	c.online.notify(false)
}
