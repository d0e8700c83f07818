package bridge

import (
	"errors"
	"sync"
)

// ErrSessionClosed is returned to calls still waiting when the socket goes away.
var ErrSessionClosed = errors.New("bridge: session closed")

// pendingCalls correlates commands that expect a result with their replies.
type pendingCalls struct {
	mu     sync.Mutex
	next   uint64
	calls  map[uint64]chan ClientMessage
	closed bool
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[uint64]chan ClientMessage)}
}

func (p *pendingCalls) add() (uint64, <-chan ClientMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, ErrSessionClosed
	}
	p.next++
	ch := make(chan ClientMessage, 1)
	p.calls[p.next] = ch
	return p.next, ch, nil
}

// resolve delivers a reply. Unknown or already answered ids are ignored.
func (p *pendingCalls) resolve(msg ClientMessage) bool {
	p.mu.Lock()
	ch, ok := p.calls[msg.ID]
	delete(p.calls, msg.ID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

func (p *pendingCalls) forget(id uint64) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// close fails every waiting call and refuses new ones.
func (p *pendingCalls) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, ch := range p.calls {
		close(ch)
		delete(p.calls, id)
	}
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
