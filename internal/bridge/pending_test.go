package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingCalls_ResolveOnce(t *testing.T) {
	p := newPendingCalls()
	id, ch, err := p.add()
	require.NoError(t, err)
	require.Equal(t, 1, p.len())

	require.True(t, p.resolve(ClientMessage{Type: MsgResult, ID: id, OK: true}))
	reply := <-ch
	require.True(t, reply.OK)

	require.False(t, p.resolve(ClientMessage{Type: MsgResult, ID: id}))
	require.Zero(t, p.len())
}

func TestPendingCalls_IDsIncrease(t *testing.T) {
	p := newPendingCalls()
	a, _, _ := p.add()
	b, _, _ := p.add()
	require.Greater(t, b, a)
}

func TestPendingCalls_Forget(t *testing.T) {
	p := newPendingCalls()
	id, _, _ := p.add()
	p.forget(id)
	require.False(t, p.resolve(ClientMessage{ID: id}))
}

func TestPendingCalls_CloseFailsWaiters(t *testing.T) {
	p := newPendingCalls()
	_, ch, err := p.add()
	require.NoError(t, err)

	p.close()
	_, ok := <-ch
	require.False(t, ok)

	_, _, err = p.add()
	require.ErrorIs(t, err, ErrSessionClosed)
}
