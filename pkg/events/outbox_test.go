package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_FIFO(t *testing.T) {
	o := newOutbox(4)

	assert.False(t, o.Push([]byte("a")))
	assert.False(t, o.Push([]byte("b")))

	first, err := o.Pop()
	require.NoError(t, err)
	assert.Equal(t, "a", string(first))

	second, err := o.Pop()
	require.NoError(t, err)
	assert.Equal(t, "b", string(second))
}

func TestOutbox_OverflowDropsOldest(t *testing.T) {
	o := newOutbox(2)

	o.Push([]byte("a"))
	o.Push([]byte("b"))
	evicted := o.Push([]byte("c"))

	assert.True(t, evicted)
	assert.Equal(t, 1, o.Dropped())
	assert.Equal(t, 2, o.Len())

	first, err := o.Pop()
	require.NoError(t, err)
	assert.Equal(t, "b", string(first), "oldest message dropped, newest kept")
}

func TestOutbox_TerminalNeverEvicted(t *testing.T) {
	o := newOutbox(1)

	require.NoError(t, o.PushTerminal([]byte("terminal"), time.Second))

	// A non-terminal push on an outbox full of terminals drops the incoming
	// message, never a terminal, and never grows past capacity.
	dropped := o.Push([]byte("late-progress"))
	assert.True(t, dropped)
	assert.Equal(t, 1, o.Dropped())
	assert.Equal(t, 1, o.Len())

	first, err := o.Pop()
	require.NoError(t, err)
	assert.Equal(t, "terminal", string(first))
	assert.Equal(t, 0, o.Len())
}

func TestOutbox_TerminalTimesOutWhenFull(t *testing.T) {
	o := newOutbox(1)
	o.Push([]byte("stuck"))

	start := time.Now()
	err := o.PushTerminal([]byte("terminal"), 30*time.Millisecond)

	assert.ErrorIs(t, err, ErrTerminalTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestOutbox_TerminalWaitsForSpace(t *testing.T) {
	o := newOutbox(1)
	o.Push([]byte("stuck"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = o.Pop()
	}()

	err := o.PushTerminal([]byte("terminal"), time.Second)
	require.NoError(t, err)

	data, err := o.Pop()
	require.NoError(t, err)
	assert.Equal(t, "terminal", string(data))
}

func TestOutbox_CloseDrainsPending(t *testing.T) {
	o := newOutbox(4)
	o.Push([]byte("pending"))
	o.Close()

	data, err := o.Pop()
	require.NoError(t, err)
	assert.Equal(t, "pending", string(data))

	_, err = o.Pop()
	assert.ErrorIs(t, err, ErrOutboxClosed)
}

func TestOutbox_CloseWakesBlockedTerminal(t *testing.T) {
	o := newOutbox(1)
	o.Push([]byte("stuck"))

	done := make(chan error, 1)
	go func() {
		done <- o.PushTerminal([]byte("terminal"), time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	o.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrOutboxClosed)
	case <-time.After(time.Second):
		t.Fatal("PushTerminal did not return after Close")
	}
}
