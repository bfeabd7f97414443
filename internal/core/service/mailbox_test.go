package service

import (
	"sync"
	"testing"
	"time"
	"timebot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](t *testing.T, m *Mailbox[T]) []T {
	t.Helper()

	var got []T
	timeout := time.After(waitFor)
	for {
		select {
		case v, ok := <-m.Receive():
			if !ok {
				return got
			}
			got = append(got, v)
		case <-timeout:
			t.Fatal("mailbox was not drained")
			return got
		}
	}
}

func TestMailbox_FIFO(t *testing.T) {
	m := NewMailbox[int]()

	for i := range 1000 {
		require.NoError(t, m.Send(i))
	}
	assert.InDelta(t, 1000, m.Len(), 1)

	m.Close()

	got := drain(t, m)
	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMailbox_SendAfterClose(t *testing.T) {
	m := NewMailbox[string]()
	require.NoError(t, m.Send("queued"))

	m.Close()
	m.Close()

	require.ErrorIs(t, m.Send("late"), domain.ErrMailboxClosed)
	assert.Equal(t, []string{"queued"}, drain(t, m))
}

func TestMailbox_ManyProducers(t *testing.T) {
	const producers, perProducer = 8, 250

	m := NewMailbox[[2]int]()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range perProducer {
				assert.NoError(t, m.Send([2]int{p, n}))
			}
		}()
	}
	wg.Wait()
	m.Close()

	next := make([]int, producers)
	for _, v := range drain(t, m) {
		// per producer order is preserved
		assert.Equal(t, next[v[0]], v[1])
		next[v[0]]++
	}

	for p := range producers {
		assert.Equal(t, perProducer, next[p])
	}
}

func TestMailbox_Discard(t *testing.T) {
	m := NewMailbox[int]()
	for i := range 10 {
		require.NoError(t, m.Send(i))
	}

	m.Discard()

	require.ErrorIs(t, m.Send(11), domain.ErrMailboxClosed)
	assert.LessOrEqual(t, len(drain(t, m)), 1)
}

func TestMailbox_ReceiveBlocksUntilSend(t *testing.T) {
	m := NewMailbox[int]()

	select {
	case v := <-m.Receive():
		t.Fatalf("unexpected item %d", v)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, m.Send(5))

	select {
	case v := <-m.Receive():
		assert.Equal(t, 5, v)
	case <-time.After(waitFor):
		t.Fatal("item not delivered")
	}

	m.Discard()
}

func TestMailbox_QueuesBeforeFirstReceive(t *testing.T) {
	m := NewMailbox[int]()
	for i := range 3 {
		require.NoError(t, m.Send(i))
	}
	m.Close()

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int{0, 1, 2}, drain(t, m))
}

func TestMailbox_DiscardWithoutReceive(t *testing.T) {
	m := NewMailbox[int]()
	require.NoError(t, m.Send(1))

	m.Discard()

	select {
	case _, ok := <-m.Receive():
		assert.False(t, ok)
	case <-time.After(waitFor):
		t.Fatal("receive channel not closed after discard")
	}
}
