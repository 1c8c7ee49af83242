package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityQueueOrdersByPriority(t *testing.T) {
	pq := NewPriorityQueue[string]()
	pq.Enqueue("low", 1)
	pq.Enqueue("high", 10)
	pq.Enqueue("mid", 5)

	v, ok := pq.Dequeue()
	require.True(t, ok)
	require.Equal(t, "high", v)
	v, _ = pq.Dequeue()
	require.Equal(t, "mid", v)
	v, _ = pq.Dequeue()
	require.Equal(t, "low", v)

	_, ok = pq.Dequeue()
	require.False(t, ok)
}

func TestPriorityQueueStableForEqualPriorities(t *testing.T) {
	pq := NewPriorityQueue[int]()
	for i := 0; i < 100; i++ {
		pq.Enqueue(i, 0)
	}
	for i := 0; i < 100; i++ {
		v, ok := pq.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v, "equal priorities must dequeue in enqueue order")
	}
}

func TestPriorityQueueUpdate(t *testing.T) {
	pq := NewPriorityQueue[string]()
	item := pq.Enqueue("a", 1)
	pq.Enqueue("b", 5)

	pq.Update(item, "a", 10)
	v, ok := pq.Dequeue()
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestPriorityQueuePeek(t *testing.T) {
	pq := NewPriorityQueue[string]()
	require.True(t, pq.IsEmpty())

	pq.Enqueue("only", 3)
	v, ok := pq.Peek()
	require.True(t, ok)
	require.Equal(t, "only", v)
	require.Equal(t, 1, pq.Len())
}
