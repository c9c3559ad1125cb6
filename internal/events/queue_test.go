package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EmitAndDrainAll(t *testing.T) {
	q := NewQueue(10)

	q.Emit(TypeUtterance, 1, "hello")
	q.Emit(TypeTrade, 1, "deal")
	q.Emit(TypeReflection, 2, "thought")

	require.Equal(t, 3, q.Len())

	drained := q.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, TypeUtterance, drained[0].Type)
	assert.Equal(t, TypeTrade, drained[1].Type)
	assert.Equal(t, TypeReflection, drained[2].Type)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.DrainAll())
}

func TestQueue_DrainPartial(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 5; i++ {
		q.Emit(TypeUtterance, i, i)
	}

	head := q.Drain(2)
	require.Len(t, head, 2)
	assert.Equal(t, 0, head[0].Payload)
	assert.Equal(t, 1, head[1].Payload)
	assert.Equal(t, 3, q.Len())

	rest := q.Drain(100)
	require.Len(t, rest, 3)
	assert.Equal(t, 2, rest[0].Payload)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_CapacityEvictsOldest(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 7; i++ {
		q.Emit(TypeUtterance, i, fmt.Sprintf("event-%d", i))
		assert.LessOrEqual(t, q.Len(), 3)
	}

	drained := q.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, "event-4", drained[0].Payload)
	assert.Equal(t, "event-6", drained[2].Payload)
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, DefaultCapacity, q.Cap())
}
