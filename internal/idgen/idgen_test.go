package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUniqueAndOrdered(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)

	prev := ""
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := g.NewID()
		assert.Len(t, id, 19)
		assert.Greater(t, id, prev)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
		prev = id
	}
}

func TestNewRejectsOutOfRangeNode(t *testing.T) {
	_, err := New(5000)
	assert.Error(t, err)
}

func TestMustNewPanicsOnBadNode(t *testing.T) {
	assert.NotPanics(t, func() { MustNew(0) })
	assert.Panics(t, func() { MustNew(-1) })
}
