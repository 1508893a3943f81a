package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.arsenm.dev/flowrpc/command"
)

func TestDrain(t *testing.T) {
	q := New()
	assert.Empty(t, q.Drain())

	q.Push(command.NewRequest(1, "A", nil))
	q.Push(command.NewSuccessResponse(2, "ok"))
	assert.Equal(t, 2, q.Len())

	cmds := q.Drain()
	assert.Equal(t, 0, q.Len())
	if assert.Len(t, cmds, 2) {
		assert.Equal(t, uint64(1), cmds[0].CommandID())
		assert.Equal(t, uint64(2), cmds[1].CommandID())
	}

	// Drained commands are not sent twice
	assert.Empty(t, q.Drain())
}
