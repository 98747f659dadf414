package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shizukutanaka/mate/internal/protocol"
)

// TestRegistry tests correlation of replies to pending operations
func TestRegistry(t *testing.T) {
	t.Run("PutGetContains", func(t *testing.T) {
		r := NewRegistry()
		op := &PendingOp{Expect: protocol.Conack}

		require.NoError(t, r.Put("a", op))
		assert.True(t, r.Contains("a"))
		got, ok := r.Get("a")
		require.True(t, ok)
		assert.Same(t, op, got)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Put("a", &PendingOp{}))
		assert.Error(t, r.Put("a", &PendingOp{}))
	})

	t.Run("RemoveIdempotent", func(t *testing.T) {
		sched := &manualScheduler{}
		r := NewRegistry()
		op := &PendingOp{Expect: protocol.MateAck}
		op.timer = sched.after(time.Second, func() {})
		require.NoError(t, r.Put("a", op))

		r.Remove("a")
		assert.False(t, r.Contains("a"))
		assert.False(t, op.timer.Active())

		r.Remove("a")
		r.Remove("never-registered")
		assert.Equal(t, 0, r.Len())
	})

	t.Run("ResolveMatchingKind", func(t *testing.T) {
		sched := &manualScheduler{}
		r := NewRegistry()
		op := &PendingOp{Expect: protocol.LookResp}
		op.timer = sched.after(time.Second, func() {})
		require.NoError(t, r.Put("a", op))

		got, ok := r.Resolve("a", protocol.LookResp)
		require.True(t, ok)
		assert.Same(t, op, got)
		assert.False(t, r.Contains("a"))
		assert.False(t, op.timer.Active())

		_, ok = r.Resolve("a", protocol.LookResp)
		assert.False(t, ok)
	})

	t.Run("ResolveWrongKindKeepsOperation", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Put("a", &PendingOp{Expect: protocol.Conack}))

		_, ok := r.Resolve("a", protocol.MateAck)
		assert.False(t, ok)
		assert.True(t, r.Contains("a"))
	})

	t.Run("Drain", func(t *testing.T) {
		sched := &manualScheduler{}
		r := NewRegistry()
		for _, id := range []string{"a", "b"} {
			op := &PendingOp{}
			op.timer = sched.after(time.Second, func() {})
			require.NoError(t, r.Put(id, op))
		}

		ops := r.Drain()
		assert.Len(t, ops, 2)
		assert.Equal(t, 0, r.Len())
		assert.Equal(t, 0, sched.active())
	})
}
