package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	t.Run("allows an unseen message", func(t *testing.T) {
		s := NewMemoryStore()
		assert.True(t, s.ShouldEnqueue(Message{QueueName: "q", Body: "true"}))
	})

	t.Run("suppresses after SuccessfullyProcessed", func(t *testing.T) {
		s := NewMemoryStore()
		msg := Message{QueueName: "q", Body: "true"}
		s.SuccessfullyProcessed(msg)
		assert.False(t, s.ShouldEnqueue(msg))
	})

	t.Run("rollback un-suppresses", func(t *testing.T) {
		s := NewMemoryStore()
		msg := Message{QueueName: "q", Body: "true"}
		s.SuccessfullyProcessed(msg)
		s.Rollback(msg)
		assert.True(t, s.ShouldEnqueue(msg))
	})

	t.Run("ShouldEnqueueMulti filters only processed entries", func(t *testing.T) {
		s := NewMemoryStore()
		a := Message{QueueName: "q", Body: "a"}
		b := Message{QueueName: "q", Body: "b"}
		s.SuccessfullyProcessed(a)

		out := s.ShouldEnqueueMulti([]Message{a, b})
		assert.Equal(t, []Message{b}, out)
	})

	t.Run("distinguishes messages by queue name", func(t *testing.T) {
		s := NewMemoryStore()
		s.SuccessfullyProcessed(Message{QueueName: "q1", Body: "true"})
		assert.True(t, s.ShouldEnqueue(Message{QueueName: "q2", Body: "true"}))
	})
}
