package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrapping(t *testing.T) {
	t.Run("wrapped sentinel is still detectable", func(t *testing.T) {
		err := Wrap(ErrInvariantViolation, "removal event from detect run")
		assert.True(t, IsInvariantViolation(err))
		assert.False(t, IsNotFound(err))
	})

	t.Run("formatted constructors preserve the sentinel", func(t *testing.T) {
		err := NewNotFound("vessel %s/%s", "brokerA", "V-1001")
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "V-1001")
	})

	t.Run("nil is never a sentinel", func(t *testing.T) {
		assert.False(t, IsNotFound(nil))
		assert.False(t, IsInvariantViolation(nil))
		assert.False(t, IsSourceLocked(nil))
	})
}

func TestStackTraces(t *testing.T) {
	err := Wrap(New("inner"), "outer")
	assert.NotNil(t, GetStack(err), "wrapped errors should carry a stack trace")
}
