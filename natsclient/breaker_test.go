package natsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_Rounds(t *testing.T) {
	b := newBreaker(3, 5*time.Second)

	for i := 0; i < 2; i++ {
		_, tripped := b.fail()
		assert.False(t, tripped)
	}
	wait, tripped := b.fail()
	assert.True(t, tripped)
	assert.Equal(t, time.Second, wait, "first round waits the initial backoff")
	assert.Equal(t, 2*time.Second, b.currentBackoff())

	b.fail()
	b.fail()
	wait, tripped = b.fail()
	assert.True(t, tripped)
	assert.Equal(t, 2*time.Second, wait)

	for i := 0; i < 9; i++ {
		b.fail()
	}
	assert.Equal(t, 5*time.Second, b.currentBackoff(), "capped at max")
	assert.Equal(t, int32(15), b.failures())
}

func TestBreaker_Reset(t *testing.T) {
	b := newBreaker(1, time.Minute)
	b.fail()
	assert.False(t, b.lastFailure().IsZero())

	b.reset()
	assert.Zero(t, b.failures())
	assert.True(t, b.lastFailure().IsZero())
	assert.Equal(t, initialBackoff, b.currentBackoff())
}
