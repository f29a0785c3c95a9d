package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/mediaconnector/caps"
)

func TestAnnounce_NoListeners(t *testing.T) {
	b := New()
	assert.False(t, b.Announce(caps.MustParse("video/x-h264")))
}

func TestAnnounce_FirstClaimantWins(t *testing.T) {
	b := New()
	var calls []string

	b.Register(ListenerFunc(func(caps.Caps) bool {
		calls = append(calls, "first")
		return false
	}))
	b.Register(ListenerFunc(func(caps.Caps) bool {
		calls = append(calls, "second")
		return true
	}))
	b.Register(ListenerFunc(func(caps.Caps) bool {
		calls = append(calls, "third")
		return true
	}))

	assert.True(t, b.Announce(caps.MustParse("audio/x-opus")))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestAnnounce_NobodyClaims(t *testing.T) {
	b := New()
	count := 0
	for range 3 {
		b.Register(ListenerFunc(func(caps.Caps) bool {
			count++
			return false
		}))
	}

	assert.False(t, b.Announce(caps.MustParse("video/x-vp8")))
	assert.Equal(t, 3, count)
}

func TestAnnounce_ListenerSeesFormat(t *testing.T) {
	b := New()
	want := caps.MustParse("video/x-h264,profile=baseline")
	b.Register(ListenerFunc(func(c caps.Caps) bool {
		return c.Equal(want)
	}))

	assert.True(t, b.Announce(want))
	assert.False(t, b.Announce(caps.MustParse("video/x-h264")))
}

func TestUnregister(t *testing.T) {
	b := New()
	id := b.Register(ListenerFunc(func(caps.Caps) bool { return true }))
	assert.Equal(t, 1, b.Len())

	assert.True(t, b.Unregister(id))
	assert.False(t, b.Unregister(id))
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Announce(caps.Any()))
}

func TestAnnounce_ListenerMayRegister(t *testing.T) {
	b := New()
	b.Register(ListenerFunc(func(caps.Caps) bool {
		b.Register(ListenerFunc(func(caps.Caps) bool { return true }))
		return false
	}))

	// the listener added mid-broadcast is not part of this announcement
	assert.False(t, b.Announce(caps.Any()))
	assert.True(t, b.Announce(caps.Any()))
}
