package pipeline

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPad struct {
	name   string
	dir    Direction
	active atomic.Bool
}

func (p *testPad) Name() string { return p.name }
func (p *testPad) Direction() Direction { return p.dir }
func (p *testPad) Active() bool { return p.active.Load() }
func (p *testPad) SetActive(active bool) { p.active.Store(active) }

func TestState_String(t *testing.T) {
	assert.Equal(t, "NULL", StateNull.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "PAUSED", StatePaused.String())
	assert.Equal(t, "PLAYING", StatePlaying.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestDirection_Text(t *testing.T) {
	for _, d := range []Direction{DirectionSink, DirectionSource} {
		b, err := d.MarshalText()
		require.NoError(t, err)

		var got Direction
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, d, got)
	}
	b, _ := DirectionSource.MarshalText()
	assert.Equal(t, "source", string(b))

	var d Direction
	assert.Error(t, d.UnmarshalText([]byte("sideways")))
}

func TestActivationFor(t *testing.T) {
	tests := []struct {
		name                     string
		current, pending, target State
		expected                 Activation
	}{
		{"all null", StateNull, StateNull, StateNull, BelowActive},
		{"ready", StateReady, StateNull, StateReady, BelowActive},
		{"paused", StatePaused, StateNull, StatePaused, ActiveOrPending},
		{"pending paused", StateReady, StatePaused, StateReady, ActiveOrPending},
		{"target playing", StateNull, StateNull, StatePlaying, ActiveOrPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ActivationFor(tt.current, tt.pending, tt.target))
		})
	}
}

func TestBin_ChildrenAndPads(t *testing.T) {
	bin := NewBin("bin0")
	conv := NewAgnostic("agnosticbin0")

	require.NoError(t, bin.AddChild(conv))
	assert.Error(t, bin.AddChild(conv))
	assert.Len(t, bin.Children(), 1)

	pad := &testPad{name: "src_0", dir: DirectionSource}
	require.NoError(t, bin.Expose(pad))
	assert.Error(t, bin.Expose(pad))
	assert.Len(t, bin.Pads(), 1)

	out, err := conv.RequestOutput()
	require.NoError(t, err)
	require.True(t, bin.Bind(pad, out))
	target, ok := bin.Target("src_0")
	require.True(t, ok)
	assert.Equal(t, out, target)

	pad.SetActive(true)
	require.NoError(t, bin.Withdraw(pad))
	assert.False(t, pad.Active())
	_, ok = bin.Target("src_0")
	assert.False(t, ok)
	assert.Error(t, bin.Withdraw(pad))

	require.NoError(t, bin.RemoveChild(conv))
	assert.Error(t, bin.RemoveChild(conv))
}

func TestBin_BindRequiresExposedPadAndChildOwner(t *testing.T) {
	bin := NewBin("bin0")
	conv := NewAgnostic("agnosticbin0")
	out, err := conv.RequestOutput()
	require.NoError(t, err)

	pad := &testPad{name: "src_0", dir: DirectionSource}
	assert.False(t, bin.Bind(pad, out), "pad not exposed")

	require.NoError(t, bin.Expose(pad))
	assert.False(t, bin.Bind(pad, out), "owner not a child")

	require.NoError(t, bin.AddChild(conv))
	assert.True(t, bin.Bind(pad, out))
	assert.False(t, bin.Bind(pad, nil))
}

func TestBin_BindHook(t *testing.T) {
	bin := NewBin("bin0")
	conv := NewAgnostic("agnosticbin0")
	require.NoError(t, bin.AddChild(conv))
	pad := &testPad{name: "src_0", dir: DirectionSource}
	require.NoError(t, bin.Expose(pad))
	out, err := conv.RequestOutput()
	require.NoError(t, err)

	bin.SetBindHook(func(Pad, Handle) bool { return false })
	assert.False(t, bin.Bind(pad, out))

	bin.SetBindHook(nil)
	assert.True(t, bin.Bind(pad, out))
}

func TestBin_ActivationState(t *testing.T) {
	bin := NewBin("bin0")
	assert.Equal(t, BelowActive, bin.ActivationState())

	bin.SetState(StateReady, StatePaused, StatePlaying)
	assert.Equal(t, ActiveOrPending, bin.ActivationState())
}

func TestAgnostic_Outputs(t *testing.T) {
	conv := NewAgnostic("agnosticbin0")
	assert.Equal(t, "sink", conv.Input().Name())
	assert.Equal(t, conv, conv.Input().Owner())

	a, err := conv.RequestOutput()
	require.NoError(t, err)
	b, err := conv.RequestOutput()
	require.NoError(t, err)
	assert.Equal(t, "src_0", a.Name())
	assert.Equal(t, "src_1", b.Name())
	assert.Equal(t, 2, conv.Outputs())

	require.NoError(t, conv.ReleaseOutput(a))
	assert.Error(t, conv.ReleaseOutput(a))
	assert.Equal(t, 1, conv.Outputs())
	assert.Equal(t, 1, conv.Released())

	other := NewAgnostic("agnosticbin1")
	foreign, err := other.RequestOutput()
	require.NoError(t, err)
	assert.Error(t, conv.ReleaseOutput(foreign))
}

func TestAgnostic_RefuseOutputs(t *testing.T) {
	conv := NewAgnostic("agnosticbin0")
	conv.RefuseOutputs(true)
	_, err := conv.RequestOutput()
	assert.Error(t, err)

	conv.RefuseOutputs(false)
	_, err = conv.RequestOutput()
	assert.NoError(t, err)
}

func TestAgnosticFactory_Numbering(t *testing.T) {
	f := NewAgnosticFactory("")
	a, err := f.New()
	require.NoError(t, err)
	b, err := f.New()
	require.NoError(t, err)
	assert.Equal(t, "agnosticbin0", a.Name())
	assert.Equal(t, "agnosticbin1", b.Name())

	g := NewAgnosticFactory("conv")
	c, err := g.New()
	require.NoError(t, err)
	assert.Equal(t, "conv0", c.Name())
}
