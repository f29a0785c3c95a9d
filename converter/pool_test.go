package converter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/pipeline"
)

func newTestPool(t *testing.T) (*Pool, *pipeline.Bin) {
	t.Helper()
	bin := pipeline.NewBin("bin0")
	return NewPool(bin, pipeline.NewAgnosticFactory("")), bin
}

func TestPool_Create(t *testing.T) {
	pool, bin := newTestPool(t)

	sg, err := pool.Create("sink_0")
	require.NoError(t, err)
	assert.Equal(t, "agnosticbin0", sg.Name())
	assert.Equal(t, "sink_0", sg.SinkName())
	assert.Equal(t, 1, pool.Refs(sg))
	assert.Equal(t, 1, pool.Len())
	require.Len(t, bin.Children(), 1)
	assert.Equal(t, "agnosticbin0", bin.Children()[0].Name())

	assert.Same(t, sg, pool.BySink("sink_0"))
	assert.Same(t, sg, pool.ByInput(sg.Converter().Input()))
	assert.Nil(t, pool.BySink("sink_1"))
	assert.Nil(t, pool.ByInput(nil))
}

func TestPool_CreateFactoryError(t *testing.T) {
	bin := pipeline.NewBin("bin0")
	pool := NewPool(bin, FactoryFunc(func() (pipeline.Converter, error) {
		return nil, fmt.Errorf("plugin missing")
	}))

	_, err := pool.Create("sink_0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pool.Create: converter instantiation failed")
	assert.Equal(t, 0, pool.Len())
	assert.Empty(t, bin.Children())
}

func TestPool_CreateHostRejects(t *testing.T) {
	bin := pipeline.NewBin("bin0")
	require.NoError(t, bin.AddChild(pipeline.NewAgnostic("dup")))
	pool := NewPool(bin, FactoryFunc(func() (pipeline.Converter, error) {
		return pipeline.NewAgnostic("dup"), nil
	}))

	_, err := pool.Create("sink_0")
	require.Error(t, err)
	assert.Equal(t, 0, pool.Len())
}

func TestSubgraph_Observe(t *testing.T) {
	pool, _ := newTestPool(t)
	sg, err := pool.Create("sink_0")
	require.NoError(t, err)

	raw := caps.MustParse("video/x-raw,format=I420")
	sg.Observe(raw)
	sg.Observe(caps.MustParse("video/x-raw,format=I420"))
	sg.Observe(caps.Empty())
	assert.Len(t, sg.Formats(), 1)

	sg.Observe(caps.MustParse("audio/x-raw"))
	assert.Len(t, sg.Formats(), 2)
}

func TestPool_FindCompatible(t *testing.T) {
	pool, _ := newTestPool(t)
	a, err := pool.Create("sink_0")
	require.NoError(t, err)
	b, err := pool.Create("sink_1")
	require.NoError(t, err)

	assert.Nil(t, pool.FindCompatible(caps.MustParse("video/x-h264")), "nothing observed yet")

	a.Observe(caps.MustParse("audio/x-opus,rate=48000"))
	b.Observe(caps.MustParse("video/x-h264,profile=baseline"))

	assert.Same(t, b, pool.FindCompatible(caps.MustParse("video/x-h264")))
	assert.Same(t, a, pool.FindCompatible(caps.MustParse("audio/x-opus")))
	assert.Nil(t, pool.FindCompatible(caps.MustParse("video/x-h264,profile=high")))
	assert.Nil(t, pool.FindCompatible(caps.Empty()))
	assert.Same(t, a, pool.FindCompatible(caps.Any()), "first registered wins")
}

func TestPool_OutputsHoldReferences(t *testing.T) {
	pool, bin := newTestPool(t)
	sg, err := pool.Create("sink_0")
	require.NoError(t, err)

	out, err := pool.RequestOutput(sg)
	require.NoError(t, err)
	assert.Equal(t, "src_0", out.Name())
	assert.Equal(t, 2, pool.Refs(sg))
	assert.Len(t, pool.Outputs(sg), 1)

	// sink released first: the output keeps the subgraph alive
	require.NoError(t, pool.Unref(sg))
	assert.Equal(t, 1, pool.Len())
	assert.Len(t, bin.Children(), 1)

	require.NoError(t, pool.ReleaseOutput(sg, out))
	assert.Equal(t, 0, pool.Len())
	assert.Empty(t, bin.Children())

	conv := sg.Converter().(*pipeline.Agnostic)
	assert.Equal(t, 1, conv.Released())
}

func TestPool_ReleaseOutputNotGranted(t *testing.T) {
	pool, _ := newTestPool(t)
	a, err := pool.Create("sink_0")
	require.NoError(t, err)
	b, err := pool.Create("sink_1")
	require.NoError(t, err)

	out, err := pool.RequestOutput(a)
	require.NoError(t, err)

	err = pool.ReleaseOutput(b, out)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 2, pool.Refs(a))
}

func TestPool_RequestOutputRefused(t *testing.T) {
	pool, _ := newTestPool(t)
	sg, err := pool.Create("sink_0")
	require.NoError(t, err)
	sg.Converter().(*pipeline.Agnostic).RefuseOutputs(true)

	_, err = pool.RequestOutput(sg)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 1, pool.Refs(sg), "reservation rolled back")
}

func TestPool_RequestOutputAfterRelease(t *testing.T) {
	pool, _ := newTestPool(t)
	sg, err := pool.Create("sink_0")
	require.NoError(t, err)
	require.NoError(t, pool.Unref(sg))

	_, err = pool.RequestOutput(sg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConverter)
	assert.True(t, errors.IsFatal(err))

	// releasing twice is harmless
	assert.NoError(t, pool.Release(sg))
	assert.NoError(t, pool.Unref(sg))
}

func TestPool_Forget(t *testing.T) {
	pool, bin := newTestPool(t)
	_, err := pool.Create("sink_0")
	require.NoError(t, err)

	pool.Forget()
	assert.Equal(t, 0, pool.Len())
	assert.Len(t, bin.Children(), 1, "host is left alone")
}

func TestPool_ConcurrentOutputs(t *testing.T) {
	pool, bin := newTestPool(t)
	sg, err := pool.Create("sink_0")
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := pool.RequestOutput(sg)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, pool.ReleaseOutput(sg, out))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, pool.Refs(sg))
	assert.Len(t, bin.Children(), 1)
}
