package connector

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/component"
	"github.com/c360/mediaconnector/pipeline"
)

var (
	h264 = caps.MustParse("video/x-h264")
	opus = caps.MustParse("audio/x-opus")
	raw  = caps.MustParse("video/x-raw,format=I420")
)

func quietDeps() component.Dependencies {
	return component.Dependencies{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newTestConnector(t testing.TB, opts ...Option) (*Connector, *pipeline.Bin) {
	t.Helper()
	bin := pipeline.NewBin("pipeline0")
	c, err := New(bin, quietDeps(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, bin
}

func downstream(allowed caps.Caps) pipeline.Peer {
	return pipeline.NewStaticPeer("downstream", allowed)
}
