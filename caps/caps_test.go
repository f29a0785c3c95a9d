package caps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/c360/mediaconnector/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		empty    bool
		any      bool
	}{
		{name: "empty string", input: "", expected: "EMPTY", empty: true},
		{name: "empty literal", input: "EMPTY", expected: "EMPTY", empty: true},
		{name: "any literal", input: " ANY ", expected: "ANY", any: true},
		{name: "bare media type", input: "video/x-vp8", expected: "video/x-vp8"},
		{
			name:     "fields sorted on output",
			input:    "video/x-h264, stream-format=avc, profile=baseline",
			expected: "video/x-h264,profile=baseline,stream-format=avc",
		},
		{
			name:     "multiple structures",
			input:    "audio/x-opus;audio/x-raw,rate=48000",
			expected: "audio/x-opus; audio/x-raw,rate=48000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.String())
			assert.Equal(t, tt.empty, c.IsEmpty())
			assert.Equal(t, tt.any, c.IsAny())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, input := range []string{",rate=1", "audio/x-raw,rate", "audio/x-raw,=1"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidCaps)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("audio/x-raw,rate") })
}

func TestIntersect(t *testing.T) {
	h264 := MustParse("video/x-h264")
	baseline := MustParse("video/x-h264,profile=baseline")
	high := MustParse("video/x-h264,profile=high")
	vp8 := MustParse("video/x-vp8")

	assert.True(t, Intersect(Any(), baseline).Equal(baseline))
	assert.True(t, Intersect(baseline, Any()).Equal(baseline))
	assert.True(t, Intersect(Empty(), Any()).IsEmpty())
	assert.True(t, Intersect(h264, vp8).IsEmpty())
	assert.True(t, Intersect(baseline, high).IsEmpty())
	assert.True(t, Intersect(h264, baseline).Equal(baseline))

	multi := MustParse("video/x-vp8; video/x-h264,profile=high")
	assert.True(t, baseline.Intersect(h264).Intersect(multi).IsEmpty())
	assert.Equal(t, "video/x-h264,profile=high", h264.Intersect(multi).String())
}

func TestIntersect_MergesFields(t *testing.T) {
	a := MustParse("audio/x-raw,rate=48000")
	b := MustParse("audio/x-raw,channels=2")
	assert.Equal(t, "audio/x-raw,channels=2,rate=48000", Intersect(a, b).String())
}

func TestIsSubsetOf(t *testing.T) {
	baseline := MustParse("video/x-h264,profile=baseline")
	h264 := MustParse("video/x-h264")

	assert.True(t, baseline.IsSubsetOf(h264))
	assert.False(t, h264.IsSubsetOf(baseline))
	assert.True(t, baseline.IsSubsetOf(Any()))
	assert.False(t, Any().IsSubsetOf(baseline))
	assert.True(t, Empty().IsSubsetOf(baseline))
	assert.False(t, MustParse("video/x-vp8").IsSubsetOf(h264))
}

func TestEqual(t *testing.T) {
	assert.True(t, Any().Equal(Any()))
	assert.False(t, Any().Equal(Empty()))
	assert.True(t, Empty().Equal(Caps{}))
	assert.True(t, MustParse("video/x-vp8").Equal(New(Structure{Name: "video/x-vp8"})))
	assert.False(t, MustParse("video/x-vp8; audio/x-opus").Equal(MustParse("audio/x-opus; video/x-vp8")))
}

func TestNew_CopiesFields(t *testing.T) {
	fields := map[string]string{"rate": "8000"}
	c := New(Structure{Name: "audio/x-raw", Fields: fields})
	fields["rate"] = "16000"
	assert.Equal(t, "audio/x-raw,rate=8000", c.String())
}

func genCaps() *rapid.Generator[Caps] {
	return rapid.Custom(func(t *rapid.T) Caps {
		n := rapid.IntRange(0, 3).Draw(t, "structures")
		structures := make([]Structure, 0, n)
		for i := 0; i < n; i++ {
			name := rapid.SampledFrom([]string{"video/x-h264", "video/x-vp8", "audio/x-opus", "audio/x-raw"}).Draw(t, "name")
			fields := rapid.MapOfN(
				rapid.SampledFrom([]string{"profile", "rate", "channels"}),
				rapid.StringMatching(`[a-z0-9]{1,6}`),
				0, 3,
			).Draw(t, "fields")
			structures = append(structures, Structure{Name: name, Fields: fields})
		}
		return New(structures...)
	})
}

func TestProperty_IntersectionIsSubsetOfBoth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genCaps().Draw(t, "a")
		b := genCaps().Draw(t, "b")
		i := Intersect(a, b)
		if !i.IsSubsetOf(a) || !i.IsSubsetOf(b) {
			t.Fatalf("intersection %q not a subset of %q and %q", i, a, b)
		}
	})
}

func TestProperty_StringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := genCaps().Draw(t, "caps")
		parsed, err := Parse(c.String())
		if err != nil {
			t.Fatalf("parse %q: %v", c, err)
		}
		if parsed.String() != c.String() {
			t.Fatalf("round trip changed %q into %q", c, parsed)
		}
	})
}
