// Package caps provides the media-format descriptor negotiated between taps.
//
// A Caps value is an ordered list of structures, each a media type name plus a
// set of string fields:
//
//	video/x-h264,profile=baseline,stream-format=avc; video/x-vp8
//
// The connector treats Caps as opaque. It only needs emptiness, equality,
// intersection, and a subset test, which is what this package provides. Values
// are immutable once built.
package caps

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/c360/mediaconnector/errors"
)

const (
	anyLiteral   = "ANY"
	emptyLiteral = "EMPTY"
)

// Structure is a single media type with its constraining fields
type Structure struct {
	Name   string
	Fields map[string]string
}

// Accepts reports whether s satisfies every field constraint in o.
// Fields that o leaves unset are unconstrained.
func (s Structure) Accepts(o Structure) bool {
	if s.Name != o.Name {
		return false
	}
	for k, v := range o.Fields {
		if sv, ok := s.Fields[k]; !ok || sv != v {
			return false
		}
	}
	return true
}

// String renders the structure with fields in key order
func (s Structure) String() string {
	if len(s.Fields) == 0 {
		return s.Name
	}
	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range slices.Sorted(maps.Keys(s.Fields)) {
		fmt.Fprintf(&b, ",%s=%s", k, s.Fields[k])
	}
	return b.String()
}

func (s Structure) equal(o Structure) bool {
	return s.Name == o.Name && maps.Equal(s.Fields, o.Fields)
}

// merge returns the union of both field sets, or false when a shared field disagrees
func (s Structure) merge(o Structure) (Structure, bool) {
	if s.Name != o.Name {
		return Structure{}, false
	}
	fields := make(map[string]string, len(s.Fields)+len(o.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	for k, v := range o.Fields {
		if cur, ok := fields[k]; ok && cur != v {
			return Structure{}, false
		}
		fields[k] = v
	}
	return Structure{Name: s.Name, Fields: fields}, true
}

// Caps is an immutable set of acceptable media formats.
// The zero value is empty.
type Caps struct {
	any        bool
	structures []Structure
}

// Any returns caps accepting every format
func Any() Caps {
	return Caps{any: true}
}

// Empty returns caps accepting nothing
func Empty() Caps {
	return Caps{}
}

// New builds caps from structures. Field maps are copied.
func New(structures ...Structure) Caps {
	out := make([]Structure, 0, len(structures))
	for _, s := range structures {
		out = append(out, Structure{Name: s.Name, Fields: maps.Clone(s.Fields)})
	}
	return Caps{structures: out}
}

// Parse reads the textual form. "" and "EMPTY" yield empty caps, "ANY" yields Any().
func Parse(s string) (Caps, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", emptyLiteral:
		return Empty(), nil
	case anyLiteral:
		return Any(), nil
	}

	var structures []Structure
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.Split(part, ",")
		name := strings.TrimSpace(tokens[0])
		if name == "" {
			return Caps{}, errors.WrapInvalid(
				fmt.Errorf("%w: structure without media type in %q", errors.ErrInvalidCaps, s),
				"Caps", "Parse", "structure name")
		}
		st := Structure{Name: name, Fields: make(map[string]string, len(tokens)-1)}
		for _, field := range tokens[1:] {
			k, v, ok := strings.Cut(field, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				return Caps{}, errors.WrapInvalid(
					fmt.Errorf("%w: malformed field %q", errors.ErrInvalidCaps, field),
					"Caps", "Parse", "field")
			}
			st.Fields[k] = strings.TrimSpace(v)
		}
		structures = append(structures, st)
	}
	return Caps{structures: structures}, nil
}

// MustParse is Parse that panics on error. Intended for literals.
func MustParse(s string) Caps {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// IsAny reports whether c accepts every format
func (c Caps) IsAny() bool {
	return c.any
}

// IsEmpty reports whether c accepts nothing
func (c Caps) IsEmpty() bool {
	return !c.any && len(c.structures) == 0
}

// Structures returns a copy of the structures in order
func (c Caps) Structures() []Structure {
	return slices.Clone(c.structures)
}

// Equal reports structural equality, order included
func (c Caps) Equal(o Caps) bool {
	if c.any || o.any {
		return c.any == o.any
	}
	return slices.EqualFunc(c.structures, o.structures, Structure.equal)
}

// Intersect returns the formats accepted by both a and b
func Intersect(a, b Caps) Caps {
	switch {
	case a.any:
		return b
	case b.any:
		return a
	}

	var out []Structure
	for _, sa := range a.structures {
		for _, sb := range b.structures {
			if m, ok := sa.merge(sb); ok && !slices.ContainsFunc(out, m.equal) {
				out = append(out, m)
			}
		}
	}
	return Caps{structures: out}
}

// Intersect is the method form of Intersect(c, o)
func (c Caps) Intersect(o Caps) Caps {
	return Intersect(c, o)
}

// IsSubsetOf reports whether every format in c is accepted by o.
// Empty caps are a subset of anything; Any is only a subset of Any.
func (c Caps) IsSubsetOf(o Caps) bool {
	if o.any {
		return true
	}
	if c.any {
		return false
	}
	for _, s := range c.structures {
		if !slices.ContainsFunc(o.structures, func(os Structure) bool { return s.Accepts(os) }) {
			return false
		}
	}
	return true
}

// String renders c in the form accepted by Parse
func (c Caps) String() string {
	if c.any {
		return anyLiteral
	}
	if len(c.structures) == 0 {
		return emptyLiteral
	}
	parts := make([]string, len(c.structures))
	for i, s := range c.structures {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}
