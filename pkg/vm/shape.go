package vm

import "sync"

// PropertyAttributes are the attribute bits of a named property.
type PropertyAttributes uint8

const (
	AttrWritable PropertyAttributes = 1 << iota
	AttrEnumerable
	AttrConfigurable
	// attrAccessor marks the slot as holding an *Accessor box instead of a
	// plain value. Internal; never exposed through descriptors.
	attrAccessor
)

// AttrDefault is the "all present" shorthand for new data properties.
const AttrDefault = AttrWritable | AttrEnumerable | AttrConfigurable

// PropertyKey is a string (atom) or symbol key. The zero key is invalid.
type PropertyKey struct {
	atom *Atom
	sym  *Symbol
}

// AtomKey builds a string-named key.
func AtomKey(a *Atom) PropertyKey { return PropertyKey{atom: a} }

// SymbolKey builds a symbol-named key.
func SymbolKey(s *Symbol) PropertyKey { return PropertyKey{sym: s} }

func (k PropertyKey) IsSymbol() bool { return k.sym != nil }

// Atom returns the key's atom; nil for symbol keys.
func (k PropertyKey) Atom() *Atom { return k.atom }

// Sym returns the key's symbol; nil for string keys.
func (k PropertyKey) Sym() *Symbol { return k.sym }

func (k PropertyKey) String() string {
	if k.sym != nil {
		if k.sym.Description != nil {
			return "Symbol(" + k.sym.Description.String() + ")"
		}
		return "Symbol()"
	}
	return k.atom.String()
}

type transitionLabel struct {
	key   PropertyKey
	attrs PropertyAttributes
}

// ShapeField describes one named slot of a shape's layout.
type ShapeField struct {
	Key    PropertyKey
	Attrs  PropertyAttributes
	Offset int
}

// Shape is an immutable node in the hidden-class transition tree. Each shape
// records its parent, the transition label that produced it, and the full
// slot layout. Two objects that performed the same transition sequence share
// a pointer-equal shape.
//
// The transitions map is the only mutable part. It is guarded by mu so that
// contexts sharing an instance observe publish-once insertion; a shape once
// linked is never modified.
type Shape struct {
	parent      *Shape
	label       transitionLabel
	fields      []ShapeField
	transitions map[transitionLabel]*Shape
	mu          sync.Mutex
}

// NewRootShape creates the empty root of a transition tree. Each VM instance
// owns exactly one.
func NewRootShape() *Shape {
	return &Shape{transitions: make(map[transitionLabel]*Shape)}
}

// Lookup finds the field for key in this shape's layout.
func (s *Shape) Lookup(key PropertyKey) (ShapeField, bool) {
	for i := range s.fields {
		if s.fields[i].Key == key {
			return s.fields[i], true
		}
	}
	return ShapeField{}, false
}

// FieldCount returns the number of named slots the shape describes.
func (s *Shape) FieldCount() int { return len(s.fields) }

// Fields returns the shape's slot layout in definition order. Callers must
// not mutate the returned slice.
func (s *Shape) Fields() []ShapeField { return s.fields }

// Transition returns the child shape for adding key with attrs, creating and
// publishing it on first use.
func (s *Shape) Transition(key PropertyKey, attrs PropertyAttributes) *Shape {
	label := transitionLabel{key: key, attrs: attrs}
	s.mu.Lock()
	defer s.mu.Unlock()
	if child, ok := s.transitions[label]; ok {
		return child
	}
	fields := make([]ShapeField, len(s.fields), len(s.fields)+1)
	copy(fields, s.fields)
	fields = append(fields, ShapeField{Key: key, Attrs: attrs, Offset: len(s.fields)})
	child := &Shape{
		parent:      s,
		label:       label,
		fields:      fields,
		transitions: make(map[transitionLabel]*Shape),
	}
	s.transitions[label] = child
	return child
}

// Reconfigured returns a fresh shape identical to s except that key carries
// the given attributes. Reconfiguration leaves the transition tree: the
// resulting shape is private to the object that requested it.
func (s *Shape) Reconfigured(key PropertyKey, attrs PropertyAttributes) *Shape {
	fields := make([]ShapeField, len(s.fields))
	copy(fields, s.fields)
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Attrs = attrs
		}
	}
	return &Shape{
		parent:      s.parent,
		fields:      fields,
		transitions: make(map[transitionLabel]*Shape),
	}
}

// Without returns a fresh shape with key removed and later offsets shifted
// down. Like Reconfigured, the result is private.
func (s *Shape) Without(key PropertyKey) (*Shape, int) {
	removed := -1
	fields := make([]ShapeField, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Key == key {
			removed = f.Offset
			continue
		}
		if removed >= 0 && f.Offset > removed {
			f.Offset--
		}
		fields = append(fields, f)
	}
	if removed < 0 {
		return s, -1
	}
	return &Shape{
		parent:      s.parent,
		fields:      fields,
		transitions: make(map[transitionLabel]*Shape),
	}, removed
}
