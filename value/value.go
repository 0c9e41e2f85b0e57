// Package value implements the submission value tree described by
// the anomaly engine's data model: a tagged union of Null, Bool, Int,
// Float, Bytes, Seq, and Map nodes, with byte-string (not text) keys
// so a fuzzed or otherwise non-UTF-8 key survives the round trip.
//
// Value is immutable once constructed. The injector package builds
// derivative trees by taking shallow copies through the With* methods
// below; siblings that weren't chosen for mutation are shared, never
// copied.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which alternative of Value is populated.
type Kind int

// The tagged-union alternatives. The zero Value is Null.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindBytes
	KindSeq
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	case KindSeq:
		return "seq"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Entry is one key/value pair of a Map-kind Value. Keys are raw
// bytes: the wire codecs decide how to represent them, but the tree
// itself never assumes they're text.
type Entry struct {
	Key   []byte
	Value Value
}

// Value is one node of a submission tree.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	byt  []byte
	seq  []Value
	mp   []Entry
}

// Null returns the Null leaf.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a Bool leaf.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an Int leaf.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a Float leaf. NaN and +/-Inf are valid.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bytes returns a Bytes leaf. b is copied; the caller's slice is not
// retained, so the caller may reuse or mutate it afterward.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, byt: append([]byte(nil), b...)}
}

// Str is a convenience for Bytes([]byte(s)).
func Str(s string) Value { return Bytes([]byte(s)) }

// Seq returns an ordered-sequence node. elems is copied.
func Seq(elems ...Value) Value {
	return Value{kind: KindSeq, seq: append([]Value(nil), elems...)}
}

// Map returns a key->value mapping node, preserving entries' order.
// entries is copied.
func Map(entries ...Entry) Value {
	return Value{kind: KindMap, mp: append([]Entry(nil), entries...)}
}

// Kind reports which alternative v holds.
func (v Value) Kind() Kind { return v.kind }

// IsLeaf reports whether v is a scalar or byte-string, i.e. not a
// Seq or Map.
func (v Value) IsLeaf() bool { return v.kind != KindSeq && v.kind != KindMap }

// BoolValue returns the bool payload; only meaningful if Kind() ==
// KindBool.
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the int payload; only meaningful if Kind() ==
// KindInt.
func (v Value) IntValue() int64 { return v.i }

// FloatValue returns the float payload; only meaningful if Kind() ==
// KindFloat.
func (v Value) FloatValue() float64 { return v.f }

// BytesValue returns the byte-string payload; only meaningful if
// Kind() == KindBytes. The returned slice must not be mutated.
func (v Value) BytesValue() []byte { return v.byt }

// Elems returns the sequence elements; only meaningful if Kind() ==
// KindSeq. The returned slice must not be mutated.
func (v Value) Elems() []Value { return v.seq }

// Entries returns the map entries in insertion order; only
// meaningful if Kind() == KindMap. The returned slice must not be
// mutated.
func (v Value) Entries() []Entry { return v.mp }

// WithMapEntry returns a shallow copy of v (which must be a Map) with
// the value at entry index i replaced by nv. The key is unchanged.
func (v Value) WithMapEntry(i int, nv Value) Value {
	cp := append([]Entry(nil), v.mp...)
	cp[i] = Entry{Key: cp[i].Key, Value: nv}
	return Value{kind: KindMap, mp: cp}
}

// WithMapKeyRenamed returns a shallow copy of v (which must be a Map)
// with the key at entry index i replaced by nk. The value is
// unchanged.
func (v Value) WithMapKeyRenamed(i int, nk []byte) Value {
	cp := append([]Entry(nil), v.mp...)
	cp[i] = Entry{Key: append([]byte(nil), nk...), Value: cp[i].Value}
	return Value{kind: KindMap, mp: cp}
}

// WithSeqElem returns a shallow copy of v (which must be a Seq) with
// the element at index i replaced by nv.
func (v Value) WithSeqElem(i int, nv Value) Value {
	cp := append([]Value(nil), v.seq...)
	cp[i] = nv
	return Value{kind: KindSeq, seq: cp}
}

// Stringify renders a leaf the way the mutator and the form/URL-param
// codecs need it: numbers and booleans through strconv, bytes passed
// through verbatim, Null as an empty string. Non-leaf values render
// through fmt's default %v format, which should never happen in
// practice since Stringify is only ever called on leaves.
//
// This loses the original type on round-trip for numeric and boolean
// leaves, by design: downstream fingerprinting depends on the
// stringified form remaining stable, per the design notes this
// behavior is ported from.
func Stringify(v Value) []byte {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b))
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10))
	case KindFloat:
		switch {
		case math.IsNaN(v.f):
			return []byte("NaN")
		case math.IsInf(v.f, 1):
			return []byte("Infinity")
		case math.IsInf(v.f, -1):
			return []byte("-Infinity")
		default:
			return []byte(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
	case KindBytes:
		return v.byt
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
