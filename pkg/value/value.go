// Package value defines the tagged Value representation shared by the
// compiler and the virtual machine.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags which variant of Value is populated.
type Kind int

const (
	Nil Kind = iota
	Bool
	Number
	Obj
)

// Handle is an opaque reference into a heap, resolved by the heap package.
// loxido never exposes raw pointers to heap objects; everything crossing a
// Value boundary goes through a Handle so the collector can relocate or
// reclaim freely without value-level code noticing.
type Handle uint32

// Value is a tagged union: exactly one of Bool/Number/Obj is meaningful,
// selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Obj    Handle
}

// NilValue is the singleton nil value.
var NilValue = Value{Kind: Nil}

// BoolValue constructs a boolean Value.
func BoolValue(b bool) Value {
	return Value{Kind: Bool, Bool: b}
}

// NumberValue constructs a numeric Value.
func NumberValue(n float64) Value {
	return Value{Kind: Number, Number: n}
}

// ObjValue constructs a Value wrapping a heap handle.
func ObjValue(h Handle) Value {
	return Value{Kind: Obj, Obj: h}
}

// IsFalsey reports Lox falsiness: nil and false are falsey, everything else
// -- including 0 and the empty string -- is truthy.
func (v Value) IsFalsey() bool {
	switch v.Kind {
	case Nil:
		return true
	case Bool:
		return !v.Bool
	default:
		return false
	}
}

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool {
	return v.Kind == Nil
}

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool {
	return v.Kind == Number
}

// IsObj reports whether v holds a heap handle.
func (v Value) IsObj() bool {
	return v.Kind == Obj
}

// Equal implements Lox's `==`: numbers and booleans compare by value, nil
// equals only nil, and objects (including strings, which are interned)
// compare by handle identity.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Nil:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Number:
		return a.Number == b.Number
	case Obj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// FormatNumber renders a float64 the way Lox prints numbers: integral
// values drop the fractional part, -0 prints as "-0", and everything else
// uses the shortest round-tripping decimal representation.
func FormatNumber(n float64) string {
	if math.Signbit(n) && n == 0 {
		return "-0"
	}
	if n == math.Trunc(n) && !math.IsInf(n, 0) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// String renders the Kind's name, mainly for error messages and trace output.
func (k Kind) String() string {
	switch k {
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case Obj:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
