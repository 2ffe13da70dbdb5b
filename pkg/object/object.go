// Package object defines the heap-allocated kinds Value handles resolve to:
// strings, functions, upvalues, closures, classes, instances, bound
// methods, and natives.
package object

import (
	"github.com/kristofer/loxido/pkg/chunk"
	"github.com/kristofer/loxido/pkg/heap"
	"github.com/kristofer/loxido/pkg/value"
)

// String is an interned, immutable Lox string. Equality between two Lox
// string values is handle identity, never content comparison, because the
// heap guarantees only one String object exists per distinct content.
// Defined in package heap to let Heap.Intern allocate one directly;
// re-exported here so the rest of loxido can speak in terms of object.String.
type String = heap.String

// NewString allocates an uninterned String wrapper; callers that want
// interning semantics should go through Heap.Intern instead.
var NewString = heap.NewString

// Function is a compiled function prototype: its arity, its bytecode, and
// the name it was declared with ("" for the top-level script).
type Function struct {
	Arity      int
	UpvalueCnt int
	Chunk      *chunk.Chunk
	Name       value.Handle // handle to an interned String, "" for the script
}

// NewFunction allocates an empty Function prototype for name.
func NewFunction(name value.Handle) *Function {
	return &Function{Chunk: chunk.New(), Name: name}
}

func (f *Function) Trace(h *heap.Heap) {
	h.MarkObject(f.Name)
	for _, c := range f.Chunk.Constants {
		h.MarkValue(c)
	}
}

func (f *Function) Size() int {
	return 64 + len(f.Chunk.Code)*16 + len(f.Chunk.Constants)*24
}

// Upvalue is either open (aliasing a live stack slot) or closed (owning a
// value copied out of a stack frame that has since returned).
type Upvalue struct {
	// Location is the stack slot index this upvalue aliases while open.
	Location int
	// Closed holds the captured value once the upvalue has been closed;
	// IsClosed distinguishes a closed-over nil from "still open".
	Closed   value.Value
	IsClosed bool
}

// NewUpvalue creates an open upvalue pointing at the given stack slot.
func NewUpvalue(location int) *Upvalue {
	return &Upvalue{Location: location}
}

func (u *Upvalue) Trace(h *heap.Heap) {
	if u.IsClosed {
		h.MarkValue(u.Closed)
	}
}

func (u *Upvalue) Size() int {
	return 32
}

// Closure pairs a Function prototype with the upvalues it captured at
// creation time.
type Closure struct {
	Function value.Handle // handle to a Function
	Upvalues []value.Handle
}

// NewClosure creates a closure over fn with no upvalues captured yet; the
// compiler's Closure instruction tells the VM how many slots to fill in.
func NewClosure(fn value.Handle, upvalueCount int) *Closure {
	return &Closure{Function: fn, Upvalues: make([]value.Handle, upvalueCount)}
}

func (c *Closure) Trace(h *heap.Heap) {
	h.MarkObject(c.Function)
	for _, uv := range c.Upvalues {
		h.MarkObject(uv)
	}
}

func (c *Closure) Size() int {
	return 24 + len(c.Upvalues)*4
}

// Class is a runtime class object: its name and its method table, keyed by
// interned method-name String handles.
type Class struct {
	Name    value.Handle
	Methods map[value.Handle]value.Value
}

// NewClass allocates an empty class named name.
func NewClass(name value.Handle) *Class {
	return &Class{Name: name, Methods: make(map[value.Handle]value.Value)}
}

// CloneMethods produces an independent copy of c's method table, the
// snapshot Inherit installs into a subclass: later edits to either class's
// methods never affect the other.
func (c *Class) CloneMethods() map[value.Handle]value.Value {
	clone := make(map[value.Handle]value.Value, len(c.Methods))
	for k, v := range c.Methods {
		clone[k] = v
	}
	return clone
}

func (c *Class) Trace(h *heap.Heap) {
	h.MarkObject(c.Name)
	h.MarkTable(c.Methods)
}

func (c *Class) Size() int {
	return 32 + len(c.Methods)*24
}

// Instance is a runtime object: a pointer to its class plus a dynamic
// String->Value field table.
type Instance struct {
	Class  value.Handle
	Fields map[value.Handle]value.Value
}

// NewInstance allocates a new instance of class with no fields set.
func NewInstance(class value.Handle) *Instance {
	return &Instance{Class: class, Fields: make(map[value.Handle]value.Value)}
}

func (i *Instance) Trace(h *heap.Heap) {
	h.MarkObject(i.Class)
	h.MarkTable(i.Fields)
}

func (i *Instance) Size() int {
	return 32 + len(i.Fields)*24
}

// BoundMethod freezes a receiver together with the method closure looked up
// on it, the value produced by `instance.method` without a call.
type BoundMethod struct {
	Receiver value.Value
	Method   value.Handle // handle to a Closure
}

// NewBoundMethod pairs receiver with method.
func NewBoundMethod(receiver value.Value, method value.Handle) *BoundMethod {
	return &BoundMethod{Receiver: receiver, Method: method}
}

func (b *BoundMethod) Trace(h *heap.Heap) {
	h.MarkValue(b.Receiver)
	h.MarkObject(b.Method)
}

func (b *BoundMethod) Size() int {
	return 24
}

// NativeFn is the signature every native (built-in) function must match:
// it receives its already-evaluated arguments and returns a single Value,
// or panics with a string to signal a runtime error (the VM's native-call
// site recovers this into a RuntimeError).
type NativeFn func(args []value.Value) value.Value

// NativeFunction wraps a Go function exposed to Lox code as a callable
// global, e.g. clock.
type NativeFunction struct {
	Name string
	Fn   NativeFn
}

// NewNativeFunction wraps fn under name.
func NewNativeFunction(name string, fn NativeFn) *NativeFunction {
	return &NativeFunction{Name: name, Fn: fn}
}

func (n *NativeFunction) Trace(h *heap.Heap) {}

func (n *NativeFunction) Size() int {
	return 16
}

func (n *NativeFunction) String() string {
	return "<native fn>"
}
