// Package heap implements loxido's object arena and tri-color
// mark-and-sweep garbage collector. A single Heap instance is shared by the
// compiler (which allocates function prototypes and constant strings) and
// the VM (which allocates everything else); nothing in this package is
// safe for concurrent use, matching the single-threaded VM it serves.
package heap

import (
	"fmt"

	"github.com/kristofer/loxido/pkg/value"
)

// growFactor is the multiplier applied to bytesAllocated to pick the next
// collection threshold, mirroring the classic clox/loxido growth policy.
const growFactor = 2

// initialThreshold is the number of bytes allocated before the first
// collection is considered, 1 MiB.
const initialThreshold = 1024 * 1024

// String is an interned, immutable Lox string. It lives in this package
// (rather than alongside the other object kinds) purely to let Intern
// allocate one without object importing heap and heap importing object
// both; package object re-exports it as object.String.
type String struct {
	Value string
}

// NewString allocates an uninterned String wrapper; callers that want
// interning semantics should go through Heap.Intern instead.
func NewString(s string) *String {
	return &String{Value: s}
}

func (s *String) Trace(h *Heap) {}

func (s *String) Size() int {
	return 16 + len(s.Value)
}

// Object is implemented by every heap-allocated kind (strings, functions,
// closures, upvalues, classes, instances, bound methods, natives). Trace
// must call Heap.MarkValue/MarkObject for every Value or Handle the object
// holds a reference to.
type Object interface {
	Trace(h *Heap)
	Size() int
}

type entry struct {
	obj    Object
	marked bool
}

// Heap owns every live object by Handle, the string intern table, and the
// gray worklist used during collection.
type Heap struct {
	objects   []entry
	strings   map[string]value.Handle
	gray      []value.Handle
	allocated int
	nextGC    int

	// StressGC makes ShouldGC always report true, so the VM collects before
	// every instruction it dispatches. Alloc and Intern never collect, with
	// or without it. Tests that want to exercise the collector
	// deterministically set this before driving the VM.
	StressGC bool

	// LogGC enables verbose collection tracing to stdout-equivalent output
	// via the supplied sink; nil disables logging.
	LogGC func(format string, args ...any)
}

// New creates an empty Heap ready to allocate.
func New() *Heap {
	return &Heap{
		strings: make(map[string]value.Handle),
		nextGC:  initialThreshold,
	}
}

func (h *Heap) log(format string, args ...any) {
	if h.LogGC != nil {
		h.LogGC(format, args...)
	}
}

// Alloc stores obj on the heap and returns its Handle. Any Value already on
// the VM stack or temp roots must be rooted before calling Alloc if it
// could otherwise be collected; Alloc itself never triggers a collection,
// only Collect runs one, and callers choose when to check ShouldGC.
func (h *Heap) Alloc(obj Object) value.Handle {
	size := obj.Size()
	h.objects = append(h.objects, entry{obj: obj})
	h.allocated += size
	handle := value.Handle(len(h.objects) - 1)
	h.log("alloc(handle:%d size:%d total:%d next:%d)", handle, size, h.allocated, h.nextGC)
	return handle
}

// Intern returns the Handle for a canonical String object holding s,
// allocating and registering one if this is the first occurrence.
func (h *Heap) Intern(s string) value.Handle {
	if handle, ok := h.strings[s]; ok {
		return handle
	}
	handle := h.Alloc(NewString(s))
	h.strings[s] = handle
	return handle
}

// Deref resolves a Handle to its underlying Object. Panics on a stale or
// out-of-range handle, which indicates a rooting bug elsewhere in the VM or
// compiler -- there is no recovering from a dangling reference into the
// heap.
func (h *Heap) Deref(handle value.Handle) Object {
	e := &h.objects[handle]
	if e.obj == nil {
		panic(fmt.Sprintf("heap: dereferenced freed handle %d", handle))
	}
	return e.obj
}

// ShouldGC reports whether the allocator has crossed its next collection
// threshold, or StressGC is forced on.
func (h *Heap) ShouldGC() bool {
	return h.StressGC || h.allocated > h.nextGC
}

// MarkValue marks value's referent, if it holds one, as reachable.
func (h *Heap) MarkValue(v value.Value) {
	if v.IsObj() {
		h.MarkObject(v.Obj)
	}
}

// MarkObject marks the object at handle as reachable and enqueues it on the
// gray worklist for tracing, unless it is already marked.
func (h *Heap) MarkObject(handle value.Handle) {
	e := &h.objects[handle]
	if e.obj == nil || e.marked {
		return
	}
	e.marked = true
	h.gray = append(h.gray, handle)
	h.log("mark(handle:%d)", handle)
}

// MarkTable marks every key and value stored in a String-keyed table, the
// shape used for globals, class methods, and instance fields.
func (h *Heap) MarkTable(table map[value.Handle]value.Value) {
	for k, v := range table {
		h.MarkObject(k)
		h.MarkValue(v)
	}
}

// Collect runs one full mark-and-sweep cycle: trace from whatever roots the
// caller has already marked, drop unreachable interned strings, free
// unreachable objects, and recompute the next threshold.
func (h *Heap) Collect() {
	before := h.allocated

	h.traceReferences()
	h.removeWhiteStrings()
	h.sweep()
	h.nextGC = h.allocated * growFactor

	h.log("collected(freed:%d before:%d after:%d next:%d)", before-h.allocated, before, h.allocated, h.nextGC)
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		n := len(h.gray) - 1
		handle := h.gray[n]
		h.gray = h.gray[:n]
		h.objects[handle].obj.Trace(h)
	}
}

func (h *Heap) removeWhiteStrings() {
	for s, handle := range h.strings {
		if !h.objects[handle].marked {
			delete(h.strings, s)
		}
	}
}

func (h *Heap) sweep() {
	for i := range h.objects {
		e := &h.objects[i]
		if e.obj == nil {
			continue
		}
		if e.marked {
			e.marked = false
			continue
		}
		h.allocated -= e.obj.Size()
		e.obj = nil
	}
}
