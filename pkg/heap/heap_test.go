package heap

import (
	"testing"

	"github.com/kristofer/loxido/pkg/value"
)

func TestInternDeduplicates(t *testing.T) {
	h := New()
	a := h.Intern("hello")
	b := h.Intern("hello")
	if a != b {
		t.Fatalf("expected interning to deduplicate, got handles %d and %d", a, b)
	}
	c := h.Intern("world")
	if a == c {
		t.Fatalf("expected distinct content to get distinct handles")
	}
}

func TestCollectSweepsUnmarked(t *testing.T) {
	h := New()
	kept := h.Intern("kept")
	garbage := h.Alloc(NewString("garbage"))

	h.MarkObject(kept)
	h.Collect()

	if _, err := derefOK(h, kept); err != nil {
		t.Fatalf("kept object should survive collection: %v", err)
	}
	if _, err := derefOK(h, garbage); err == nil {
		t.Fatalf("unmarked object should be swept by collection")
	}
}

func derefOK(h *Heap, handle value.Handle) (obj Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic{r}
		}
	}()
	return h.Deref(handle), nil
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return "panic during deref" }

func TestCollectFreesUnreachable(t *testing.T) {
	h := New()
	garbage := h.Alloc(NewString("garbage"))

	h.Collect()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected dereferencing a swept handle to panic")
		}
	}()
	h.Deref(garbage)
}

func TestMarkValueIgnoresNonObjects(t *testing.T) {
	h := New()
	h.MarkValue(value.NumberValue(3))
	h.MarkValue(value.NilValue)
	h.Collect()
}
