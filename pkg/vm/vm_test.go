package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/loxido/pkg/heap"
	"github.com/kristofer/loxido/pkg/object"
)

func run(t *testing.T, source string) (string, *VM) {
	t.Helper()
	vm := New()
	var out bytes.Buffer
	vm.Stdout = &out
	if err := vm.Interpret(source); err != nil {
		t.Fatalf("unexpected error interpreting %q: %v", source, err)
	}
	return out.String(), vm
}

func TestArithmeticPrecedence(t *testing.T) {
	out, _ := run(t, `print 1 + 2 * 3;`)
	if strings.TrimSpace(out) != "7" {
		t.Fatalf("expected 7, got %q", out)
	}
}

func TestStringConcatenationInterns(t *testing.T) {
	out, _ := run(t, `print "foo" + "bar";`)
	if strings.TrimSpace(out) != "foobar" {
		t.Fatalf("expected foobar, got %q", out)
	}
	out, _ = run(t, `print "foo" + "bar" == "foobar";`)
	if strings.TrimSpace(out) != "true" {
		t.Fatalf("expected the concatenation to be the interned \"foobar\", got %q", out)
	}
}

func TestFalsiness(t *testing.T) {
	out, _ := run(t, `print !nil; print !0; print !"";`)
	want := "true\nfalse\nfalse\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestGlobalVariables(t *testing.T) {
	out, _ := run(t, `var x = 10; x = x + 5; print x;`)
	if strings.TrimSpace(out) != "15" {
		t.Fatalf("expected 15, got %q", out)
	}
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	vm := New()
	err := vm.Interpret(`print missing;`)
	if err == nil {
		t.Fatalf("expected a runtime error for an undefined global")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
}

func TestClosureSharesUpvalue(t *testing.T) {
	out, _ := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	want := "1\n2\n3\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestClassesAndMethods(t *testing.T) {
	out, _ := run(t, `
		class Greeter {
			init(name) {
				this.name = name;
			}
			greet() {
				print "hello, " + this.name;
			}
		}
		var g = Greeter("world");
		g.greet();
	`)
	if strings.TrimSpace(out) != "hello, world" {
		t.Fatalf("expected greeting, got %q", out)
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	out, _ := run(t, `
		class Animal {
			speak() {
				print "...";
			}
		}
		class Dog < Animal {
			speak() {
				super.speak();
				print "woof";
			}
		}
		Dog().speak();
	`)
	want := "...\nwoof\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestSuperclassMethodTableIsSnapshotNotReference(t *testing.T) {
	out, v := run(t, `
		class A {
			hello() { print "A"; }
		}
		class B < A {}
		fun lateMethod() { print "late"; }
		B().hello();
	`)
	if strings.TrimSpace(out) != "A" {
		t.Fatalf("expected A, got %q", out)
	}

	classA := v.heap.Deref(v.globals[v.heap.Intern("A")].Obj).(*object.Class)
	classB := v.heap.Deref(v.globals[v.heap.Intern("B")].Obj).(*object.Class)
	late := v.heap.Intern("late")
	classA.Methods[late] = v.globals[v.heap.Intern("lateMethod")]
	if _, ok := classB.Methods[late]; ok {
		t.Fatalf("a method added to A after B inherited must not appear in B")
	}
}

func TestRecursiveFibonacci(t *testing.T) {
	out, _ := run(t, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	if strings.TrimSpace(out) != "55" {
		t.Fatalf("expected 55, got %q", out)
	}
}

func TestStressGCKeepsReachableObjectsAlive(t *testing.T) {
	vm := New()
	vm.Heap().StressGC = true
	var out bytes.Buffer
	vm.Stdout = &out
	err := vm.Interpret(`
		class Node {
			init(value) {
				this.value = value;
			}
		}
		var a = Node("a");
		var b = Node("b");
		var c = Node("c");
		print a.value + b.value + c.value;
	`)
	if err != nil {
		t.Fatalf("unexpected error under stress GC: %v", err)
	}
	if strings.TrimSpace(out.String()) != "abc" {
		t.Fatalf("expected abc, got %q", out.String())
	}
}

func TestDeterministicOutputAcrossRuns(t *testing.T) {
	source := `
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) {
			total = total + i;
		}
		print total;
	`
	first, _ := run(t, source)
	second, _ := run(t, source)
	if first != second {
		t.Fatalf("expected deterministic output, got %q and %q", first, second)
	}
}

func TestInternedEqualityIsHandleIdentity(t *testing.T) {
	h := heap.New()
	a := h.Intern("same")
	b := h.Intern("same")
	if a != b {
		t.Fatalf("expected interning to produce identical handles for identical content")
	}
}

func TestNativeClockReturnsNumber(t *testing.T) {
	out, _ := run(t, `print clock() > 0;`)
	if strings.TrimSpace(out) != "true" {
		t.Fatalf("expected clock() > 0 to be true, got %q", out)
	}
}

func TestFieldsAreDynamicPerInstance(t *testing.T) {
	out, _ := run(t, `
		class Box {}
		var a = Box();
		var b = Box();
		a.value = 1;
		b.value = 2;
		print a.value;
		print b.value;
	`)
	want := "1\n2\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}
