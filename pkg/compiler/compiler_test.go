package compiler

import (
	"testing"

	"github.com/kristofer/loxido/pkg/chunk"
	"github.com/kristofer/loxido/pkg/heap"
)

func compileOK(t *testing.T, source string) (*chunk.Chunk, *heap.Heap) {
	t.Helper()
	h := heap.New()
	fn, _, err := Compile(source, h)
	if err != nil {
		t.Fatalf("unexpected compile error for %q: %v", source, err)
	}
	return fn.Chunk, h
}

func TestCompileArithmeticExpression(t *testing.T) {
	c, _ := compileOK(t, "1 + 2 * 3;")

	wantOps := []chunk.Opcode{chunk.Constant, chunk.Constant, chunk.Constant, chunk.Multiply, chunk.Add, chunk.Pop, chunk.Nil, chunk.Return}
	if len(c.Code) != len(wantOps) {
		t.Fatalf("expected %d instructions, got %d: %+v", len(wantOps), len(c.Code), c.Code)
	}
	for i, op := range wantOps {
		if c.Code[i].Op != op {
			t.Fatalf("instruction %d: expected %s, got %s", i, op, c.Code[i].Op)
		}
	}
}

func TestCompileVariableDeclarationAndGlobal(t *testing.T) {
	c, _ := compileOK(t, "var x = 1; print x;")

	foundDefine := false
	foundGet := false
	for _, inst := range c.Code {
		if inst.Op == chunk.DefineGlobal {
			foundDefine = true
		}
		if inst.Op == chunk.GetGlobal {
			foundGet = true
		}
	}
	if !foundDefine || !foundGet {
		t.Fatalf("expected DefineGlobal and GetGlobal, got %+v", c.Code)
	}
}

func TestCompileLocalScoping(t *testing.T) {
	c, _ := compileOK(t, "{ var x = 1; x = 2; }")

	foundSetLocal := false
	for _, inst := range c.Code {
		if inst.Op == chunk.SetLocal {
			foundSetLocal = true
		}
	}
	if !foundSetLocal {
		t.Fatalf("expected a SetLocal instruction for local assignment, got %+v", c.Code)
	}
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	c, _ := compileOK(t, `if (true) { print 1; } else { print 2; }`)

	var sawJumpIfFalse, sawJump bool
	for _, inst := range c.Code {
		if inst.Op == chunk.JumpIfFalse {
			sawJumpIfFalse = true
		}
		if inst.Op == chunk.Jump {
			sawJump = true
		}
	}
	if !sawJumpIfFalse || !sawJump {
		t.Fatalf("expected JumpIfFalse and Jump in if/else, got %+v", c.Code)
	}
}

func TestCompileFunctionEmitsClosure(t *testing.T) {
	c, _ := compileOK(t, `fun add(a, b) { return a + b; } `)

	foundClosure := false
	for _, inst := range c.Code {
		if inst.Op == chunk.Closure {
			foundClosure = true
		}
	}
	if !foundClosure {
		t.Fatalf("expected a Closure instruction for the function declaration, got %+v", c.Code)
	}
}

func TestCompileClassEmitsClassAndMethod(t *testing.T) {
	c, _ := compileOK(t, `class Greeter { greet() { print "hi"; } }`)

	var sawClass, sawMethod bool
	for _, inst := range c.Code {
		if inst.Op == chunk.Class {
			sawClass = true
		}
		if inst.Op == chunk.Method {
			sawMethod = true
		}
	}
	if !sawClass || !sawMethod {
		t.Fatalf("expected Class and Method instructions, got %+v", c.Code)
	}
}

func TestCompileInheritanceEmitsInherit(t *testing.T) {
	c, _ := compileOK(t, `class A {} class B < A {}`)

	found := false
	for _, inst := range c.Code {
		if inst.Op == chunk.Inherit {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an Inherit instruction, got %+v", c.Code)
	}
}

func TestCompileErrorOnMissingSemicolon(t *testing.T) {
	h := heap.New()
	_, _, err := Compile("var x = 1", h)
	if err == nil {
		t.Fatalf("expected a compile error for a missing semicolon")
	}
}

func TestCompileErrorAccumulatesMultipleDiagnostics(t *testing.T) {
	h := heap.New()
	_, _, err := Compile("var x = ; var y = ;", h)
	if err == nil {
		t.Fatalf("expected compile errors")
	}
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(ce.Messages) < 2 {
		t.Fatalf("expected panic-mode recovery to collect multiple diagnostics, got %v", ce.Messages)
	}
}

func TestCompileReturnOutsideFunctionIsError(t *testing.T) {
	h := heap.New()
	_, _, err := Compile("return 1;", h)
	if err == nil {
		t.Fatalf("expected an error for top-level return")
	}
}

func TestCompileThisOutsideClassIsError(t *testing.T) {
	h := heap.New()
	_, _, err := Compile("print this;", h)
	if err == nil {
		t.Fatalf("expected an error for 'this' outside a class")
	}
}
