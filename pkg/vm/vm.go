// Package vm implements the bytecode virtual machine for loxido.
//
// The VM is a stack-based interpreter that executes the Instruction stream
// produced by package compiler. It's the final stage in the execution
// pipeline:
//
//   Source Code -> Lexer -> Compiler -> Chunk -> VM -> Execution
//
// Virtual Machine Architecture:
//
// The VM uses a stack-based architecture with the following components:
//
//   1. Value Stack: Holds intermediate values during computation
//   2. Call Frames: One per active closure invocation, each with its own ip
//      and a slotBase into the shared value stack
//   3. Globals: Hash map of global variable values, keyed by interned
//      string handle
//   4. Heap: Owns every string, closure, class, instance, and upvalue the
//      running program allocates, and drives garbage collection
//
// Execution Model:
//
// Each CallFrame tracks its own instruction pointer into its closure's
// chunk. A call pushes a new frame; a return pops one and resumes the
// caller at its saved ip. Most instructions follow a simple pattern: pop
// operands from the stack, perform the operation, push the result.
//
// Error Handling:
//
// Runtime errors (type mismatches, undefined variables, arity mismatches,
// stack overflow) surface as *RuntimeError, carrying the message and the
// source line active when the error occurred.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/kristofer/loxido/pkg/chunk"
	"github.com/kristofer/loxido/pkg/compiler"
	"github.com/kristofer/loxido/pkg/heap"
	"github.com/kristofer/loxido/pkg/object"
	"github.com/kristofer/loxido/pkg/value"
)

// MaxFrames bounds the call-frame stack; exceeding it is a Lox-level stack
// overflow, not a Go-level one.
const MaxFrames = 64

// StackMax bounds the value stack: one frame's worth of locals (a Lox
// function may declare up to 256 of them) times the deepest call depth.
const StackMax = MaxFrames * 256

// CallFrame is one active invocation of a closure: its own instruction
// pointer into the closure's chunk, and the stack slot its locals start at.
type CallFrame struct {
	closure  value.Handle // *object.Closure
	ip       int
	slotBase int
}

// VM executes compiled Lox bytecode against a shared Heap.
type VM struct {
	heap   *heap.Heap
	stack  []value.Value
	frames []CallFrame

	globals map[value.Handle]value.Value

	// openUpvalues are upvalues still aliasing a live stack slot, ordered by
	// descending Location so a scan meets the highest stack slots first.
	openUpvalues []value.Handle

	initString value.Handle

	// Trace enables per-instruction disassembly and stack dumps to Out,
	// the way a debug build of the teacher's VM gates its tracing.
	Trace bool
	Out   func(format string, args ...any)

	// Stdout receives `print` output; defaults to os.Stdout so tests can
	// substitute a buffer.
	Stdout io.Writer
}

// New creates a VM backed by a fresh Heap with the standard native
// functions registered.
func New() *VM {
	h := heap.New()
	vm := &VM{
		heap:    h,
		stack:   make([]value.Value, 0, StackMax),
		frames:  make([]CallFrame, 0, MaxFrames),
		globals: make(map[value.Handle]value.Value),
		Stdout:  os.Stdout,
	}
	vm.initString = h.Intern("init")
	vm.defineNatives()
	return vm
}

// Heap exposes the VM's object heap, mainly so callers (tests, the REPL)
// can inspect GC behavior or format printed values.
func (vm *VM) Heap() *heap.Heap {
	return vm.heap
}

// RuntimeError is a Lox-level failure: a type mismatch, an undefined
// variable, a bad arity, or a stack overflow. Compile errors never reach
// here; see compiler.Error for those.
type RuntimeError struct {
	Message string
	Line    int
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Message, e.Line)
}

// Interpret compiles and runs source against this VM, sharing its heap and
// globals with any previous Interpret call (the REPL relies on this).
func (vm *VM) Interpret(source string) error {
	fn, fnHandle, err := compiler.Compile(source, vm.heap)
	if err != nil {
		return err
	}
	closure := object.NewClosure(fnHandle, 0)
	closureHandle := vm.heap.Alloc(closure)
	vm.push(value.ObjValue(closureHandle))
	vm.frames = append(vm.frames, CallFrame{closure: closureHandle, slotBase: 0})
	_ = fn
	return vm.run()
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) frame() *CallFrame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) closureAt(h value.Handle) *object.Closure {
	return vm.heap.Deref(h).(*object.Closure)
}

func (vm *VM) functionAt(h value.Handle) *object.Function {
	return vm.heap.Deref(h).(*object.Function)
}

func (vm *VM) currentChunk() *chunk.Chunk {
	return vm.functionAt(vm.closureAt(vm.frame().closure).Function).Chunk
}

func (vm *VM) runtimeError(format string, args ...any) error {
	line := 0
	if f := vm.frame(); f != nil {
		c := vm.currentChunk()
		if f.ip-1 >= 0 && f.ip-1 < len(c.Lines) {
			line = c.Lines[f.ip-1]
		}
	}
	vm.resetStack()
	return &RuntimeError{Message: fmt.Sprintf(format, args...), Line: line}
}

func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
}

// run is the fetch-decode-execute loop, dispatching on the current frame's
// next instruction until the outermost frame returns.
func (vm *VM) run() error {
	for {
		f := vm.frame()
		c := vm.currentChunk()

		if vm.heap.ShouldGC() {
			vm.collectGarbage()
		}

		if f.ip >= len(c.Code) {
			return vm.runtimeError("instruction pointer ran off the end of the chunk")
		}

		if vm.Trace && vm.Out != nil {
			vm.Out("%s", vm.stackTrace())
			vm.Out("%s", c.DisassembleInstruction(f.ip))
		}

		inst := c.Code[f.ip]
		f.ip++

		switch inst.Op {
		case chunk.Constant:
			vm.push(c.Constants[inst.Operand])

		case chunk.Nil:
			vm.push(value.NilValue)
		case chunk.True:
			vm.push(value.BoolValue(true))
		case chunk.False:
			vm.push(value.BoolValue(false))

		case chunk.Pop:
			vm.pop()

		case chunk.GetLocal:
			vm.push(vm.stack[f.slotBase+inst.Operand])
		case chunk.SetLocal:
			vm.stack[f.slotBase+inst.Operand] = vm.peek(0)

		case chunk.DefineGlobal:
			name := vm.constantHandle(c, inst.Operand)
			vm.globals[name] = vm.pop()

		case chunk.GetGlobal:
			name := vm.constantHandle(c, inst.Operand)
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", vm.stringAt(name))
			}
			vm.push(v)

		case chunk.SetGlobal:
			name := vm.constantHandle(c, inst.Operand)
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", vm.stringAt(name))
			}
			vm.globals[name] = vm.peek(0)

		case chunk.GetUpvalue:
			uv := vm.upvalueAt(f, inst.Operand)
			vm.push(vm.upvalueValue(uv))
		case chunk.SetUpvalue:
			uv := vm.upvalueAt(f, inst.Operand)
			vm.setUpvalueValue(uv, vm.peek(0))

		case chunk.CloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case chunk.GetProperty:
			if err := vm.getProperty(c, inst.Operand); err != nil {
				return err
			}
		case chunk.SetProperty:
			if err := vm.setProperty(c, inst.Operand); err != nil {
				return err
			}
		case chunk.GetSuper:
			name := vm.constantHandle(c, inst.Operand)
			superclass := vm.pop()
			instance := vm.pop()
			if err := vm.bindMethod(superclass.Obj, name, instance); err != nil {
				return err
			}
		case chunk.Inherit:
			if err := vm.inherit(); err != nil {
				return err
			}

		case chunk.Add:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.Subtract:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.Multiply:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.Divide:
			if err := vm.numericBinary(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}
		case chunk.Negate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			v := vm.pop()
			vm.push(value.NumberValue(-v.Number))
		case chunk.Not:
			vm.push(value.BoolValue(vm.pop().IsFalsey()))
		case chunk.Equal:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equal(a, b)))
		case chunk.Greater:
			if err := vm.comparisonBinary(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case chunk.Less:
			if err := vm.comparisonBinary(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case chunk.Jump:
			f.ip = inst.Operand
		case chunk.JumpIfFalse:
			if vm.peek(0).IsFalsey() {
				f.ip = inst.Operand
			}
		case chunk.Loop:
			f.ip = inst.Operand

		case chunk.Call:
			argCount := inst.Operand
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
		case chunk.Invoke:
			name, argCount := chunk.UnpackInvoke(inst.Operand)
			if err := vm.invoke(vm.constantHandle(c, name), argCount); err != nil {
				return err
			}
		case chunk.SuperInvoke:
			name, argCount := chunk.UnpackInvoke(inst.Operand)
			superclass := vm.pop()
			if err := vm.invokeFromClass(superclass.Obj, vm.constantHandle(c, name), argCount); err != nil {
				return err
			}
		case chunk.Closure:
			if err := vm.makeClosure(c, inst.Operand, f.ip-1); err != nil {
				return err
			}
		case chunk.Return:
			result := vm.pop()
			vm.closeUpvalues(f.slotBase)
			returnedFrame := vm.frames[len(vm.frames)-1]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				vm.pop() // the top-level script closure
				return nil
			}
			vm.stack = vm.stack[:returnedFrame.slotBase]
			vm.push(result)

		case chunk.Class:
			name := vm.constantHandle(c, inst.Operand)
			vm.push(value.ObjValue(vm.heap.Alloc(object.NewClass(name))))
		case chunk.Method:
			vm.defineMethod(c, inst.Operand)

		case chunk.Print:
			fmt.Fprintln(vm.Stdout, vm.stringify(vm.pop()))

		default:
			return vm.runtimeError("unknown opcode %s", inst.Op)
		}
	}
}

func (vm *VM) constantHandle(c *chunk.Chunk, index int) value.Handle {
	return c.Constants[index].Obj
}

func (vm *VM) stringAt(h value.Handle) string {
	return vm.heap.Deref(h).(*object.String).Value
}

func (vm *VM) add() error {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.NumberValue(a.Number + b.Number))
		return nil
	case vm.isString(a) && vm.isString(b):
		vm.pop()
		vm.pop()
		result := vm.stringAt(a.Obj) + vm.stringAt(b.Obj)
		vm.push(value.ObjValue(vm.heap.Intern(result)))
		return nil
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
}

func (vm *VM) isString(v value.Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := vm.heap.Deref(v.Obj).(*object.String)
	return ok
}

func (vm *VM) numericBinary(f func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop()
	a := vm.pop()
	vm.push(value.NumberValue(f(a.Number, b.Number)))
	return nil
}

func (vm *VM) comparisonBinary(f func(a, b float64) bool) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop()
	a := vm.pop()
	vm.push(value.BoolValue(f(a.Number, b.Number)))
	return nil
}

// callValue dispatches a Call instruction's callee, which may be a Lox
// closure, a native function, a bound method, or a class (instantiation).
func (vm *VM) callValue(callee value.Value, argCount int) error {
	if !callee.IsObj() {
		return vm.runtimeError("Can only call functions and classes.")
	}
	switch obj := vm.heap.Deref(callee.Obj).(type) {
	case *object.Closure:
		return vm.call(callee.Obj, argCount)
	case *object.NativeFunction:
		return vm.callNative(obj, argCount)
	case *object.Class:
		instance := object.NewInstance(callee.Obj)
		instanceHandle := vm.heap.Alloc(instance)
		vm.stack[len(vm.stack)-1-argCount] = value.ObjValue(instanceHandle)
		if initializer, ok := obj.Methods[vm.initString]; ok {
			return vm.call(initializer.Obj, argCount)
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *object.BoundMethod:
		vm.stack[len(vm.stack)-1-argCount] = obj.Receiver
		return vm.call(obj.Method, argCount)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) call(closureHandle value.Handle, argCount int) error {
	closure := vm.closureAt(closureHandle)
	fn := vm.functionAt(closure.Function)
	if argCount != fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if len(vm.frames) >= MaxFrames {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames = append(vm.frames, CallFrame{
		closure:  closureHandle,
		slotBase: len(vm.stack) - argCount - 1,
	})
	return nil
}

func (vm *VM) callNative(native *object.NativeFunction, argCount int) (err error) {
	args := append([]value.Value(nil), vm.stack[len(vm.stack)-argCount:]...)
	defer func() {
		if r := recover(); r != nil {
			err = vm.runtimeError("%v", r)
		}
	}()
	result := native.Fn(args)
	vm.stack = vm.stack[:len(vm.stack)-argCount-1]
	vm.push(result)
	return nil
}

// invoke performs GetProperty+Call in one step: either a field holding a
// callable, or a method looked up directly on the receiver's class.
func (vm *VM) invoke(name value.Handle, argCount int) error {
	receiver := vm.peek(argCount)
	if !receiver.IsObj() {
		return vm.runtimeError("Only instances have methods.")
	}
	instance, ok := vm.heap.Deref(receiver.Obj).(*object.Instance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if field, ok := instance.Fields[name]; ok {
		vm.stack[len(vm.stack)-1-argCount] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(classHandle value.Handle, name value.Handle, argCount int) error {
	class := vm.heap.Deref(classHandle).(*object.Class)
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", vm.stringAt(name))
	}
	return vm.call(method.Obj, argCount)
}

func (vm *VM) getProperty(c *chunk.Chunk, nameIndex int) error {
	name := vm.constantHandle(c, nameIndex)
	if !vm.peek(0).IsObj() {
		return vm.runtimeError("Only instances have properties.")
	}
	instance, ok := vm.heap.Deref(vm.peek(0).Obj).(*object.Instance)
	if !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	if field, ok := instance.Fields[name]; ok {
		vm.pop()
		vm.push(field)
		return nil
	}
	instanceValue := vm.pop()
	return vm.bindMethod(instance.Class, name, instanceValue)
}

func (vm *VM) setProperty(c *chunk.Chunk, nameIndex int) error {
	name := vm.constantHandle(c, nameIndex)
	if !vm.peek(1).IsObj() {
		return vm.runtimeError("Only instances have fields.")
	}
	instance, ok := vm.heap.Deref(vm.peek(1).Obj).(*object.Instance)
	if !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	v := vm.pop()
	instance.Fields[name] = v
	vm.pop()
	vm.push(v)
	return nil
}

func (vm *VM) bindMethod(classHandle value.Handle, name value.Handle, receiver value.Value) error {
	class := vm.heap.Deref(classHandle).(*object.Class)
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", vm.stringAt(name))
	}
	bound := object.NewBoundMethod(receiver, method.Obj)
	vm.push(value.ObjValue(vm.heap.Alloc(bound)))
	return nil
}

func (vm *VM) inherit() error {
	subclassValue := vm.peek(0)
	superclassValue := vm.peek(1)
	if !superclassValue.IsObj() {
		return vm.runtimeError("Superclass must be a class.")
	}
	superclass, ok := vm.heap.Deref(superclassValue.Obj).(*object.Class)
	if !ok {
		return vm.runtimeError("Superclass must be a class.")
	}
	subclass := vm.heap.Deref(subclassValue.Obj).(*object.Class)
	subclass.Methods = superclass.CloneMethods()
	vm.pop()
	return nil
}

func (vm *VM) defineMethod(c *chunk.Chunk, nameIndex int) {
	name := vm.constantHandle(c, nameIndex)
	method := vm.pop()
	class := vm.heap.Deref(vm.peek(0).Obj).(*object.Class)
	class.Methods[name] = method
}

// makeClosure allocates a new Closure over the function prototype at
// Constants[operand] and captures its upvalues per the chunk's recorded
// descriptors for the instruction at offset.
func (vm *VM) makeClosure(c *chunk.Chunk, operand int, offset int) error {
	fnHandle := vm.constantHandle(c, operand)
	fn := vm.functionAt(fnHandle)
	closure := object.NewClosure(fnHandle, fn.UpvalueCnt)

	f := vm.frame()
	for i, desc := range c.Upvalues[offset] {
		if desc.IsLocal {
			closure.Upvalues[i] = vm.captureUpvalue(f.slotBase + desc.Index)
		} else {
			enclosing := vm.closureAt(f.closure)
			closure.Upvalues[i] = enclosing.Upvalues[desc.Index]
		}
	}

	vm.push(value.ObjValue(vm.heap.Alloc(closure)))
	return nil
}

// captureUpvalue returns the existing open upvalue for stack slot location
// if one exists, reusing it so multiple closures that capture the same
// variable observe each other's writes; otherwise it opens a new one.
func (vm *VM) captureUpvalue(location int) value.Handle {
	i := 0
	for ; i < len(vm.openUpvalues); i++ {
		uv := vm.heap.Deref(vm.openUpvalues[i]).(*object.Upvalue)
		if uv.Location == location {
			return vm.openUpvalues[i]
		}
		if uv.Location < location {
			break
		}
	}
	handle := vm.heap.Alloc(object.NewUpvalue(location))
	vm.openUpvalues = append(vm.openUpvalues, 0)
	copy(vm.openUpvalues[i+1:], vm.openUpvalues[i:])
	vm.openUpvalues[i] = handle
	return handle
}

// closeUpvalues closes every open upvalue aliasing a stack slot at or above
// stackTop, copying its value out of the stack before that frame's slots
// are discarded.
func (vm *VM) closeUpvalues(stackTop int) {
	remaining := vm.openUpvalues[:0]
	for _, h := range vm.openUpvalues {
		uv := vm.heap.Deref(h).(*object.Upvalue)
		if uv.Location >= stackTop {
			uv.Closed = vm.stack[uv.Location]
			uv.IsClosed = true
		} else {
			remaining = append(remaining, h)
		}
	}
	vm.openUpvalues = remaining
}

func (vm *VM) upvalueAt(f *CallFrame, index int) *object.Upvalue {
	closure := vm.closureAt(f.closure)
	return vm.heap.Deref(closure.Upvalues[index]).(*object.Upvalue)
}

func (vm *VM) upvalueValue(uv *object.Upvalue) value.Value {
	if uv.IsClosed {
		return uv.Closed
	}
	return vm.stack[uv.Location]
}

func (vm *VM) setUpvalueValue(uv *object.Upvalue, v value.Value) {
	if uv.IsClosed {
		uv.Closed = v
	} else {
		vm.stack[uv.Location] = v
	}
}

// stringify formats a Value for `print` and REPL output.
func (vm *VM) stringify(v value.Value) string {
	switch v.Kind {
	case value.Nil:
		return "nil"
	case value.Bool:
		return fmt.Sprintf("%t", v.Bool)
	case value.Number:
		return value.FormatNumber(v.Number)
	case value.Obj:
		return vm.stringifyObject(v.Obj)
	default:
		return "?"
	}
}

func (vm *VM) stringifyObject(h value.Handle) string {
	switch obj := vm.heap.Deref(h).(type) {
	case *object.String:
		return obj.Value
	case *object.Function:
		if name := vm.stringAt(obj.Name); name != "" {
			return fmt.Sprintf("<fn %s>", name)
		}
		return "<script>"
	case *object.Closure:
		return vm.stringifyObject(obj.Function)
	case *object.Class:
		return vm.stringAt(obj.Name)
	case *object.Instance:
		return fmt.Sprintf("%s instance", vm.stringAt(vm.heap.Deref(obj.Class).(*object.Class).Name))
	case *object.BoundMethod:
		return vm.stringifyObject(obj.Method)
	case *object.NativeFunction:
		return obj.String()
	default:
		return "?"
	}
}

func (vm *VM) stackTrace() string {
	s := "          "
	for _, v := range vm.stack {
		s += "[ " + vm.stringify(v) + " ]"
	}
	return s
}

// collectGarbage marks every root the running program can still reach --
// the value stack, every active closure, every open upvalue, the globals
// table, and the interned "init" string -- then sweeps everything else.
func (vm *VM) collectGarbage() {
	for _, v := range vm.stack {
		vm.heap.MarkValue(v)
	}
	for _, f := range vm.frames {
		vm.heap.MarkObject(f.closure)
	}
	for _, h := range vm.openUpvalues {
		vm.heap.MarkObject(h)
	}
	vm.heap.MarkTable(vm.globals)
	vm.heap.MarkObject(vm.initString)
	vm.heap.Collect()
}

// defineNatives registers the VM's built-in global functions.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", func(args []value.Value) value.Value {
		return value.NumberValue(float64(time.Now().UnixNano()) / float64(time.Second))
	})
	vm.defineNative("panic", func(args []value.Value) value.Value {
		if len(args) == 0 {
			panic("panic() called with no message.")
		}
		panic(vm.stringify(args[0]))
	})
	vm.defineNative("sqrt", func(args []value.Value) value.Value {
		if len(args) != 1 || !args[0].IsNumber() {
			panic("sqrt() expects a single number argument.")
		}
		return value.NumberValue(math.Sqrt(args[0].Number))
	})
}

func (vm *VM) defineNative(name string, fn object.NativeFn) {
	handle := vm.heap.Alloc(object.NewNativeFunction(name, fn))
	vm.globals[vm.heap.Intern(name)] = value.ObjValue(handle)
}
