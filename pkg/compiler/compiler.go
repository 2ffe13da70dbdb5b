// Package compiler implements loxido's single-pass Pratt-parsing compiler:
// it consumes tokens directly from the lexer and emits bytecode into a
// chunk.Chunk with no intermediate syntax tree.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kristofer/loxido/pkg/chunk"
	"github.com/kristofer/loxido/pkg/heap"
	"github.com/kristofer/loxido/pkg/lexer"
	"github.com/kristofer/loxido/pkg/object"
	"github.com/kristofer/loxido/pkg/token"
	"github.com/kristofer/loxido/pkg/value"
)

// Precedence orders the binding power of infix operators, lowest to
// highest.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

func (p Precedence) next() Precedence {
	if p == PrecPrimary {
		return PrecNone
	}
	return p + 1
}

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[token.Type]parseRule

func init() {
	rules = map[token.Type]parseRule{
		token.LeftParen:    {(*Compiler).grouping, (*Compiler).call, PrecCall},
		token.Dot:          {nil, (*Compiler).dot, PrecCall},
		token.Minus:        {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		token.Plus:         {nil, (*Compiler).binary, PrecTerm},
		token.Slash:        {nil, (*Compiler).binary, PrecFactor},
		token.Star:         {nil, (*Compiler).binary, PrecFactor},
		token.Bang:         {(*Compiler).unary, nil, PrecNone},
		token.BangEqual:    {nil, (*Compiler).binary, PrecEquality},
		token.EqualEqual:   {nil, (*Compiler).binary, PrecEquality},
		token.Greater:      {nil, (*Compiler).binary, PrecComparison},
		token.GreaterEqual: {nil, (*Compiler).binary, PrecComparison},
		token.Less:         {nil, (*Compiler).binary, PrecComparison},
		token.LessEqual:    {nil, (*Compiler).binary, PrecComparison},
		token.Identifier:   {(*Compiler).variable, nil, PrecNone},
		token.String:       {(*Compiler).string, nil, PrecNone},
		token.Number:       {(*Compiler).number, nil, PrecNone},
		token.And:          {nil, (*Compiler).and_, PrecAnd},
		token.Or:           {nil, (*Compiler).or_, PrecOr},
		token.False:        {(*Compiler).literal, nil, PrecNone},
		token.Nil:          {(*Compiler).literal, nil, PrecNone},
		token.True:         {(*Compiler).literal, nil, PrecNone},
		token.Super:        {(*Compiler).super_, nil, PrecNone},
		token.This:         {(*Compiler).this, nil, PrecNone},
	}
}

func (c *Compiler) getRule(t token.Type) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{precedence: PrecNone}
}

// funcType distinguishes the kind of function currently being compiled,
// governing whether `this`/`super` are in scope and how `return` behaves.
type funcType int

const (
	typeScript funcType = iota
	typeFunction
	typeMethod
	typeInitializer
)

// local tracks one name declared in the current scope: its depth (-1
// while still being initialized) and whether a nested closure captures it.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// maxLocals bounds the stack slots a single function body may declare,
// matching the single-byte local-slot operand.
const maxLocals = 256

// funcState is one level of the compiler's function nesting stack: the
// prototype being built, its locals, its scope depth, and the upvalue
// capture descriptors resolved against its enclosing function so far.
type funcState struct {
	enclosing    *funcState
	function     *object.Function
	kind         funcType
	locals       []local
	scopeDepth   int
	upvalueDescs []chunk.UpvalueDesc
}

func newFuncState(enclosing *funcState, kind funcType, nameHandle value.Handle) *funcState {
	fs := &funcState{
		enclosing: enclosing,
		function:  object.NewFunction(nameHandle),
		kind:      kind,
	}
	// Slot 0 is reserved: `this` for methods/initializers, unnamed
	// (unreachable by user code) otherwise -- this is what lets Call leave
	// the callee's own slot as the receiver/self without special-casing it.
	slotName := ""
	if kind == typeMethod || kind == typeInitializer {
		slotName = "this"
	}
	fs.locals = append(fs.locals, local{name: slotName, depth: 0})
	return fs
}

// classState is one level of nested class compilation, tracking whether
// the class currently being compiled has a superclass (so `super` can be
// rejected otherwise).
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler drives single-pass compilation of one top-level script (or,
// recursively through funcState, of every function and method nested in
// it) straight into bytecode.
type Compiler struct {
	lexer   *lexer.Lexer
	heap    *heap.Heap
	current token.Token
	prev    token.Token

	fn    *funcState
	class *classState

	hadError  bool
	panicMode bool
	errs      []string
}

// Error reports the accumulated diagnostics from a failed Compile call.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Compile compiles source into a top-level script function. On success it
// returns the Function object together with its heap handle. On failure it
// returns an *Error holding every diagnostic collected under panic-mode
// recovery.
func Compile(source string, h *heap.Heap) (*object.Function, value.Handle, error) {
	c := &Compiler{
		lexer: lexer.New(source),
		heap:  h,
	}
	scriptName := h.Intern("")
	c.fn = newFuncState(nil, typeScript, scriptName)

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.emitReturn()

	if c.hadError {
		return nil, 0, &Error{Messages: c.errs}
	}

	fn := c.fn.function
	handle := h.Alloc(fn)
	return fn, handle, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.lexer.NextToken()
		if c.current.Type != token.Illegal {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t token.Type) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.Type, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

// --- error recovery ----------------------------------------------------

func (c *Compiler) errorAtCurrent(msg string) {
	c.errorAt(c.current, msg)
}

func (c *Compiler) error(msg string) {
	c.errorAt(c.prev, msg)
}

func (c *Compiler) errorAt(t token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var where string
	switch t.Type {
	case token.EOF:
		where = " at end"
	case token.Illegal:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", t.Lexeme)
	}
	c.errs = append(c.errs, fmt.Sprintf("[line %d] Error%s: %s", t.Line, where, msg))
}

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		if c.prev.Type == token.Semicolon {
			return
		}
		switch c.current.Type {
		case token.Class, token.Fun, token.Var, token.For, token.If, token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}

// --- emission helpers --------------------------------------------------

func (c *Compiler) currentChunk() *chunk.Chunk {
	return c.fn.function.Chunk
}

func (c *Compiler) emit(op chunk.Opcode, operand int) int {
	return c.currentChunk().Write(op, operand, c.prev.Line)
}

func (c *Compiler) emitReturn() {
	if c.fn.kind == typeInitializer {
		c.emit(chunk.GetLocal, 0)
	} else {
		c.emit(chunk.Nil, 0)
	}
	c.emit(chunk.Return, 0)
}

func (c *Compiler) makeConstant(v value.Value) int {
	idx := c.currentChunk().AddConstant(v)
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return idx
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emit(chunk.Constant, c.makeConstant(v))
}

func (c *Compiler) emitJump(op chunk.Opcode) int {
	return c.emit(op, 0xffff)
}

// maxJumpDistance bounds how far a Jump/JumpIfFalse/Loop instruction may
// reach, matching the two-byte jump operand a chunk.Instruction's
// Operand stands in for.
const maxJumpDistance = 1<<16 - 1

func (c *Compiler) patchJump(offset int) {
	target := len(c.currentChunk().Code)
	if target-offset > maxJumpDistance {
		c.error("Too much code to jump over.")
	}
	c.currentChunk().Patch(offset, target)
}

func (c *Compiler) startLoop() int {
	return len(c.currentChunk().Code)
}

func (c *Compiler) emitLoop(start int) {
	if len(c.currentChunk().Code)-start > maxJumpDistance {
		c.error("Loop body too large.")
	}
	c.emit(chunk.Loop, start)
}

// --- declarations --------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.Identifier, "Expect class name.")
	classNameTok := c.prev
	nameConstant := c.identifierConstant(classNameTok.Lexeme)
	c.declareVariable(classNameTok.Lexeme)
	c.emit(chunk.Class, nameConstant)
	c.defineVariable(nameConstant)

	c.class = &classState{enclosing: c.class}

	if c.match(token.Less) {
		c.consume(token.Identifier, "Expect superclass name.")
		superTok := c.prev
		c.namedVariable(superTok.Lexeme, false)
		if superTok.Lexeme == classNameTok.Lexeme {
			c.error("A class can't inherit from itself.")
		}
		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)
		c.namedVariable(classNameTok.Lexeme, false)
		c.emit(chunk.Inherit, 0)
		c.class.hasSuperclass = true
	}

	c.namedVariable(classNameTok.Lexeme, false)
	c.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RightBrace, "Expect '}' after class body.")
	c.emit(chunk.Pop, 0)

	if c.class.hasSuperclass {
		c.endScope()
	}
	c.class = c.class.enclosing
}

func (c *Compiler) method() {
	c.consume(token.Identifier, "Expect method name.")
	name := c.prev.Lexeme
	nameConstant := c.identifierConstant(name)

	kind := typeMethod
	if name == "init" {
		kind = typeInitializer
	}
	c.function(kind)
	c.emit(chunk.Method, nameConstant)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(typeFunction)
	c.defineVariable(global)
}

// function compiles a nested function body under a fresh funcState pushed
// onto the compiler's function stack, then emits a Closure instruction in
// the enclosing chunk referencing the compiled prototype plus its upvalue
// capture descriptors.
func (c *Compiler) function(kind funcType) {
	nameHandle := c.heap.Intern(c.prev.Lexeme)
	enclosing := c.fn
	c.fn = newFuncState(enclosing, kind, nameHandle)
	c.beginScope()

	c.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.check(token.RightParen) {
		for {
			c.fn.function.Arity++
			if c.fn.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			param := c.parseVariable("Expect parameter name.")
			c.defineVariable(param)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters.")
	c.consume(token.LeftBrace, "Expect '{' before function body.")
	c.block()

	fn := c.fn.function
	upvalueDescs := c.fn.upvalueDescs
	c.emitReturn()
	c.fn = enclosing

	fnHandle := c.heap.Alloc(fn)
	idx := c.makeConstant(value.ObjValue(fnHandle))
	offset := c.emit(chunk.Closure, idx)
	if len(upvalueDescs) > 0 {
		c.currentChunk().Upvalues[offset] = upvalueDescs
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emit(chunk.Nil, 0)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) defineVariable(global int) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emit(chunk.DefineGlobal, global)
}

func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) parseVariable(msg string) int {
	c.consume(token.Identifier, msg)
	name := c.prev.Lexeme
	c.declareVariable(name)
	if c.fn.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(name)
}

func (c *Compiler) identifierConstant(name string) int {
	handle := c.heap.Intern(name)
	return c.makeConstant(value.ObjValue(handle))
}

func (c *Compiler) declareVariable(name string) {
	if c.fn.scopeDepth == 0 {
		return
	}
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	if len(c.fn.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fn.locals = append(c.fn.locals, local{name: name, depth: -1})
}

// --- statements --------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emit(chunk.Print, 0)
}

func (c *Compiler) returnStatement() {
	if c.fn.kind == typeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.fn.kind == typeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emit(chunk.Return, 0)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.JumpIfFalse)
	c.emit(chunk.Pop, 0)
	c.statement()
	elseJump := c.emitJump(chunk.Jump)

	c.patchJump(thenJump)
	c.emit(chunk.Pop, 0)
	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.startLoop()
	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.JumpIfFalse)
	c.emit(chunk.Pop, 0)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emit(chunk.Pop, 0)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(token.Semicolon):
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.startLoop()
	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.JumpIfFalse)
		c.emit(chunk.Pop, 0)
	}

	if !c.check(token.RightParen) {
		bodyJump := c.emitJump(chunk.Jump)
		incrementStart := c.startLoop()
		c.expression()
		c.emit(chunk.Pop, 0)
		c.consume(token.RightParen, "Expect ')' after for clauses.")
		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RightParen, "Expect ')' after for clauses.")
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emit(chunk.Pop, 0)
	}
	c.endScope()
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) beginScope() {
	c.fn.scopeDepth++
}

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	for len(c.fn.locals) > 0 && c.fn.locals[len(c.fn.locals)-1].depth > c.fn.scopeDepth {
		last := c.fn.locals[len(c.fn.locals)-1]
		if last.isCaptured {
			c.emit(chunk.CloseUpvalue, 0)
		} else {
			c.emit(chunk.Pop, 0)
		}
		c.fn.locals = c.fn.locals[:len(c.fn.locals)-1]
	}
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emit(chunk.Pop, 0)
}

// --- expressions --------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := c.getRule(c.prev.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= c.getRule(c.current.Type).precedence {
		c.advance()
		infix := c.getRule(c.prev.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) number(canAssign bool) {
	n, err := strconv.ParseFloat(c.prev.Lexeme, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.NumberValue(n))
}

func (c *Compiler) string(canAssign bool) {
	handle := c.heap.Intern(c.prev.Lexeme)
	c.emitConstant(value.ObjValue(handle))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.prev.Type {
	case token.False:
		c.emit(chunk.False, 0)
	case token.True:
		c.emit(chunk.True, 0)
	case token.Nil:
		c.emit(chunk.Nil, 0)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.prev.Lexeme, canAssign)
}

func (c *Compiler) this(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super_(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}
	c.consume(token.Dot, "Expect '.' after 'super'.")
	c.consume(token.Identifier, "Expect superclass method name.")
	name := c.identifierConstant(c.prev.Lexeme)

	c.namedVariable("this", false)
	if c.match(token.LeftParen) {
		argCount := c.argumentList()
		c.namedVariable("super", false)
		c.emit(chunk.SuperInvoke, chunk.PackInvoke(name, argCount))
	} else {
		c.namedVariable("super", false)
		c.emit(chunk.GetSuper, name)
	}
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp chunk.Opcode
	var arg int

	if slot, ok := c.resolveLocal(c.fn, name); ok {
		getOp, setOp, arg = chunk.GetLocal, chunk.SetLocal, slot
	} else if slot, ok := c.resolveUpvalue(c.fn, name); ok {
		getOp, setOp, arg = chunk.GetUpvalue, chunk.SetUpvalue, slot
	} else {
		arg = c.identifierConstant(name)
		getOp, setOp = chunk.GetGlobal, chunk.SetGlobal
	}

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emit(setOp, arg)
	} else {
		c.emit(getOp, arg)
	}
}

func (c *Compiler) resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) resolveUpvalue(fs *funcState, name string) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if slot, ok := c.resolveLocal(fs.enclosing, name); ok {
		fs.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(fs, slot, true), true
	}
	if slot, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, slot, false), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, up := range fs.upvalueDescs {
		if up.Index == index && up.IsLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalueDescs) >= maxLocals {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalueDescs = append(fs.upvalueDescs, chunk.UpvalueDesc{Index: index, IsLocal: isLocal})
	fs.function.UpvalueCnt = len(fs.upvalueDescs)
	return len(fs.upvalueDescs) - 1
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(canAssign bool) {
	op := c.prev.Type
	c.parsePrecedence(PrecUnary)
	switch op {
	case token.Bang:
		c.emit(chunk.Not, 0)
	case token.Minus:
		c.emit(chunk.Negate, 0)
	}
}

func (c *Compiler) binary(canAssign bool) {
	op := c.prev.Type
	rule := c.getRule(op)
	c.parsePrecedence(rule.precedence.next())
	switch op {
	case token.Plus:
		c.emit(chunk.Add, 0)
	case token.Minus:
		c.emit(chunk.Subtract, 0)
	case token.Star:
		c.emit(chunk.Multiply, 0)
	case token.Slash:
		c.emit(chunk.Divide, 0)
	case token.BangEqual:
		c.emit(chunk.Equal, 0)
		c.emit(chunk.Not, 0)
	case token.EqualEqual:
		c.emit(chunk.Equal, 0)
	case token.Greater:
		c.emit(chunk.Greater, 0)
	case token.GreaterEqual:
		c.emit(chunk.Less, 0)
		c.emit(chunk.Not, 0)
	case token.Less:
		c.emit(chunk.Less, 0)
	case token.LessEqual:
		c.emit(chunk.Greater, 0)
		c.emit(chunk.Not, 0)
	}
}

func (c *Compiler) and_(canAssign bool) {
	endJump := c.emitJump(chunk.JumpIfFalse)
	c.emit(chunk.Pop, 0)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(canAssign bool) {
	elseJump := c.emitJump(chunk.JumpIfFalse)
	endJump := c.emitJump(chunk.Jump)
	c.patchJump(elseJump)
	c.emit(chunk.Pop, 0)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emit(chunk.Call, argCount)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.prev.Lexeme)

	switch {
	case canAssign && c.match(token.Equal):
		c.expression()
		c.emit(chunk.SetProperty, name)
	case c.match(token.LeftParen):
		argCount := c.argumentList()
		c.emit(chunk.Invoke, chunk.PackInvoke(name, argCount))
	default:
		c.emit(chunk.GetProperty, name)
	}
}

func (c *Compiler) argumentList() int {
	count := 0
	if !c.check(token.RightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments.")
	return count
}
