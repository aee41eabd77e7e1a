// Package compiler is a tree-free, single-pass compiler: it parses tokens
// with a Pratt (precedence-climbing) expression parser and emits bytecode
// directly into the current function's Chunk as it goes, with no
// intermediate AST, the same single-pass scheme clox's compiler.c uses,
// expressed in Go.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/briarlang/briar/internal/bytecode"
	"github.com/briarlang/briar/internal/lexer"
	"github.com/briarlang/briar/internal/token"
	"github.com/briarlang/briar/internal/vm"
)

func init() {
	vm.CompileHook = func(v *vm.VM, source []byte) (*vm.ObjFunctionVal, error) {
		fn, errs := CompileAll(v, source)
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return nil, fmt.Errorf("%s", strings.Join(msgs, "\n"))
		}
		return fn, nil
	}
}

// CompileError is a single diagnostic produced during parsing; cmd/briar
// prints each one individually with source context and a caret.
type CompileError struct {
	Line    int
	Message string
}

func (e CompileError) Error() string {
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

// Precedence levels for the Pratt parser, lowest to highest.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(p *Parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[token.Type]parseRule

func init() {
	rules = map[token.Type]parseRule{
		token.LParen:       {prefix: (*Parser).grouping, infix: (*Parser).call, precedence: precCall},
		token.Dot:          {infix: (*Parser).dot, precedence: precCall},
		token.Minus:        {prefix: (*Parser).unary, infix: (*Parser).binary, precedence: precTerm},
		token.Plus:         {infix: (*Parser).binary, precedence: precTerm},
		token.Slash:        {infix: (*Parser).binary, precedence: precFactor},
		token.Star:         {infix: (*Parser).binary, precedence: precFactor},
		token.Bang:         {prefix: (*Parser).unary},
		token.NotEqual:     {infix: (*Parser).binary, precedence: precEquality},
		token.Equal:        {infix: (*Parser).binary, precedence: precEquality},
		token.Greater:      {infix: (*Parser).binary, precedence: precComparison},
		token.GreaterEqual: {infix: (*Parser).binary, precedence: precComparison},
		token.Less:         {infix: (*Parser).binary, precedence: precComparison},
		token.LessEqual:    {infix: (*Parser).binary, precedence: precComparison},
		token.Ident:        {prefix: (*Parser).variable},
		token.String:       {prefix: (*Parser).string},
		token.Number:       {prefix: (*Parser).number},
		token.And:          {infix: (*Parser).and, precedence: precAnd},
		token.Or:           {infix: (*Parser).or, precedence: precOr},
		token.False:        {prefix: (*Parser).literal},
		token.Nil:          {prefix: (*Parser).literal},
		token.True:         {prefix: (*Parser).literal},
		token.This:         {prefix: (*Parser).this},
		token.Super:        {prefix: (*Parser).super},
	}
}

func getRule(t token.Type) parseRule {
	return rules[t]
}

// Parser holds all single-pass compiler state: the token stream, the
// function-state stack (one per nested fun/method being compiled), and
// the class-state stack (for `this`/`super` resolution).
type Parser struct {
	vm  *vm.VM
	lex *lexer.Lexer

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    []CompileError

	fs *FunctionState
	cs *classState
}

// CompileAll compiles source into a top-level script function, returning
// every diagnostic collected (empty on success).
func CompileAll(v *vm.VM, source []byte) (*vm.ObjFunctionVal, []CompileError) {
	p := &Parser{vm: v, lex: lexer.New(string(source))}

	fn := v.NewFunction()
	p.fs = newFunctionState(nil, funcTypeScript, fn)
	v.PushCompilerRoots(p.markRoots)
	defer v.PopCompilerRoots()

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}

	fn = p.endFunction()
	if p.hadError {
		return nil, p.errors
	}
	return fn, nil
}

// markRoots walks the enclosing chain of function states currently being
// compiled and marks each one's in-progress Function, satisfying
// spec.md §6's markCompilerRoots() contract.
func (p *Parser) markRoots(mark func(vm.Obj)) {
	for fs := p.fs; fs != nil; fs = fs.enclosing {
		mark(fs.function)
	}
}

// --- token stream plumbing ---

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lex.NextToken()
		if p.current.Type != token.Illegal {
			break
		}
		p.errorAtCurrent(p.current.Literal)
	}
}

func (p *Parser) check(t token.Type) bool {
	return p.current.Type == t
}

func (p *Parser) match(t token.Type) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t token.Type, msg string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *Parser) errorAtCurrent(msg string) {
	p.errorAt(p.current, msg)
}

func (p *Parser) error(msg string) {
	p.errorAt(p.previous, msg)
}

func (p *Parser) errorAt(tok token.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	p.errors = append(p.errors, CompileError{Line: tok.Pos.Line, Message: msg})
}

// synchronize exits panic mode at the next statement boundary, so one
// syntax error doesn't cascade into a wall of bogus follow-on errors.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != token.EOF {
		if p.previous.Type == token.Semicolon {
			return
		}
		switch p.current.Type {
		case token.Class, token.Fun, token.Var, token.For, token.If, token.While, token.Print, token.Return:
			return
		}
		p.advance()
	}
}

// --- emission helpers ---

func (p *Parser) chunk() *bytecode.Chunk {
	return p.fs.function.Chunk
}

func (p *Parser) emitByte(b byte) {
	p.chunk().Write(b, p.previous.Pos.Line)
}

func (p *Parser) emitOp(op bytecode.OpCode) {
	p.chunk().WriteOp(op, p.previous.Pos.Line)
}

func (p *Parser) emitOpByte(op bytecode.OpCode, b byte) {
	p.emitOp(op)
	p.emitByte(b)
}

// emitJump emits a two-byte placeholder offset after op and returns its
// offset in Code for patchJump to fill in later.
func (p *Parser) emitJump(op bytecode.OpCode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.chunk().Code) - 2
}

func (p *Parser) patchJump(offset int) {
	jump := len(p.chunk().Code) - offset - 2
	if jump > 0xffff {
		p.error("too much code to jump over")
	}
	p.chunk().Code[offset] = byte(jump >> 8)
	p.chunk().Code[offset+1] = byte(jump)
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitOp(bytecode.OpLoop)
	offset := len(p.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		p.error("loop body too large")
	}
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset))
}

func (p *Parser) emitReturn() {
	if p.fs.kind == funcTypeInitializer {
		p.emitOpByte(bytecode.OpGetLocal, 0)
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.emitOp(bytecode.OpReturn)
}

// makeConstant boxes v as a Value-in-any and appends it to the current
// chunk's constant pool.
func (p *Parser) makeConstant(v vm.Value) byte {
	idx := p.chunk().AddConstant(v)
	if idx > 0xff {
		p.error("too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

func (p *Parser) identifierConstant(name string) byte {
	return p.makeConstant(vm.ObjVal(p.vm.InternString(name)))
}

func (p *Parser) endFunction() *vm.ObjFunctionVal {
	p.emitReturn()
	fn := p.fs.function
	p.fs = p.fs.enclosing
	return fn
}

// --- scope / locals ---

func (p *Parser) beginScope() {
	p.fs.scopeDepth++
}

func (p *Parser) endScope() {
	p.fs.scopeDepth--
	for len(p.fs.locals) > 0 && p.fs.locals[len(p.fs.locals)-1].depth > p.fs.scopeDepth {
		last := p.fs.locals[len(p.fs.locals)-1]
		if last.isCaptured {
			p.emitOp(bytecode.OpCloseUpvalue)
		} else {
			p.emitOp(bytecode.OpPop)
		}
		p.fs.locals = p.fs.locals[:len(p.fs.locals)-1]
	}
}

func (p *Parser) declareVariable(name string) {
	if p.fs.scopeDepth == 0 {
		return
	}
	for i := len(p.fs.locals) - 1; i >= 0; i-- {
		local := p.fs.locals[i]
		if local.depth != -1 && local.depth < p.fs.scopeDepth {
			break
		}
		if local.name == name {
			p.error("already a variable with this name in this scope")
		}
	}
	p.addLocal(name)
}

func (p *Parser) addLocal(name string) {
	if len(p.fs.locals) >= 256 {
		p.error("too many local variables in function")
		return
	}
	p.fs.locals = append(p.fs.locals, local{name: name, depth: -1})
}

func (p *Parser) markInitialized() {
	if p.fs.scopeDepth == 0 {
		return
	}
	p.fs.locals[len(p.fs.locals)-1].depth = p.fs.scopeDepth
}

// --- declarations ---

func (p *Parser) declaration() {
	switch {
	case p.match(token.Class):
		p.classDeclaration()
	case p.match(token.Fun):
		p.funDeclaration()
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) varDeclaration() {
	p.consume(token.Ident, "expect variable name")
	name := p.previous.Literal
	p.declareVariable(name)

	if p.match(token.Assign) {
		p.expression()
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.consume(token.Semicolon, "expect ';' after variable declaration")

	if p.fs.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpByte(bytecode.OpDefineGlobal, p.identifierConstant(name))
}

func (p *Parser) funDeclaration() {
	p.consume(token.Ident, "expect function name")
	name := p.previous.Literal
	p.declareVariable(name)
	p.markInitialized()
	p.function(funcTypeFunction)
	if p.fs.scopeDepth == 0 {
		p.emitOpByte(bytecode.OpDefineGlobal, p.identifierConstant(name))
	}
}

// function compiles a fun body into its own FunctionState, then leaves an
// OP_CLOSURE instruction on the stack (even with zero upvalues, matching
// clox, which always wraps a Function in a Closure).
func (p *Parser) function(kind funcType) {
	fn := p.vm.NewFunction()
	p.fs = newFunctionState(p.fs, kind, fn)
	if kind != funcTypeScript {
		fn.Name = p.vm.InternString(p.previous.Literal)
	}

	p.beginScope()
	p.consume(token.LParen, "expect '(' after function name")
	if !p.check(token.RParen) {
		for {
			fn.Arity++
			if fn.Arity > 255 {
				p.error("can't have more than 255 parameters")
			}
			p.consume(token.Ident, "expect parameter name")
			p.declareVariable(p.previous.Literal)
			p.markInitialized()
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RParen, "expect ')' after parameters")
	p.consume(token.LBrace, "expect '{' before function body")
	p.block()

	upvalues := p.fs.upvalues
	compiled := p.endFunction()

	idx := p.makeConstant(vm.ObjVal(compiled))
	p.emitOpByte(bytecode.OpClosure, idx)
	for _, uv := range upvalues {
		if uv.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(uv.index)
	}
}

func (p *Parser) classDeclaration() {
	p.consume(token.Ident, "expect class name")
	name := p.previous.Literal
	nameConst := p.identifierConstant(name)
	p.declareVariable(name)
	p.emitOpByte(bytecode.OpClass, nameConst)
	if p.fs.scopeDepth == 0 {
		p.emitOpByte(bytecode.OpDefineGlobal, nameConst)
	} else {
		p.markInitialized()
	}

	cs := &classState{enclosing: p.cs}
	p.cs = cs

	if p.match(token.Less) {
		p.consume(token.Ident, "expect superclass name")
		p.variable(false)
		if p.previous.Literal == name {
			p.error("a class can't inherit from itself")
		}

		p.beginScope()
		p.addLocal("super")
		p.markInitialized()

		p.namedVariable(name, false)
		p.emitOp(bytecode.OpInherit)
		cs.hasSuperclass = true
	}

	p.namedVariable(name, false)
	p.consume(token.LBrace, "expect '{' before class body")
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		p.method()
	}
	p.consume(token.RBrace, "expect '}' after class body")
	p.emitOp(bytecode.OpPop) // the class itself, pushed by namedVariable above

	if cs.hasSuperclass {
		p.endScope()
	}
	p.cs = cs.enclosing
}

func (p *Parser) method() {
	p.consume(token.Ident, "expect method name")
	name := p.previous.Literal
	nameConst := p.identifierConstant(name)

	kind := funcTypeMethod
	if name == "init" {
		kind = funcTypeInitializer
	}
	p.function(kind)
	p.emitOpByte(bytecode.OpMethod, nameConst)
}

// --- statements ---

func (p *Parser) statement() {
	switch {
	case p.match(token.Print):
		p.printStatement()
	case p.match(token.If):
		p.ifStatement()
	case p.match(token.Return):
		p.returnStatement()
	case p.match(token.While):
		p.whileStatement()
	case p.match(token.For):
		p.forStatement()
	case p.match(token.LBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) block() {
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RBrace, "expect '}' after block")
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(token.Semicolon, "expect ';' after expression")
	p.emitOp(bytecode.OpPop)
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(token.Semicolon, "expect ';' after value")
	p.emitOp(bytecode.OpPrint)
}

func (p *Parser) returnStatement() {
	if p.fs.kind == funcTypeScript {
		p.error("can't return from top-level code")
	}
	if p.match(token.Semicolon) {
		p.emitReturn()
		return
	}
	if p.fs.kind == funcTypeInitializer {
		p.error("can't return a value from an initializer")
	}
	p.expression()
	p.consume(token.Semicolon, "expect ';' after return value")
	p.emitOp(bytecode.OpReturn)
}

func (p *Parser) ifStatement() {
	p.consume(token.LParen, "expect '(' after 'if'")
	p.expression()
	p.consume(token.RParen, "expect ')' after condition")

	thenJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()

	elseJump := p.emitJump(bytecode.OpJump)
	p.patchJump(thenJump)
	p.emitOp(bytecode.OpPop)

	if p.match(token.Else) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	p.consume(token.LParen, "expect '(' after 'while'")
	p.expression()
	p.consume(token.RParen, "expect ')' after condition")

	exitJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(bytecode.OpPop)
}

func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(token.LParen, "expect '(' after 'for'")

	switch {
	case p.match(token.Semicolon):
		// no initializer
	case p.match(token.Var):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.chunk().Code)
	exitJump := -1
	if !p.match(token.Semicolon) {
		p.expression()
		p.consume(token.Semicolon, "expect ';' after loop condition")
		exitJump = p.emitJump(bytecode.OpJumpIfFalse)
		p.emitOp(bytecode.OpPop)
	}

	if !p.match(token.RParen) {
		bodyJump := p.emitJump(bytecode.OpJump)
		incrementStart := len(p.chunk().Code)
		p.expression()
		p.emitOp(bytecode.OpPop)
		p.consume(token.RParen, "expect ')' after for clauses")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(bytecode.OpPop)
	}
	p.endScope()
}

// --- expressions (Pratt parser) ---

func (p *Parser) expression() {
	p.parsePrecedence(precAssignment)
}

func (p *Parser) parsePrecedence(prec precedence) {
	p.advance()
	rule := getRule(p.previous.Type)
	if rule.prefix == nil {
		p.error("expect expression")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(p, canAssign)

	for prec <= getRule(p.current.Type).precedence {
		p.advance()
		infix := getRule(p.previous.Type).infix
		infix(p, canAssign)
	}
}

func (p *Parser) number(canAssign bool) {
	n, err := strconv.ParseFloat(p.previous.Literal, 64)
	if err != nil {
		p.error("invalid number literal")
		return
	}
	p.emitOpByte(bytecode.OpConstant, p.makeConstant(vm.NumberVal(n)))
}

func (p *Parser) string(canAssign bool) {
	s := p.vm.InternString(p.previous.Literal)
	p.emitOpByte(bytecode.OpConstant, p.makeConstant(vm.ObjVal(s)))
}

func (p *Parser) literal(canAssign bool) {
	switch p.previous.Type {
	case token.False:
		p.emitOp(bytecode.OpFalse)
	case token.Nil:
		p.emitOp(bytecode.OpNil)
	case token.True:
		p.emitOp(bytecode.OpTrue)
	}
}

func (p *Parser) grouping(canAssign bool) {
	p.expression()
	p.consume(token.RParen, "expect ')' after expression")
}

func (p *Parser) unary(canAssign bool) {
	opType := p.previous.Type
	p.parsePrecedence(precUnary)
	switch opType {
	case token.Bang:
		p.emitOp(bytecode.OpNot)
	case token.Minus:
		p.emitOp(bytecode.OpNegate)
	}
}

func (p *Parser) binary(canAssign bool) {
	opType := p.previous.Type
	rule := getRule(opType)
	p.parsePrecedence(rule.precedence + 1)
	switch opType {
	case token.Plus:
		p.emitOp(bytecode.OpAdd)
	case token.Minus:
		p.emitOp(bytecode.OpSubtract)
	case token.Star:
		p.emitOp(bytecode.OpMultiply)
	case token.Slash:
		p.emitOp(bytecode.OpDivide)
	case token.Equal:
		p.emitOp(bytecode.OpEqual)
	case token.NotEqual:
		p.emitOp(bytecode.OpEqual)
		p.emitOp(bytecode.OpNot)
	case token.Greater:
		p.emitOp(bytecode.OpGreater)
	case token.GreaterEqual:
		p.emitOp(bytecode.OpLess)
		p.emitOp(bytecode.OpNot)
	case token.Less:
		p.emitOp(bytecode.OpLess)
	case token.LessEqual:
		p.emitOp(bytecode.OpGreater)
		p.emitOp(bytecode.OpNot)
	}
}

func (p *Parser) and(canAssign bool) {
	endJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func (p *Parser) or(canAssign bool) {
	elseJump := p.emitJump(bytecode.OpJumpIfFalse)
	endJump := p.emitJump(bytecode.OpJump)
	p.patchJump(elseJump)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *Parser) call(canAssign bool) {
	argc := p.argumentList()
	p.emitOpByte(bytecode.OpCall, argc)
}

func (p *Parser) argumentList() byte {
	var argc int
	if !p.check(token.RParen) {
		for {
			p.expression()
			if argc == 255 {
				p.error("can't have more than 255 arguments")
			}
			argc++
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RParen, "expect ')' after arguments")
	return byte(argc)
}

func (p *Parser) dot(canAssign bool) {
	p.consume(token.Ident, "expect property name after '.'")
	name := p.identifierConstant(p.previous.Literal)

	switch {
	case canAssign && p.match(token.Assign):
		p.expression()
		p.emitOpByte(bytecode.OpSetProperty, name)
	case p.match(token.LParen):
		argc := p.argumentList()
		p.emitOpByte(bytecode.OpInvoke, name)
		p.emitByte(argc)
	default:
		p.emitOpByte(bytecode.OpGetProperty, name)
	}
}

func (p *Parser) variable(canAssign bool) {
	p.namedVariable(p.previous.Literal, canAssign)
}

func (p *Parser) namedVariable(name string, canAssign bool) {
	getOp, setOp, arg := p.resolveVariable(name)

	if canAssign && p.match(token.Assign) {
		p.expression()
		p.emitOpByte(setOp, arg)
		return
	}
	p.emitOpByte(getOp, arg)
}

// resolveVariable decides whether name is a local, an upvalue, or a
// global, returning the matching get/set opcode pair and operand byte.
func (p *Parser) resolveVariable(name string) (get, set bytecode.OpCode, arg byte) {
	if slot := p.fs.resolveLocal(name); slot != -1 {
		if p.fs.locals[slot].depth == -1 {
			p.error("can't read local variable in its own initializer")
		}
		return bytecode.OpGetLocal, bytecode.OpSetLocal, byte(slot)
	}
	if idx := p.fs.resolveUpvalue(name); idx != -1 {
		return bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, byte(idx)
	}
	return bytecode.OpGetGlobal, bytecode.OpSetGlobal, p.identifierConstant(name)
}

func (p *Parser) this(canAssign bool) {
	if p.cs == nil {
		p.error("can't use 'this' outside of a class")
		return
	}
	p.variable(false)
}

func (p *Parser) super(canAssign bool) {
	if p.cs == nil {
		p.error("can't use 'super' outside of a class")
	} else if !p.cs.hasSuperclass {
		p.error("can't use 'super' in a class with no superclass")
	}
	p.consume(token.Dot, "expect '.' after 'super'")
	p.consume(token.Ident, "expect superclass method name")
	name := p.identifierConstant(p.previous.Literal)

	p.namedVariable("this", false)
	if p.match(token.LParen) {
		argc := p.argumentList()
		p.namedVariable("super", false)
		p.emitOpByte(bytecode.OpSuperInvoke, name)
		p.emitByte(argc)
		return
	}
	p.namedVariable("super", false)
	p.emitOpByte(bytecode.OpGetSuper, name)
}
