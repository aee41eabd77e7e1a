package compiler

import "github.com/briarlang/briar/internal/vm"

// funcType distinguishes the implicit top-level script from a real
// function/method/initializer, which changes what a bare `return` means
// and whether an implicit `this` local slot 0 is reserved.
type funcType int

const (
	funcTypeScript funcType = iota
	funcTypeFunction
	funcTypeMethod
	funcTypeInitializer
)

// upvalueRef is the compile-time bookkeeping record for a captured
// variable — not to be confused with vm.ObjUpvalueVal, which is the
// runtime cell.
type upvalueRef struct {
	isLocal bool
	index   uint8
}

type local struct {
	name       string
	depth      int
	isCaptured bool
}

// FunctionState is the compiler's per-nested-function bookkeeping record:
// its own locals stack and upvalue list, an enclosing pointer for
// resolveUpvalue to walk, and the in-progress *vm.ObjFunctionVal the VM's
// GC must be able to reach mid-compile (see (*Parser).markRoots).
//
// Locals are a depth-tracked stack rather than a name->slot map, since
// this grammar needs block-scoped shadowing and "declared but not yet
// initialized" locals (so `var a = a;` in the same declaration is a
// compile error), which only a depth-tracked stack supports.
type FunctionState struct {
	enclosing *FunctionState
	function  *vm.ObjFunctionVal
	kind      funcType

	locals     []local
	scopeDepth int
	upvalues   []upvalueRef
}

func newFunctionState(enclosing *FunctionState, kind funcType, fn *vm.ObjFunctionVal) *FunctionState {
	fs := &FunctionState{enclosing: enclosing, function: fn, kind: kind}
	// Slot 0 is reserved for the receiver in methods/initializers (`this`)
	// and for the callee itself in a plain function, matching clox's
	// compiler.c reserving local 0 unconditionally.
	name := ""
	if kind == funcTypeMethod || kind == funcTypeInitializer {
		name = "this"
	}
	fs.locals = append(fs.locals, local{name: name, depth: 0})
	return fs
}

// resolveLocal looks up name among this function's own locals, walking
// from the innermost (most recently declared) outward so shadowing finds
// the nearest declaration. -1 means not found.
func (fs *FunctionState) resolveLocal(name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue recursively walks enclosing functions to find name,
// threading an upvalueRef through every intervening function so each one
// captures from its immediate parent only, exactly as clox's
// resolveUpvalue does.
func (fs *FunctionState) resolveUpvalue(name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if slot := fs.enclosing.resolveLocal(name); slot != -1 {
		fs.enclosing.locals[slot].isCaptured = true
		return fs.addUpvalue(upvalueRef{isLocal: true, index: uint8(slot)})
	}
	if idx := fs.enclosing.resolveUpvalue(name); idx != -1 {
		return fs.addUpvalue(upvalueRef{isLocal: false, index: uint8(idx)})
	}
	return -1
}

// addUpvalue dedupes against an already-captured upvalue of the same
// source before appending a new one, so a variable captured twice inside
// the same function still gets a single upvalue slot.
func (fs *FunctionState) addUpvalue(uv upvalueRef) int {
	for i, existing := range fs.upvalues {
		if existing == uv {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, uv)
	fs.function.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

// classState tracks the class currently being compiled, so `this` and
// `super` resolve correctly and nested class declarations restore their
// enclosing class's state on exit.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}
