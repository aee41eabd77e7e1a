// Package briar is the embedding API: it wraps internal/vm, giving a
// host program a single Interpreter to compile and run scripts against
// and a Marshal/Unmarshal pair to move values between Go and briar's
// tagged Value without reaching into internal/vm directly.
package briar

import (
	"fmt"

	_ "github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/vm"
)

// Value is briar's real runtime value — the same tagged struct every
// stack slot and field holds internally. It is not a separate boxed
// representation: vm.Value already copies cheaply and carries its own
// type tag, so there is nothing left to wrap.
type Value = vm.Value

// ValueKind is a friendlier discriminant than repeatedly calling
// v.IsObjType(...).
type ValueKind int

const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindFunction
	KindClass
	KindInstance
	KindNative
	KindBoundMethod
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindNative:
		return "native"
	case KindBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// KindOf classifies v for inspection; scripts and host code both only
// ever see these nine shapes (spec.md §4.1's four Value tags, with Obj
// expanded into its eight concrete variants, Closure folded into Function
// and Upvalue left out, since it never escapes the VM).
func KindOf(v Value) ValueKind {
	switch {
	case v.IsNil():
		return KindNil
	case v.IsBool():
		return KindBool
	case v.IsNumber():
		return KindNumber
	case v.IsObjType(vm.ObjString):
		return KindString
	case v.IsObjType(vm.ObjClosure), v.IsObjType(vm.ObjFunction):
		return KindFunction
	case v.IsObjType(vm.ObjClass):
		return KindClass
	case v.IsObjType(vm.ObjInstance):
		return KindInstance
	case v.IsObjType(vm.ObjNative):
		return KindNative
	case v.IsObjType(vm.ObjBoundMethod):
		return KindBoundMethod
	default:
		return KindNil
	}
}

// ArgError is a typed argument validation error, for native functions and
// for Unmarshal's target-type mismatches alike.
type ArgError struct {
	Name string
	Want string
	Got  string
}

func (e ArgError) Error() string {
	switch {
	case e.Name != "" && e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %q: want %s, got %s", e.Name, e.Want, e.Got)
	case e.Want != "" && e.Got != "":
		return fmt.Sprintf("want %s, got %s", e.Want, e.Got)
	case e.Want != "":
		return fmt.Sprintf("want %s", e.Want)
	default:
		return "argument error"
	}
}

// Marshaler lets a Go type control its own conversion into a Value.
type Marshaler interface {
	MarshalBriar(i *Interpreter) (Value, error)
}

// Unmarshaler lets a Go type control its own conversion out of a Value.
type Unmarshaler interface {
	UnmarshalBriar(Value) error
}

// MarshalOptions tunes Marshal. Briar has no array/object literal type to
// mark read-only (a Value is only ever Nil/Bool/Number/Obj), so the only
// knob here is binding the marshaled value into the global table as a
// side effect, instead of handing the caller a detached Value they would
// otherwise have to bind themselves via DefineGlobal.
type MarshalOptions struct {
	Global bool
	Name   string
}

// NativeFunc is the host-side shape a Go function must have to become a
// callable Value; arguments are positional, matching briar's CALL opcode
// (spec.md has no named-parameter calling convention to mirror).
type NativeFunc func(i *Interpreter, args []Value) (Value, error)

// Interpreter wraps a single *vm.VM and is the embedding entry point:
// briar.New() followed by (*Interpreter).Run(src).
type Interpreter struct {
	core *vm.VM
}

// New constructs an Interpreter with default VM tunables (spec.md §4.4's
// STACK_MAX/FRAMES_MAX/heap-grow-factor constants).
func New() *Interpreter {
	return NewWithOptions(vm.DefaultOptions())
}

// NewWithOptions constructs an Interpreter with caller-supplied tunables,
// typically produced by internal/config.Load(...).Options().
func NewWithOptions(opts vm.Options) *Interpreter {
	return &Interpreter{core: vm.New(opts)}
}

// Core exposes the underlying *vm.VM for callers that need functionality
// this wrapper doesn't surface (e.g. Push/Pop for a custom native).
func (i *Interpreter) Core() *vm.VM { return i.core }

// Free tears down the VM's heap and tables. The Interpreter must not be
// used afterward.
func (i *Interpreter) Free() { i.core.Free() }

// Run compiles and executes src, returning the same three-way result
// spec.md §6 specifies (OK/CompileError/RuntimeError).
func (i *Interpreter) Run(src []byte) (vm.InterpretResult, error) {
	return i.core.Interpret(src)
}

// DefineNative installs fn as a callable global, the embedding-level
// equivalent of internal/vm/natives.go's clock().
func (i *Interpreter) DefineNative(name string, arity int, fn NativeFunc) {
	i.core.DefineNative(name, arity, func(core *vm.VM, args []Value) (Value, error) {
		return fn(i, args)
	})
}

// DefineGlobal binds an already-marshaled Value under name.
func (i *Interpreter) DefineGlobal(name string, v Value) {
	i.core.DefineGlobal(name, v)
}

// Global looks up a global value left behind by a prior Run, e.g. to read
// back a top-level `var result = ...;` a script declared.
func (i *Interpreter) Global(name string) (Value, bool) {
	return i.core.GetGlobal(name)
}
