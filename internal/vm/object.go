package vm

import "github.com/briarlang/briar/internal/bytecode"

// ObjType tags the concrete shape of a heap object, mirroring the `type`
// field on `Obj` in the C original (object.h) since Go has no generic
// downcast macro to lean on instead.
type ObjType int

const (
	ObjString ObjType = iota
	ObjFunction
	ObjNative
	ObjUpvalue
	ObjClosure
	ObjClass
	ObjInstance
	ObjBoundMethod
)

// Obj is satisfied by every heap-allocated value. The mark-sweep bookkeeping
// methods are unexported, which seals the interface to this package the
// same way the C original's allocateObject() is the only place that can
// produce a valid Obj* — nothing outside internal/vm can fabricate one.
type Obj interface {
	objType() ObjType
	isMarked() bool
	mark()
	unmark()
	nextAlloc() Obj
	setNextAlloc(Obj)
	allocSize() int
	setAllocSize(int)
}

// objHeader is embedded by every concrete object type. It carries the
// allocation-list link and GC mark bit that the C original packs into the
// leading `Obj` struct of every heap value, plus the byte size alloc()
// charged bytesAllocated for this object, so sweep can charge it back off
// when the object is freed.
type objHeader struct {
	kind    ObjType
	marked  bool
	next    Obj
	size    int
}

func (h *objHeader) objType() ObjType   { return h.kind }
func (h *objHeader) isMarked() bool     { return h.marked }
func (h *objHeader) mark()              { h.marked = true }
func (h *objHeader) unmark()            { h.marked = false }
func (h *objHeader) nextAlloc() Obj     { return h.next }
func (h *objHeader) setNextAlloc(o Obj) { h.next = o }
func (h *objHeader) allocSize() int     { return h.size }
func (h *objHeader) setAllocSize(n int) { h.size = n }

// ObjStringVal is an interned string. Hash is precomputed once at
// construction (copyString/takeString in object.c) so table lookups never
// re-hash.
type ObjStringVal struct {
	objHeader
	Chars string
	Hash  uint32
}

// ObjFunctionVal is a compiled function prototype: its own chunk, arity and
// the number of upvalues its closures must allocate. Name is nil for the
// implicit top-level script function.
type ObjFunctionVal struct {
	objHeader
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
	Name         *ObjStringVal
}

// NativeFn is a Go function exposed to Briar code as a callable value. It
// receives its already-evaluated arguments and returns a Value or an error;
// a non-nil error becomes a runtime error at the call site, same as a
// Briar-level runtimeError() would.
type NativeFn func(vm *VM, args []Value) (Value, error)

// ObjNativeVal wraps a NativeFn with the name and arity used for call-site
// arity checking and stack traces.
type ObjNativeVal struct {
	objHeader
	Name  string
	Arity int // -1 means variadic, skip the arity check
	Fn    NativeFn
}

// ObjUpvalueVal is a captured variable cell. While open, Location aliases a
// stack slot directly; Close() copies the value into Closed and repoints
// Location at it, matching closeUpvalues() in vm.c. NextOpen threads the
// VM's open-upvalue list, which is kept sorted by descending stack depth so
// closing a frame only ever has to walk a prefix of it.
type ObjUpvalueVal struct {
	objHeader
	Location *Value
	Closed   Value
	NextOpen *ObjUpvalueVal
	// openSlot is the operand-stack index Location aliases while the
	// upvalue is open. Go slices don't support the pointer-arithmetic
	// trick vm.c uses (comparing Value* addresses) to find an upvalue's
	// stack depth, so the index is tracked explicitly instead.
	openSlot int
}

// Close copies the pointed-to value into the upvalue itself and repoints
// Location at the copy, so it keeps working once the stack slot it used to
// alias is reused by a later call.
func (u *ObjUpvalueVal) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjClosureVal pairs a function prototype with the upvalues captured at
// the point the OP_CLOSURE instruction ran. It never owns the Function.
type ObjClosureVal struct {
	objHeader
	Function *ObjFunctionVal
	Upvalues []*ObjUpvalueVal
}

// ObjClassVal is a class: a name and its own method table. Inherited
// methods are copied into Methods at OP_INHERIT time (tableAddAll in the C
// original), so method lookup never has to walk a superclass chain.
type ObjClassVal struct {
	objHeader
	Name    *ObjStringVal
	Methods *Table
}

// ObjInstanceVal is a runtime instance of a class: the class it was
// constructed from plus its own field table.
type ObjInstanceVal struct {
	objHeader
	Class  *ObjClassVal
	Fields *Table
}

// ObjBoundMethodVal pairs a receiver with a method closure, produced by
// OP_GET_PROPERTY when the property named resolves to a method instead of a
// field (bindMethod in vm.c). Calling it re-inserts the receiver as slot 0.
type ObjBoundMethodVal struct {
	objHeader
	Receiver Value
	Method   *ObjClosureVal
}

// hashString is the FNV-1a variant object.c uses: offset basis 2166136261,
// prime 16777619.
func hashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// alloc links a freshly built object into the allocation list and charges
// its approximate size against the GC budget, then returns it. size is a
// rough stand-in for the C original's sizeof(Obj*) bookkeeping — Go never
// reports the real heap footprint of a struct, so this is an estimate
// good enough to drive the same amortized-growth trigger behavior.
func (vm *VM) alloc(o Obj, size int) {
	o.setAllocSize(size)
	vm.trackAlloc(size)
	vm.linkObject(o)
}

// InternString returns the canonical *ObjStringVal for s, allocating and
// interning a new one only on a miss. This serves both copyString (s is a
// fresh Go string already, since Go strings are immutable there's no
// separate takeString ownership-transfer path to model) and the result of
// concatenate.
func (vm *VM) InternString(s string) *ObjStringVal {
	hash := hashString(s)
	if interned := vm.strings.FindString(s, hash); interned != nil {
		return interned
	}
	str := &ObjStringVal{objHeader: objHeader{kind: ObjString}, Chars: s, Hash: hash}
	vm.alloc(str, len(s)+24)
	// Inserted with a Nil value: the intern table only cares about the
	// key; nothing ever reads this entry's value. str sits on the stack
	// during the insert, since growing the table can trigger a GC cycle.
	vm.push(ObjVal(str))
	vm.strings.Set(str, NilVal())
	vm.pop()
	return str
}

// NewFunction allocates an empty function prototype ready for the compiler
// to emit bytecode into.
func (vm *VM) NewFunction() *ObjFunctionVal {
	fn := &ObjFunctionVal{objHeader: objHeader{kind: ObjFunction}, Chunk: bytecode.NewChunk()}
	vm.alloc(fn, 48)
	return fn
}

// NewNative wraps fn as a callable native Value and allocates it.
func (vm *VM) NewNative(name string, arity int, fn NativeFn) *ObjNativeVal {
	native := &ObjNativeVal{objHeader: objHeader{kind: ObjNative}, Name: name, Arity: arity, Fn: fn}
	vm.alloc(native, 32)
	return native
}

// defineNative registers a native function into the globals table, per
// spec.md §6: "register a native before interpret". The name is interned
// and pushed/popped around the table insert for the same reason
// concatenate pushes its operands: InternString can itself trigger a GC
// cycle, so the native object must already be reachable when it runs.
func (vm *VM) defineNative(name string, arity int, fn NativeFn) {
	native := vm.NewNative(name, arity, fn)
	vm.push(ObjVal(native))
	nameObj := vm.InternString(name)
	vm.globals.Set(nameObj, vm.peek(0))
	vm.pop()
}

// DefineNative is the public form of defineNative, used by the root
// embedding API to install additional natives beyond clock().
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) {
	vm.defineNative(name, arity, fn)
}

// NewUpvalue allocates an open upvalue pointing at slot.
func (vm *VM) NewUpvalue(slot *Value) *ObjUpvalueVal {
	uv := &ObjUpvalueVal{objHeader: objHeader{kind: ObjUpvalue}, Location: slot}
	vm.alloc(uv, 24)
	return uv
}

// NewClosure allocates a closure over fn with a fresh, zeroed upvalue
// array of the size the compiler recorded on fn.
func (vm *VM) NewClosure(fn *ObjFunctionVal) *ObjClosureVal {
	closure := &ObjClosureVal{
		objHeader: objHeader{kind: ObjClosure},
		Function:  fn,
		Upvalues:  make([]*ObjUpvalueVal, fn.UpvalueCount),
	}
	vm.alloc(closure, 16+8*fn.UpvalueCount)
	return closure
}

// NewClass allocates an empty class with its own method table.
func (vm *VM) NewClass(name *ObjStringVal) *ObjClassVal {
	class := &ObjClassVal{objHeader: objHeader{kind: ObjClass}, Name: name, Methods: NewTable(vm)}
	vm.alloc(class, 32)
	return class
}

// NewInstance allocates an instance of class with an empty field table.
func (vm *VM) NewInstance(class *ObjClassVal) *ObjInstanceVal {
	inst := &ObjInstanceVal{objHeader: objHeader{kind: ObjInstance}, Class: class, Fields: NewTable(vm)}
	vm.alloc(inst, 32)
	return inst
}

// NewBoundMethod allocates a bound-method value pairing receiver and
// method.
func (vm *VM) NewBoundMethod(receiver Value, method *ObjClosureVal) *ObjBoundMethodVal {
	bound := &ObjBoundMethodVal{objHeader: objHeader{kind: ObjBoundMethod}, Receiver: receiver, Method: method}
	vm.alloc(bound, 24)
	return bound
}

