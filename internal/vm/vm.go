package vm

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/briarlang/briar/internal/bytecode"
)

// CompileHook is installed by internal/compiler's init(), the same
// driver-registration pattern database/sql uses to avoid internal/vm
// importing internal/compiler directly — that import has to run the other
// way, since the compiler allocates Functions and interns strings through
// the VM it is compiling into.
var CompileHook func(vm *VM, source []byte) (*ObjFunctionVal, error)

// InterpretResult mirrors clox's three-way interpret() outcome.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// Options configures a VM instance. Zero-value fields are filled in from
// DefaultOptions by New; internal/config (SPEC_FULL.md §4.10) is what
// actually populates these from a TOML file on disk.
type Options struct {
	StackMax           int
	FramesMax          int
	HeapGrowFactor     float64
	InitialGCThreshold int
	StressGC           bool
	TraceExecution     bool
	Verbose            bool
	Stdout             io.Writer
}

// DefaultOptions returns the settings clox hardcodes as constants:
// FRAMES_MAX = 64, STACK_MAX = FRAMES_MAX * UINT8_COUNT, a 1 MiB initial
// GC threshold and a 2x heap-grow factor.
func DefaultOptions() Options {
	return Options{
		StackMax:           64 * 256,
		FramesMax:          64,
		HeapGrowFactor:     2,
		InitialGCThreshold: 1024 * 1024,
		Stdout:             os.Stdout,
	}
}

// VM is a single interpreter instance: operand stack, frame stack, globals,
// intern table and GC-managed heap. It is single-threaded and
// non-reentrant — one Interpret call must finish before another begins.
type VM struct {
	stack      []Value
	stackTop   int
	frames     []CallFrame
	frameCount int

	globals *Table
	strings *Table

	objects      Obj
	bytesAllocated int
	nextGC         int
	grayStack      []Obj

	openUpvalues *ObjUpvalueVal
	initString   *ObjStringVal

	options Options
	stdout  io.Writer
	id      uuid.UUID

	// markCompilerRoots lets the compiler collaborator register its own
	// in-progress Function objects as GC roots (spec.md §6); nil when no
	// compile is in flight.
	markCompilerRoots func(mark func(Obj))
}

// ID returns this VM instance's session identifier, attached to
// RuntimeError.Session so errors from a long-lived host process that
// cycles through several VMs can be correlated back to the one that
// raised them. The VM's log messages do not include it.
func (vm *VM) ID() uuid.UUID { return vm.id }

// New constructs a VM and installs the built-in natives. Matches
// initVM()/defineNative(clock) in vm.c.
func New(opts Options) *VM {
	def := DefaultOptions()
	if opts.StackMax <= 0 {
		opts.StackMax = def.StackMax
	}
	if opts.FramesMax <= 0 {
		opts.FramesMax = def.FramesMax
	}
	if opts.HeapGrowFactor <= 0 {
		opts.HeapGrowFactor = def.HeapGrowFactor
	}
	if opts.InitialGCThreshold <= 0 {
		opts.InitialGCThreshold = def.InitialGCThreshold
	}
	if opts.Stdout == nil {
		opts.Stdout = def.Stdout
	}

	vm := &VM{
		stack:   make([]Value, opts.StackMax),
		frames:  make([]CallFrame, opts.FramesMax),
		options: opts,
		stdout:  opts.Stdout,
		nextGC:  opts.InitialGCThreshold,
		id:      uuid.New(),
	}
	vm.globals = NewTable(vm)
	vm.strings = NewTable(vm)

	// initString must be interned after vm.strings exists, because
	// interning mutates the very table being constructed.
	vm.initString = vm.InternString("init")

	vm.defineNative("clock", 0, nativeClock)

	if vm.options.Verbose {
		commonlog.NewInfoMessage(0, "briar vm initialized")
	}

	return vm
}

// Free clears state that would otherwise be a dangling GC root, matching
// freeVM()'s discipline of nulling initString before the tables it lives
// in are torn down. Go's own collector reclaims the heap once vm itself is
// unreachable; there is no explicit freeObjects walk to run.
func (vm *VM) Free() {
	vm.initString = nil
	vm.globals = NewTable(vm)
	vm.strings = NewTable(vm)
	vm.objects = nil
	vm.stack = nil
	vm.frames = nil
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

// InterpretFunction runs an already-compiled top-level function to
// completion. The compiler collaborator lives in internal/compiler; it is
// wired in by cmd/briar and the root api.go, which is why this signature
// takes an already-compiled function rather than source bytes — keeping internal/vm free of a
// dependency on internal/compiler avoids an import cycle, since the
// compiler itself must import internal/vm to allocate Functions and
// strings.
func (vm *VM) InterpretFunction(fn *ObjFunctionVal) (InterpretResult, error) {
	vm.resetStack()
	closure := vm.NewClosure(fn)
	vm.push(ObjVal(closure))
	if err := vm.call(closure, 0); err != nil {
		return InterpretRuntimeError, err
	}
	return vm.run()
}

// Interpret compiles source via the registered CompileHook and runs the
// result, matching clox's top-level interpret(). CompileHook is nil until
// something imports internal/compiler (cmd/briar and the root briar
// package both do, as their first import).
func (vm *VM) Interpret(source []byte) (InterpretResult, error) {
	if CompileHook == nil {
		return InterpretCompileError, errors.New("briar: no compiler registered (import internal/compiler)")
	}
	fn, err := CompileHook(vm, source)
	if err != nil {
		return InterpretCompileError, err
	}
	return vm.InterpretFunction(fn)
}

func (vm *VM) stackTrace() []string {
	trace := make([]string, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.LineAt(frame.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	return trace
}

// run is the dispatch loop: clox's run(). The current frame pointer and
// its code slice are cached in locals and reloaded on every frame switch;
// ip itself is read and advanced in place on frame.ip, not copied into a
// local, so the frame record is always current for stack traces and GC.
func (vm *VM) run() (InterpretResult, error) {
	frame := &vm.frames[vm.frameCount-1]
	code := frame.closure.Function.Chunk.Code

	readByte := func() byte {
		b := code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := code[frame.ip]
		lo := code[frame.ip+1]
		frame.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() Value {
		idx := readByte()
		c := frame.closure.Function.Chunk.Constants[idx]
		if v, ok := c.(Value); ok {
			return v
		}
		return ObjVal(c.(Obj))
	}
	readString := func() *ObjStringVal {
		return readConstant().AsObj().(*ObjStringVal)
	}

	for {
		if vm.options.TraceExecution {
			op := bytecode.OpCode(code[frame.ip])
			fmt.Fprintf(vm.stdout, "%04d %s\n", frame.ip, op)
		}

		op := bytecode.OpCode(readByte())
		switch op {
		case bytecode.OpConstant:
			vm.push(readConstant())

		case bytecode.OpNil:
			vm.push(NilVal())
		case bytecode.OpTrue:
			vm.push(BoolVal(true))
		case bytecode.OpFalse:
			vm.push(BoolVal(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.slots+slot])
		case bytecode.OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.slots+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return InterpretRuntimeError, vm.runtimeError("undefined variable '%s'", name.Chars)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case bytecode.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return InterpretRuntimeError, vm.runtimeError("undefined variable '%s'", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			slot := int(readByte())
			vm.push(*frame.closure.Upvalues[slot].Location)
		case bytecode.OpSetUpvalue:
			slot := int(readByte())
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			name := readString()
			if !vm.peek(0).IsObjType(ObjInstance) {
				return InterpretRuntimeError, vm.runtimeError("only instances have properties")
			}
			inst := vm.peek(0).AsObj().(*ObjInstanceVal)
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(inst.Class, name); err != nil {
				return InterpretRuntimeError, err
			}
		case bytecode.OpSetProperty:
			name := readString()
			if !vm.peek(1).IsObjType(ObjInstance) {
				return InterpretRuntimeError, vm.runtimeError("only instances have fields")
			}
			inst := vm.peek(1).AsObj().(*ObjInstanceVal)
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)
		case bytecode.OpGetSuper:
			name := readString()
			superclass := vm.pop().AsObj().(*ObjClassVal)
			if err := vm.bindMethod(superclass, name); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolVal(ValuesEqual(a, b)))
		case bytecode.OpGreater:
			if err := vm.binaryNumberOp(func(a, b float64) Value { return BoolVal(a > b) }); err != nil {
				return InterpretRuntimeError, err
			}
		case bytecode.OpLess:
			if err := vm.binaryNumberOp(func(a, b float64) Value { return BoolVal(a < b) }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpAdd:
			b := vm.peek(0)
			a := vm.peek(1)
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.pop()
				vm.pop()
				vm.push(NumberVal(a.AsNumber() + b.AsNumber()))
			case a.IsObjType(ObjString) && b.IsObjType(ObjString):
				result := vm.concatenate(a.AsObj().(*ObjStringVal), b.AsObj().(*ObjStringVal))
				vm.pop()
				vm.pop()
				vm.push(result)
			default:
				return InterpretRuntimeError, vm.runtimeError("operands must be two numbers or two strings")
			}
		case bytecode.OpSubtract:
			if err := vm.binaryNumberOp(func(a, b float64) Value { return NumberVal(a - b) }); err != nil {
				return InterpretRuntimeError, err
			}
		case bytecode.OpMultiply:
			if err := vm.binaryNumberOp(func(a, b float64) Value { return NumberVal(a * b) }); err != nil {
				return InterpretRuntimeError, err
			}
		case bytecode.OpDivide:
			if err := vm.binaryNumberOp(func(a, b float64) Value { return NumberVal(a / b) }); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpNot:
			vm.push(BoolVal(IsFalsey(vm.pop())))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return InterpretRuntimeError, vm.runtimeError("operand must be a number")
			}
			vm.push(NumberVal(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.stdout, vm.stringify(vm.pop()))

		case bytecode.OpJump:
			off := readShort()
			frame.ip += off
		case bytecode.OpJumpIfFalse:
			off := readShort()
			if IsFalsey(vm.peek(0)) {
				frame.ip += off
			}
		case bytecode.OpLoop:
			off := readShort()
			frame.ip -= off

		case bytecode.OpCall:
			argc := int(readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return InterpretRuntimeError, err
			}
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code

		case bytecode.OpInvoke:
			name := readString()
			argc := int(readByte())
			if err := vm.invoke(name, argc); err != nil {
				return InterpretRuntimeError, err
			}
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code

		case bytecode.OpSuperInvoke:
			name := readString()
			argc := int(readByte())
			superclass := vm.pop().AsObj().(*ObjClassVal)
			if err := vm.invokeFromClass(superclass, name, argc); err != nil {
				return InterpretRuntimeError, err
			}
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code

		case bytecode.OpClosure:
			fn := readConstant().AsObj().(*ObjFunctionVal)
			closure := vm.NewClosure(fn)
			vm.push(ObjVal(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK, nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
			code = frame.closure.Function.Chunk.Code

		case bytecode.OpClass:
			name := readString()
			vm.push(ObjVal(vm.NewClass(name)))
		case bytecode.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsObjType(ObjClass) {
				return InterpretRuntimeError, vm.runtimeError("superclass must be a class")
			}
			subclass := vm.peek(0).AsObj().(*ObjClassVal)
			superVal.AsObj().(*ObjClassVal).Methods.AddAll(subclass.Methods)
			vm.pop()
		case bytecode.OpMethod:
			name := readString()
			vm.defineMethod(name)

		default:
			return InterpretRuntimeError, vm.runtimeError("unknown opcode %d", op)
		}
	}
}

func (vm *VM) binaryNumberOp(op func(a, b float64) Value) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(op(a, b))
	return nil
}

// concatenate builds a fresh Go string from two interned operands and
// interns the result. Both operands are already on the stack (pushed by
// their producing instructions), which is the push-then-allocate discipline
// spec.md §5 requires: nothing here is unrooted while InternString can
// trigger a GC cycle.
func (vm *VM) concatenate(a, b *ObjStringVal) Value {
	return ObjVal(vm.InternString(a.Chars + b.Chars))
}

// callValue implements clox's callValue: dispatch by callee object type.
func (vm *VM) callValue(callee Value, argc int) error {
	if !callee.IsObj() {
		return vm.runtimeError("can only call functions and classes")
	}
	switch obj := callee.AsObj().(type) {
	case *ObjClosureVal:
		return vm.call(obj, argc)
	case *ObjNativeVal:
		return vm.callNative(obj, argc)
	case *ObjClassVal:
		inst := vm.NewInstance(obj)
		vm.stack[vm.stackTop-argc-1] = ObjVal(inst)
		if initializer, ok := obj.Methods.Get(vm.initString); ok {
			return vm.call(initializer.AsObj().(*ObjClosureVal), argc)
		}
		if argc != 0 {
			return vm.runtimeError("expected 0 arguments but got %d", argc)
		}
		return nil
	case *ObjBoundMethodVal:
		vm.stack[vm.stackTop-argc-1] = obj.Receiver
		return vm.call(obj.Method, argc)
	default:
		return vm.runtimeError("can only call functions and classes")
	}
}

func (vm *VM) callNative(native *ObjNativeVal, argc int) error {
	if native.Arity >= 0 && argc != native.Arity {
		return vm.runtimeError("expected %d arguments but got %d", native.Arity, argc)
	}
	args := vm.stack[vm.stackTop-argc : vm.stackTop]
	result, err := native.Fn(vm, args)
	if err != nil {
		return vm.runtimeErrorWrap(err, "error calling native function '%s'", native.Name)
	}
	vm.stackTop -= argc + 1
	vm.push(result)
	return nil
}

func (vm *VM) call(closure *ObjClosureVal, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeError("expected %d arguments but got %d", closure.Function.Arity, argc)
	}
	if vm.frameCount == len(vm.frames) {
		return vm.runtimeError("stack overflow")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argc - 1
	return nil
}

// invoke fuses GET_PROPERTY+CALL: if the name resolves to a field that
// happens to be callable the field shadows the method (invoke in vm.c).
func (vm *VM) invoke(name *ObjStringVal, argc int) error {
	receiver := vm.peek(argc)
	if !receiver.IsObjType(ObjInstance) {
		return vm.runtimeError("only instances have methods")
	}
	inst := receiver.AsObj().(*ObjInstanceVal)
	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argc-1] = v
		return vm.callValue(v, argc)
	}
	return vm.invokeFromClass(inst.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *ObjClassVal, name *ObjStringVal, argc int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("undefined property '%s'", name.Chars)
	}
	return vm.call(method.AsObj().(*ObjClosureVal), argc)
}

func (vm *VM) bindMethod(class *ObjClassVal, name *ObjStringVal) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("undefined property '%s'", name.Chars)
	}
	bound := vm.NewBoundMethod(vm.peek(0), method.AsObj().(*ObjClosureVal))
	vm.pop()
	vm.push(ObjVal(bound))
	return nil
}

func (vm *VM) defineMethod(name *ObjStringVal) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*ObjClassVal)
	class.Methods.Set(name, method)
	vm.pop()
}

// captureUpvalue finds or creates the upvalue for the stack slot at index
// local, keeping the open-upvalue list sorted by descending slot so
// sibling closures over the same variable share one cell.
func (vm *VM) captureUpvalue(local int) *ObjUpvalueVal {
	var prev *ObjUpvalueVal
	uv := vm.openUpvalues
	for uv != nil && uv.openSlot > local {
		prev = uv
		uv = uv.NextOpen
	}
	if uv != nil && uv.openSlot == local {
		return uv
	}
	created := vm.NewUpvalue(&vm.stack[local])
	created.openSlot = local
	created.NextOpen = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above stack index last,
// per closeUpvalues(Value* last) in vm.c.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.openSlot >= last {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.NextOpen
	}
}

// stringify renders a Value the way PRINT does (spec.md §4.6).
func (vm *VM) stringify(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return strconv.FormatFloat(v.AsNumber(), 'g', -1, 64)
	case v.IsObjType(ObjString):
		return v.AsObj().(*ObjStringVal).Chars
	case v.IsObjType(ObjFunction):
		fn := v.AsObj().(*ObjFunctionVal)
		if fn.Name == nil {
			return "<script>"
		}
		return "<fn " + fn.Name.Chars + ">"
	case v.IsObjType(ObjNative):
		return "<native fn>"
	case v.IsObjType(ObjClosure):
		return vm.stringify(ObjVal(v.AsObj().(*ObjClosureVal).Function))
	case v.IsObjType(ObjClass):
		return v.AsObj().(*ObjClassVal).Name.Chars
	case v.IsObjType(ObjInstance):
		return v.AsObj().(*ObjInstanceVal).Class.Name.Chars + " instance"
	case v.IsObjType(ObjBoundMethod):
		return vm.stringify(ObjVal(v.AsObj().(*ObjBoundMethodVal).Method))
	default:
		return "<upvalue>"
	}
}

// PushCompilerRoots installs the compiler collaborator's GC-root hook
// (spec.md §6: markCompilerRoots()) for the duration of a Compile call.
func (vm *VM) PushCompilerRoots(fn func(mark func(Obj))) {
	vm.markCompilerRoots = fn
}

// PopCompilerRoots clears the hook once compilation finishes, so a later
// GC cycle triggered by ordinary program execution doesn't walk a stale
// (possibly now-invalid) compiler state.
func (vm *VM) PopCompilerRoots() {
	vm.markCompilerRoots = nil
}

// Push/Pop/Peek expose the operand stack to the compiler collaborator and
// to embedding code (root api.go).
func (vm *VM) Push(v Value)          { vm.push(v) }
func (vm *VM) Pop() Value            { return vm.pop() }
func (vm *VM) Peek(distance int) Value { return vm.peek(distance) }

// DefineGlobal binds an arbitrary Value to a global name, the same table
// DefineNative installs into, for embedding code (root api.go) that wants
// to hand a script a constant or a marshaled value rather than a native
// function.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.globals.Set(vm.InternString(name), v)
}

// GetGlobal looks up a global by name, for embedding code reading a
// script's result back out of the global table after Interpret returns.
func (vm *VM) GetGlobal(name string) (Value, bool) {
	return vm.globals.Get(vm.InternString(name))
}
