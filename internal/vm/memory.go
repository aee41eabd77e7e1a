package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// heapGrowFactor is the default multiplier applied to bytesAllocated to
// compute the next collection threshold (memory.c: GC_HEAP_GROW_FACTOR).
// It is overridable via internal/config (SPEC_FULL.md §4.10), stored on
// vm.options.HeapGrowFactor; this constant is only the fallback default.
const heapGrowFactor = 2

// trackAlloc runs before every heap allocation. It mirrors reallocate()'s
// accounting: bump bytesAllocated, then collect first if the budget is
// blown (or stress mode asks for a collection on every single allocation).
func (vm *VM) trackAlloc(delta int) {
	vm.bytesAllocated += delta
	if vm.options.StressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

// untrackAlloc reverses trackAlloc's bump when an allocation is freed
// outright (sweep dropping an unreached object, a table shrinking). Unlike
// trackAlloc it never triggers a collection; a shrinking budget is never a
// reason to collect.
func (vm *VM) untrackAlloc(delta int) {
	vm.bytesAllocated -= delta
}

// linkObject prepends o to the allocation list, the one place new objects
// become reachable from the sweep walk.
func (vm *VM) linkObject(o Obj) {
	o.setNextAlloc(vm.objects)
	vm.objects = o
}

// markObject grays a single object: set its mark bit and, unless it's
// already gray or black, push it onto the worklist for blackening.
func (vm *VM) markObject(o Obj) {
	if o == nil || o.isMarked() {
		return
	}
	o.mark()
	vm.grayStack = append(vm.grayStack, o)
}

// markValue marks v's payload object, if it has one; Nil/Bool/Number carry
// nothing for the collector to chase.
func (vm *VM) markValue(v Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

// markRoots marks every Value and object directly reachable from VM state:
// the live slice of the operand stack, every frame's closure, the
// open-upvalue list, the globals table, initString, and whatever the
// compiler collaborator currently has in flight.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		vm.markObject(uv)
	}
	vm.globals.mark(vm)
	if vm.initString != nil {
		vm.markObject(vm.initString)
	}
	if vm.markCompilerRoots != nil {
		vm.markCompilerRoots(vm.markObject)
	}
}

// blackenObject marks everything a single gray object points to, per the
// exhaustive switch in memory.c's blackenObject. String and Native have no
// outgoing references.
func (vm *VM) blackenObject(o Obj) {
	switch t := o.(type) {
	case *ObjFunctionVal:
		if t.Name != nil {
			vm.markObject(t.Name)
		}
		for _, c := range t.Chunk.Constants {
			if cv, ok := c.(Value); ok {
				vm.markValue(cv)
			}
		}
	case *ObjClosureVal:
		vm.markObject(t.Function)
		for _, uv := range t.Upvalues {
			if uv != nil {
				vm.markObject(uv)
			}
		}
	case *ObjUpvalueVal:
		vm.markValue(t.Closed)
	case *ObjClassVal:
		vm.markObject(t.Name)
		t.Methods.mark(vm)
	case *ObjInstanceVal:
		vm.markObject(t.Class)
		t.Fields.mark(vm)
	case *ObjBoundMethodVal:
		vm.markValue(t.Receiver)
		vm.markObject(t.Method)
	case *ObjStringVal, *ObjNativeVal:
		// no outgoing references
	}
}

// traceReferences drains the gray worklist, blackening each object in turn.
// blackenObject may itself push new gray objects, so this loops until the
// worklist is empty, not just once.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		o := vm.grayStack[len(vm.grayStack)-1]
		vm.grayStack = vm.grayStack[:len(vm.grayStack)-1]
		vm.blackenObject(o)
	}
}

// sweep walks the allocation list, dropping every object whose mark bit
// survived tracing unset, and clears the bit on everything that remains.
func (vm *VM) sweep() {
	var prev Obj
	obj := vm.objects
	for obj != nil {
		if obj.isMarked() {
			obj.unmark()
			prev = obj
			obj = obj.nextAlloc()
			continue
		}
		unreached := obj
		obj = obj.nextAlloc()
		if prev != nil {
			prev.setNextAlloc(obj)
		} else {
			vm.objects = obj
		}
		vm.untrackAlloc(unreached.allocSize())
	}
}

// collectGarbage runs one full stop-the-world tri-color mark-sweep cycle:
// mark roots, trace to fixpoint, drop dead interned strings (a weak
// reference, so this must happen between trace and sweep), sweep, then
// grow the threshold for next time.
func (vm *VM) collectGarbage() {
	before := vm.bytesAllocated
	vm.markRoots()
	vm.traceReferences()
	vm.strings.removeWhite()
	vm.sweep()
	growFactor := vm.options.HeapGrowFactor
	if growFactor <= 0 {
		growFactor = heapGrowFactor
	}
	vm.nextGC = int(float64(vm.bytesAllocated) * growFactor)
	if vm.options.Verbose {
		commonlog.NewInfoMessage(0, fmt.Sprintf(
			"gc: %d -> %d bytes, next at %d", before, vm.bytesAllocated, vm.nextGC))
	}
}
