package vm

// CallFrame is one activation record on the frame stack: the closure being
// run, an instruction pointer into its chunk, and the operand-stack index
// where this call's locals begin. ip is a plain index into Closure's
// Function.Chunk.Code rather than a raw pointer, since Go slices don't let
// us take interior pointers the way C's `ip` walks a `uint8_t*`. The
// dispatch loop reads and advances this field directly through its cached
// frame pointer; ip is not held in a separate local between instructions.
type CallFrame struct {
	closure *ObjClosureVal
	ip      int
	slots   int // base index into vm.stack
}
