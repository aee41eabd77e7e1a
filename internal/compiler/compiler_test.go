package compiler

import (
	"testing"

	"github.com/briarlang/briar/internal/bytecode"
	"github.com/briarlang/briar/internal/vm"
)

func compileOK(t *testing.T, src string) *vm.ObjFunctionVal {
	t.Helper()
	v := vm.New(vm.Options{})
	fn, errs := CompileAll(v, []byte(src))
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors for %q: %v", src, errs)
	}
	return fn
}

func TestCompileArithmeticEmitsExpectedOpcodes(t *testing.T) {
	fn := compileOK(t, "print 1 + 2 * 3;")
	code := fn.Chunk.Code

	want := []bytecode.OpCode{
		bytecode.OpConstant, // 1
		bytecode.OpConstant, // 2
		bytecode.OpConstant, // 3
		bytecode.OpMultiply,
		bytecode.OpAdd,
		bytecode.OpPrint,
		bytecode.OpNil,
		bytecode.OpReturn,
	}
	var gotOps []bytecode.OpCode
	for i := 0; i < len(code); {
		op := bytecode.OpCode(code[i])
		gotOps = append(gotOps, op)
		i++
		switch op {
		case bytecode.OpConstant:
			i++
		}
	}
	if len(gotOps) != len(want) {
		t.Fatalf("got %v ops, want %v", gotOps, want)
	}
	for i, op := range want {
		if gotOps[i] != op {
			t.Fatalf("op %d: got %s, want %s", i, gotOps[i], op)
		}
	}
}

func TestCompileUndefinedVariableIsNotACompileError(t *testing.T) {
	// Undefined globals are a *runtime* error (GET_GLOBAL fails at run
	// time), not a compile error — the compiler has no notion of which
	// globals will exist by the time this code runs.
	compileOK(t, "print nope;")
}

func TestCompileReportsSyntaxError(t *testing.T) {
	v := vm.New(vm.Options{})
	_, errs := CompileAll(v, []byte("var ;"))
	if len(errs) == 0 {
		t.Fatal("expected a compile error for `var ;`")
	}
}

func TestCompileClassWithSuperclass(t *testing.T) {
	compileOK(t, `
		class A { greet() { return "a"; } }
		class B < A { greet() { return super.greet(); } }
		print B().greet();
	`)
}

func TestCompileClosureCapturesLocal(t *testing.T) {
	fn := compileOK(t, `
		fun outer() {
			var x = 1;
			fun inner() { return x; }
			return inner;
		}
	`)
	// outer's body should contain an OP_CLOSURE for inner with one
	// captured upvalue (isLocal=1).
	var outer *vm.ObjFunctionVal
	for _, c := range fn.Chunk.Constants {
		if cv, ok := c.(vm.Value); ok && cv.IsObjType(vm.ObjFunction) {
			outer = cv.AsObj().(*vm.ObjFunctionVal)
		}
	}
	if outer == nil {
		t.Fatal("expected outer's function in the script's constant pool")
	}
	found := false
	code := outer.Chunk.Code
	for i := 0; i+3 < len(code); i++ {
		if bytecode.OpCode(code[i]) == bytecode.OpClosure {
			found = code[i+2] == 1
			break
		}
	}
	if !found {
		t.Fatal("expected OP_CLOSURE with a local capture (isLocal=1) in outer's chunk")
	}
}
