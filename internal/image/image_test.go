package image

import (
	"bytes"
	"testing"

	_ "github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/vm"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	src := `
		fun add(a, b) { return a + b; }
		print add(1, 2);
	`
	v1 := vm.New(vm.Options{})
	fn, errs := compile(t, v1, src)
	if len(errs) != 0 {
		t.Fatalf("compile errors: %v", errs)
	}

	var buf bytes.Buffer
	if err := Save(&buf, fn); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var out bytes.Buffer
	v2 := vm.New(vm.Options{Stdout: &out})
	loaded, err := Load(&buf, v2)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	result, err := v2.InterpretFunction(loaded)
	if err != nil || result != vm.InterpretOK {
		t.Fatalf("running loaded image failed: %v (%v)", err, result)
	}
	if out.String() != "3\n" {
		t.Fatalf("got output %q", out.String())
	}
}

// compile is a tiny adapter that compiles through vm.CompileHook, which
// the blank import of internal/compiler installs, the same path
// vm.Interpret takes, rather than calling compiler.CompileAll directly.
func compile(t *testing.T, v *vm.VM, src string) (*vm.ObjFunctionVal, []error) {
	t.Helper()
	fn, err := vm.CompileHook(v, []byte(src))
	if err != nil {
		return nil, []error{err}
	}
	return fn, nil
}
