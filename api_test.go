package briar

import (
	"bytes"
	"errors"
	"testing"

	"github.com/briarlang/briar/internal/vm"
)

func TestRunPrintsToStdout(t *testing.T) {
	var out bytes.Buffer
	i := NewWithOptions(vm.Options{Stdout: &out})
	defer i.Free()

	result, err := i.Run([]byte(`print 1 + 2;`))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != vm.InterpretOK {
		t.Fatalf("got result %v, want InterpretOK", result)
	}
	if out.String() != "3\n" {
		t.Fatalf("got output %q", out.String())
	}
}

func TestRunCompileErrorResult(t *testing.T) {
	i := New()
	defer i.Free()

	result, err := i.Run([]byte(`var ;`))
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if result != vm.InterpretCompileError {
		t.Fatalf("got result %v, want InterpretCompileError", result)
	}
}

func TestRunRuntimeErrorResult(t *testing.T) {
	i := New()
	defer i.Free()

	result, err := i.Run([]byte(`print undefined_name;`))
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if result != vm.InterpretRuntimeError {
		t.Fatalf("got result %v, want InterpretRuntimeError", result)
	}
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *vm.RuntimeError in chain, got %T: %v", err, err)
	}
}

func TestMarshalScalarsRoundTrip(t *testing.T) {
	i := New()
	defer i.Free()

	cases := []any{42, "hello", true, 3.5}
	for _, c := range cases {
		v, err := i.Marshal(c)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", c, err)
		}
		raw, err := ToGo(v)
		if err != nil {
			t.Fatalf("ToGo(%v) failed: %v", v, err)
		}
		switch want := c.(type) {
		case int:
			if raw.(float64) != float64(want) {
				t.Fatalf("got %v, want %v", raw, want)
			}
		default:
			if raw != want {
				t.Fatalf("got %v, want %v", raw, want)
			}
		}
	}
}

type point struct {
	X, Y float64
}

func TestMarshalStructBecomesInstance(t *testing.T) {
	i := New()
	defer i.Free()

	v, err := i.Marshal(point{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if KindOf(v) != KindInstance {
		t.Fatalf("got kind %v, want instance", KindOf(v))
	}

	var out point
	if err := Unmarshal(v, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out != (point{X: 1, Y: 2}) {
		t.Fatalf("got %+v, want {1 2}", out)
	}
}

func TestDefineNativeIsCallableFromScript(t *testing.T) {
	var out bytes.Buffer
	i := NewWithOptions(vm.Options{Stdout: &out})
	defer i.Free()

	i.DefineNative("double", 1, func(_ *Interpreter, args []Value) (Value, error) {
		return vm.NumberVal(args[0].AsNumber() * 2), nil
	})

	result, err := i.Run([]byte(`print double(21);`))
	if err != nil || result != vm.InterpretOK {
		t.Fatalf("Run failed: %v (%v)", err, result)
	}
	if out.String() != "42\n" {
		t.Fatalf("got output %q", out.String())
	}
}

func TestDefineNativeErrorRecoversAsRuntimeError(t *testing.T) {
	i := New()
	defer i.Free()

	sentinel := errors.New("disk on fire")
	i.DefineNative("explode", 0, func(_ *Interpreter, args []Value) (Value, error) {
		return Value{}, sentinel
	})

	result, err := i.Run([]byte(`explode();`))
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if result != vm.InterpretRuntimeError {
		t.Fatalf("got result %v, want InterpretRuntimeError", result)
	}
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *vm.RuntimeError in chain, got %T: %v", err, err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected native's sentinel error still reachable via errors.Is, got %v", err)
	}
}

func TestMarshalGoFuncBecomesCallable(t *testing.T) {
	var out bytes.Buffer
	i := NewWithOptions(vm.Options{Stdout: &out})
	defer i.Free()

	add := func(a, b float64) float64 { return a + b }
	if _, err := i.MarshalWithOptions(add, MarshalOptions{Global: true, Name: "add"}); err != nil {
		t.Fatalf("MarshalWithOptions failed: %v", err)
	}

	result, err := i.Run([]byte(`print add(1, 2);`))
	if err != nil || result != vm.InterpretOK {
		t.Fatalf("Run failed: %v (%v)", err, result)
	}
	if out.String() != "3\n" {
		t.Fatalf("got output %q", out.String())
	}
}

func TestGlobalReadsBackScriptState(t *testing.T) {
	i := New()
	defer i.Free()

	if _, err := i.Run([]byte(`var answer = 42;`)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	v, ok := i.Global("answer")
	if !ok {
		t.Fatal("expected global \"answer\" to be set")
	}
	if v.AsNumber() != 42 {
		t.Fatalf("got %v, want 42", v.AsNumber())
	}
}
