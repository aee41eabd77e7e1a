package vm_test

import (
	"bytes"
	"strings"
	"testing"

	_ "github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/vm"
)

func run(t *testing.T, src string) (string, vm.InterpretResult, error) {
	t.Helper()
	var out bytes.Buffer
	v := vm.New(vm.Options{Stdout: &out})
	result, err := v.Interpret([]byte(src))
	return out.String(), result, err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, result, err := run(t, `print 1 + 2 * 3 - 4 / 2;`)
	if err != nil || result != vm.InterpretOK {
		t.Fatalf("unexpected failure: %v (%v)", err, result)
	}
	if strings.TrimSpace(out) != "5" {
		t.Fatalf("got %q", out)
	}
}

func TestStringConcatenation(t *testing.T) {
	out, _, err := run(t, `print "foo" + "bar";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "foobar" {
		t.Fatalf("got %q", out)
	}
}

func TestGlobalsAndLocals(t *testing.T) {
	out, _, err := run(t, `
		var a = 10;
		{
			var b = 20;
			print a + b;
		}
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "30" {
		t.Fatalf("got %q", out)
	}
}

func TestClosureCapturesByReference(t *testing.T) {
	out, _, err := run(t, `
		fun makeCounter() {
			var i = 0;
			fun count() {
				i = i + 1;
				print i;
			}
			return count;
		}
		var counter = makeCounter();
		counter();
		counter();
		counter();
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "1\n2\n3" {
		t.Fatalf("got %q", out)
	}
}

func TestClassesMethodsAndInit(t *testing.T) {
	out, _, err := run(t, `
		class Counter {
			init(start) { this.value = start; }
			bump() { this.value = this.value + 1; return this.value; }
		}
		var c = Counter(10);
		print c.bump();
		print c.bump();
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "11\n12" {
		t.Fatalf("got %q", out)
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	out, _, err := run(t, `
		class Animal {
			speak() { return "..."; }
			describe() { return "I say " + this.speak(); }
		}
		class Dog < Animal {
			speak() { return "woof"; }
			describe() { return super.describe(); }
		}
		print Dog().describe();
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "I say woof" {
		t.Fatalf("got %q", out)
	}
}

func TestRuntimeErrorOnUndefinedVariable(t *testing.T) {
	_, result, err := run(t, `print nope;`)
	if result != vm.InterpretRuntimeError || err == nil {
		t.Fatalf("expected a runtime error, got result=%v err=%v", result, err)
	}
}

func TestRuntimeErrorOnTypeMismatch(t *testing.T) {
	_, result, err := run(t, `print 1 + "two";`)
	if result != vm.InterpretRuntimeError || err == nil {
		t.Fatalf("expected a runtime error, got result=%v err=%v", result, err)
	}
}

func TestCompileErrorReturnsCompileErrorResult(t *testing.T) {
	_, result, err := run(t, `var ;`)
	if result != vm.InterpretCompileError || err == nil {
		t.Fatalf("expected a compile error, got result=%v err=%v", result, err)
	}
}

func TestStringInterningMeansEqualityIsIdentity(t *testing.T) {
	out, _, err := run(t, `
		var a = "same";
		var b = "sa" + "me";
		print a == b;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "true" {
		t.Fatalf("got %q", out)
	}
}

func TestFieldShadowsMethodButNotForSuper(t *testing.T) {
	// this.greet is set to a bound method (this.other) so it stays callable;
	// GET_PROPERTY and INVOKE should both see the field, while super.greet()
	// always resolves statically on the class regardless of the shadow.
	out, _, err := run(t, `
		class A {
			greet() { print "method"; }
		}
		class B < A {
			other() { print "field"; }
			greet() { super.greet(); }
			shadow() { this.greet = this.other; }
			callSuper() { super.greet(); }
		}
		var b = B();
		b.shadow();
		print b.greet;
		b.greet();
		b.callSuper();
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || lines[0] != "<fn other>" || lines[1] != "field" || lines[2] != "method" {
		t.Fatalf("got %q, want <fn other>/field/method (field shadows GET_PROPERTY and INVOKE, super bypasses it)", out)
	}
}

func TestArityMismatchIsRuntimeErrorAndDoesNotPushFrame(t *testing.T) {
	_, result, err := run(t, `
		fun needsTwo(a, b) { return a + b; }
		needsTwo(1);
	`)
	if result != vm.InterpretRuntimeError || err == nil {
		t.Fatalf("expected a runtime error, got result=%v err=%v", result, err)
	}
}

func TestStackOverflowIsRuntimeErrorNotCrash(t *testing.T) {
	_, result, err := run(t, `
		fun recurse() { return recurse(); }
		recurse();
	`)
	if result != vm.InterpretRuntimeError || err == nil {
		t.Fatalf("expected a runtime error at frame depth FRAMES_MAX, got result=%v err=%v", result, err)
	}
}

func TestNaNIsNeverEqualToItself(t *testing.T) {
	out, _, err := run(t, `print (0 / 0) == (0 / 0);`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "false" {
		t.Fatalf("got %q, want false (NaN != NaN)", out)
	}
}

func TestStressGCDoesNotCorruptExecution(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.Options{Stdout: &out, StressGC: true})
	result, err := v.Interpret([]byte(`
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`))
	if err != nil || result != vm.InterpretOK {
		t.Fatalf("unexpected failure under stress GC: %v (%v)", err, result)
	}
	if strings.TrimSpace(out.String()) != "55" {
		t.Fatalf("got %q", out.String())
	}
}
