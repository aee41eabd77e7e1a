package vm

import "time"

// processStart anchors clock() to process start rather than the Unix
// epoch.
var processStart = time.Now()

// nativeClock implements the VM's one built-in native, clock() → number,
// returning wall-clock seconds elapsed since the process started. It does
// not measure CPU time.
func nativeClock(vm *VM, args []Value) (Value, error) {
	return NumberVal(time.Since(processStart).Seconds()), nil
}
