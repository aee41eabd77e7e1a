package briar

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/briarlang/briar/internal/vm"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Marshal converts a Go value into a Value a script can observe.
// Supported inputs: nil, bool, the numeric kinds, string, an existing
// Value, a NativeFunc/plain Go func (becomes a callable), a Marshaler,
// and structs/pointers-to-structs (become an instance of a synthetic
// per-type class — briar has no object-literal syntax, so this is the
// only way a struct's fields reach a script).
func (i *Interpreter) Marshal(val any) (Value, error) {
	return i.MarshalWithOptions(val, MarshalOptions{})
}

// MarshalWithOptions is Marshal plus the Global/Name binding described on
// MarshalOptions.
func (i *Interpreter) MarshalWithOptions(val any, opts MarshalOptions) (Value, error) {
	v, err := i.marshal(val)
	if err != nil {
		return Value{}, err
	}
	if opts.Global {
		if opts.Name == "" {
			return Value{}, errors.New("briar: MarshalOptions.Global requires Name")
		}
		i.DefineGlobal(opts.Name, v)
	}
	return v, nil
}

// MustMarshal marshals and panics on error, a convenience for tests and
// host bootstrap code that already knows the value is convertible.
func (i *Interpreter) MustMarshal(val any) Value {
	v, err := i.Marshal(val)
	if err != nil {
		panic(err)
	}
	return v
}

func (i *Interpreter) marshal(val any) (Value, error) {
	if m, ok := val.(Marshaler); ok {
		return m.MarshalBriar(i)
	}
	switch v := val.(type) {
	case nil:
		return vm.NilVal(), nil
	case Value:
		return v, nil
	case bool:
		return vm.BoolVal(v), nil
	case string:
		return vm.ObjVal(i.core.InternString(v)), nil
	case int:
		return vm.NumberVal(float64(v)), nil
	case int8:
		return vm.NumberVal(float64(v)), nil
	case int16:
		return vm.NumberVal(float64(v)), nil
	case int32:
		return vm.NumberVal(float64(v)), nil
	case int64:
		return vm.NumberVal(float64(v)), nil
	case uint:
		return vm.NumberVal(float64(v)), nil
	case uint8:
		return vm.NumberVal(float64(v)), nil
	case uint16:
		return vm.NumberVal(float64(v)), nil
	case uint32:
		return vm.NumberVal(float64(v)), nil
	case uint64:
		return vm.NumberVal(float64(v)), nil
	case float32:
		return vm.NumberVal(float64(v)), nil
	case float64:
		return vm.NumberVal(v), nil
	case NativeFunc:
		return vm.ObjVal(i.wrapNative("", v)), nil
	case error:
		return vm.ObjVal(i.core.InternString(v.Error())), nil
	}

	rv := reflect.ValueOf(val)
	if !rv.IsValid() {
		return vm.NilVal(), nil
	}
	switch rv.Kind() {
	case reflect.Func:
		return i.marshalFunc(rv)
	case reflect.Pointer:
		if rv.IsNil() {
			return vm.NilVal(), nil
		}
		return i.marshal(rv.Elem().Interface())
	case reflect.Struct:
		return i.marshalStruct(rv)
	case reflect.Bool:
		return vm.BoolVal(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.NumberVal(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return vm.NumberVal(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return vm.NumberVal(rv.Float()), nil
	case reflect.String:
		return vm.ObjVal(i.core.InternString(rv.String())), nil
	default:
		return Value{}, fmt.Errorf("briar: unsupported value type %T", val)
	}
}

// wrapNative turns a positional Go function into a callable Value.
func (i *Interpreter) wrapNative(name string, fn NativeFunc) *vm.ObjNativeVal {
	native := i.core.NewNative(name, -1, func(core *vm.VM, args []Value) (Value, error) {
		return fn(i, args)
	})
	return native
}

// marshalFunc adapts an arbitrary Go func (via reflection) into a
// positional native. Arguments bind by position, not by name, since
// briar calls are positional only.
func (i *Interpreter) marshalFunc(rv reflect.Value) (Value, error) {
	rt := rv.Type()
	if rt.NumOut() > 2 {
		return Value{}, errors.New("briar: marshaled function must return at most (value, error)")
	}
	retValIndex, retErrIndex := -1, -1
	switch rt.NumOut() {
	case 1:
		if rt.Out(0) == errorType {
			retErrIndex = 0
		} else {
			retValIndex = 0
		}
	case 2:
		if rt.Out(1) != errorType {
			return Value{}, errors.New("briar: marshaled function's second return value must be error")
		}
		retValIndex, retErrIndex = 0, 1
	}

	arity := rt.NumIn()
	fn := func(vi *Interpreter, args []Value) (Value, error) {
		if len(args) != arity {
			return Value{}, ArgError{Want: fmt.Sprintf("%d arguments", arity), Got: fmt.Sprintf("%d", len(args))}
		}
		in := make([]reflect.Value, arity)
		for idx := 0; idx < arity; idx++ {
			target := reflect.New(rt.In(idx)).Elem()
			if err := assignValue(args[idx], target); err != nil {
				return Value{}, fmt.Errorf("argument %d: %w", idx, err)
			}
			in[idx] = target
		}
		out := rv.Call(in)
		if retErrIndex >= 0 && !out[retErrIndex].IsNil() {
			return Value{}, out[retErrIndex].Interface().(error)
		}
		if retValIndex >= 0 {
			return vi.marshal(out[retValIndex].Interface())
		}
		return vm.NilVal(), nil
	}
	return vm.ObjVal(i.wrapNative("", fn)), nil
}

// structClass returns the synthetic class synthesized for a Go struct
// type, creating and caching it as a global on first use (keyed by
// "Go"+TypeName) so marshaling the same struct type twice doesn't
// fragment script-visible instances across unrelated classes.
func (i *Interpreter) structClass(rt reflect.Type) *vm.ObjClassVal {
	name := "Go" + rt.Name()
	if g, ok := i.Global(name); ok && g.IsObjType(vm.ObjClass) {
		return g.AsObj().(*vm.ObjClassVal)
	}
	class := i.core.NewClass(i.core.InternString(name))
	i.DefineGlobal(name, vm.ObjVal(class))
	return class
}

func (i *Interpreter) marshalStruct(rv reflect.Value) (Value, error) {
	class := i.structClass(rv.Type())
	inst := i.core.NewInstance(class)
	rt := rv.Type()
	for f := 0; f < rt.NumField(); f++ {
		field := rt.Field(f)
		if field.PkgPath != "" { // unexported
			continue
		}
		fv, err := i.marshal(rv.Field(f).Interface())
		if err != nil {
			return Value{}, fmt.Errorf("field %s: %w", field.Name, err)
		}
		inst.Fields.Set(i.core.InternString(field.Name), fv)
	}
	return vm.ObjVal(inst), nil
}

// Unmarshal assigns val into target, which must be a non-nil pointer or
// implement Unmarshaler.
func Unmarshal(val Value, target any) error {
	if target == nil {
		return errors.New("briar: nil target")
	}
	if u, ok := target.(Unmarshaler); ok {
		return u.UnmarshalBriar(val)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("briar: target must be a non-nil pointer")
	}
	return assignValue(val, rv.Elem())
}

func kindName(v Value) string {
	return KindOf(v).String()
}

func assignValue(src Value, dst reflect.Value) error {
	if !dst.CanSet() {
		return errors.New("briar: cannot set target")
	}
	switch dst.Kind() {
	case reflect.Interface:
		raw, err := ToGo(src)
		if err != nil {
			return err
		}
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		dst.Set(reflect.ValueOf(raw))
		return nil
	case reflect.Bool:
		if !src.IsBool() {
			return ArgError{Want: "bool", Got: kindName(src)}
		}
		dst.SetBool(src.AsBool())
		return nil
	case reflect.String:
		if !src.IsObjType(vm.ObjString) {
			return ArgError{Want: "string", Got: kindName(src)}
		}
		dst.SetString(src.AsObj().(*vm.ObjStringVal).Chars)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !src.IsNumber() {
			return ArgError{Want: "number", Got: kindName(src)}
		}
		dst.SetInt(int64(src.AsNumber()))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !src.IsNumber() {
			return ArgError{Want: "number", Got: kindName(src)}
		}
		dst.SetUint(uint64(src.AsNumber()))
		return nil
	case reflect.Float32, reflect.Float64:
		if !src.IsNumber() {
			return ArgError{Want: "number", Got: kindName(src)}
		}
		dst.SetFloat(src.AsNumber())
		return nil
	case reflect.Struct:
		if !src.IsObjType(vm.ObjInstance) {
			return ArgError{Want: "instance", Got: kindName(src)}
		}
		inst := src.AsObj().(*vm.ObjInstanceVal)
		rt := dst.Type()
		for f := 0; f < rt.NumField(); f++ {
			field := rt.Field(f)
			if field.PkgPath != "" {
				continue
			}
			if fv, ok := inst.Fields.Get(internKeyFor(inst, field.Name)); ok {
				if err := assignValue(fv, dst.Field(f)); err != nil {
					return fmt.Errorf("field %s: %w", field.Name, err)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("briar: unsupported unmarshal target kind %s", dst.Kind())
	}
}

// internKeyFor looks up name the same way the field was originally set:
// instance field tables are keyed by the VM's own interned strings, so a
// plain Go string can't be used as the key directly. The instance's
// class carries no VM back-reference, but every field key already lives
// in the same intern table the instance's strings were built from; we
// recover it by scanning rather than re-interning, since Unmarshal has
// no *Interpreter in scope to intern through.
func internKeyFor(inst *vm.ObjInstanceVal, name string) *vm.ObjStringVal {
	var found *vm.ObjStringVal
	inst.Fields.Each(func(key *vm.ObjStringVal, _ Value) {
		if found == nil && key.Chars == name {
			found = key
		}
	})
	return found
}

// ToGo converts val into a plain Go value: nil/bool/float64/string for
// scalars, map[string]any for an instance (keyed by field name),
// recursively. Functions, classes, natives and bound methods have no Go
// representation and return an error — call them through the VM instead.
func ToGo(val Value) (any, error) {
	switch {
	case val.IsNil():
		return nil, nil
	case val.IsBool():
		return val.AsBool(), nil
	case val.IsNumber():
		return val.AsNumber(), nil
	case val.IsObjType(vm.ObjString):
		return val.AsObj().(*vm.ObjStringVal).Chars, nil
	case val.IsObjType(vm.ObjInstance):
		inst := val.AsObj().(*vm.ObjInstanceVal)
		out := map[string]any{}
		var err error
		inst.Fields.Each(func(key *vm.ObjStringVal, v Value) {
			if err != nil {
				return
			}
			gv, gerr := ToGo(v)
			if gerr != nil {
				err = gerr
				return
			}
			out[key.Chars] = gv
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("briar: value of kind %s has no Go representation", KindOf(val))
	}
}
