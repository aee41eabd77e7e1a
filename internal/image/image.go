// Package image serializes a compiled function prototype to a compact
// binary form so cmd/briar can skip lexing/parsing/compiling on a later
// run, via msgpack.NewEncoder(w).Encode(payload) /
// NewDecoder(r).Decode(&payload) over a flat "wire" struct that mirrors
// bytecode.Chunk/vm.ObjFunctionVal, because msgpack round-trips plain
// structs and slices far more simply than it would round-trip a graph of
// live heap objects and GC headers.
package image

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/briarlang/briar/internal/vm"
)

// schemaVersion is bumped whenever the wire shape changes incompatibly;
// Load rejects anything else rather than guess at a migration.
const schemaVersion uint16 = 1

type wireConstant struct {
	Kind byte // 0=number, 1=string, 2=function prototype
	Num  float64
	Str  string
	Fn   *wireFunction
}

type wireFunction struct {
	Arity        int
	UpvalueCount int
	HasName      bool
	Name         string
	Code         []byte
	Lines        []int
	Constants    []wireConstant
}

type wireImage struct {
	Schema uint16
	Root   wireFunction
}

func encodeConstant(c any) (wireConstant, error) {
	v, ok := c.(vm.Value)
	if !ok {
		return wireConstant{}, fmt.Errorf("image: constant pool entry is not a vm.Value: %T", c)
	}
	switch {
	case v.IsNumber():
		return wireConstant{Kind: 0, Num: v.AsNumber()}, nil
	case v.IsObjType(vm.ObjString):
		return wireConstant{Kind: 1, Str: v.AsObj().(*vm.ObjStringVal).Chars}, nil
	case v.IsObjType(vm.ObjFunction):
		wf, err := encodeFunction(v.AsObj().(*vm.ObjFunctionVal))
		if err != nil {
			return wireConstant{}, err
		}
		return wireConstant{Kind: 2, Fn: &wf}, nil
	default:
		return wireConstant{}, fmt.Errorf("image: cannot serialize constant of this kind")
	}
}

func encodeFunction(fn *vm.ObjFunctionVal) (wireFunction, error) {
	wf := wireFunction{
		Arity:        fn.Arity,
		UpvalueCount: fn.UpvalueCount,
		Code:         fn.Chunk.Code,
		Lines:        fn.Chunk.Lines,
	}
	if fn.Name != nil {
		wf.HasName = true
		wf.Name = fn.Name.Chars
	}
	wf.Constants = make([]wireConstant, len(fn.Chunk.Constants))
	for i, c := range fn.Chunk.Constants {
		wc, err := encodeConstant(c)
		if err != nil {
			return wireFunction{}, err
		}
		wf.Constants[i] = wc
	}
	return wf, nil
}

func decodeConstant(v *vm.VM, wc wireConstant) (any, error) {
	switch wc.Kind {
	case 0:
		return vm.NumberVal(wc.Num), nil
	case 1:
		return vm.ObjVal(v.InternString(wc.Str)), nil
	case 2:
		fn, err := decodeFunction(v, *wc.Fn)
		if err != nil {
			return nil, err
		}
		return vm.ObjVal(fn), nil
	default:
		return nil, fmt.Errorf("image: unknown constant kind %d", wc.Kind)
	}
}

func decodeFunction(v *vm.VM, wf wireFunction) (*vm.ObjFunctionVal, error) {
	fn := v.NewFunction()
	fn.Arity = wf.Arity
	fn.UpvalueCount = wf.UpvalueCount
	fn.Chunk.Code = wf.Code
	fn.Chunk.Lines = wf.Lines
	if wf.HasName {
		fn.Name = v.InternString(wf.Name)
	}
	fn.Chunk.Constants = make([]any, len(wf.Constants))
	for i, wc := range wf.Constants {
		c, err := decodeConstant(v, wc)
		if err != nil {
			return nil, err
		}
		fn.Chunk.Constants[i] = c
	}
	return fn, nil
}

// Save encodes fn and its full constant-pool closure (nested function
// prototypes included) to w.
func Save(w io.Writer, fn *vm.ObjFunctionVal) error {
	root, err := encodeFunction(fn)
	if err != nil {
		return err
	}
	return msgpack.NewEncoder(w).Encode(wireImage{Schema: schemaVersion, Root: root})
}

// Load decodes an image previously written by Save, re-allocating every
// function/string through v so the result is a normal, GC-tracked
// *vm.ObjFunctionVal ready to pass to v.InterpretFunction.
func Load(r io.Reader, v *vm.VM) (*vm.ObjFunctionVal, error) {
	var img wireImage
	if err := msgpack.NewDecoder(r).Decode(&img); err != nil {
		return nil, fmt.Errorf("image: decode failed: %w", err)
	}
	if img.Schema != schemaVersion {
		return nil, fmt.Errorf("image: unsupported schema version %d (want %d)", img.Schema, schemaVersion)
	}
	return decodeFunction(v, img.Root)
}
