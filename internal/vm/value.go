package vm

// ValueType tags the four variants a Value can hold.
type ValueType int

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj
)

// Value is the tagged dynamic value every stack slot, local, global and
// field holds. It is a plain struct rather than an interface so that
// copying a Value never allocates on its own — only the Obj it may point
// to lives on the GC'd heap.
type Value struct {
	Type    ValueType
	boolean bool
	number  float64
	obj     Obj
}

func NilVal() Value             { return Value{Type: ValNil} }
func BoolVal(b bool) Value      { return Value{Type: ValBool, boolean: b} }
func NumberVal(n float64) Value { return Value{Type: ValNumber, number: n} }
func ObjVal(o Obj) Value        { return Value{Type: ValObj, obj: o} }

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsObj() bool    { return v.Type == ValObj }

// AsBool/AsNumber/AsObj extract the underlying payload. Per spec.md §4.1
// the interpreter is responsible for checking the tag first (IsBool,
// IsNumber, IsObj) — these do not panic on a tag mismatch, they return the
// zero value, mirroring the C original's unchecked union access at a
// point where the caller has already verified the tag.
func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Obj        { return v.obj }

// IsObjType reports whether v holds a heap object of the given type.
func (v Value) IsObjType(t ObjType) bool {
	return v.Type == ValObj && v.obj != nil && v.obj.objType() == t
}

// IsFalsey implements spec.md §4.1: Nil and Bool(false) are falsy,
// everything else — including 0 and "" — is truthy.
func IsFalsey(v Value) bool {
	if v.IsNil() {
		return true
	}
	if v.IsBool() {
		return !v.AsBool()
	}
	return false
}

// ValuesEqual implements spec.md §4.1: equal tags required; Number by
// IEEE-754 equality (so NaN != NaN); Obj by identity (two strings compare
// equal iff they are the same interned object).
func ValuesEqual(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case ValNil:
		return true
	case ValBool:
		return a.boolean == b.boolean
	case ValNumber:
		return a.number == b.number
	case ValObj:
		return a.obj == b.obj
	default:
		return false
	}
}
