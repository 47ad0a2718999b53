package mavlink

import "fmt"

// Kind identifies the primitive type a Value carries.
type Kind int

const (
	KindInt Kind = iota
	KindUint
	KindFloat
	KindText
	KindIntVec
	KindUintVec
	KindFloatVec
	KindEnumName
	KindEnumSet
)

// Value is the dynamic payload of a single decoded or to-be-encoded field.
// Messages are loaded at runtime from XML, so fields are not represented as
// generated per-message structs: every field value flows through this
// tagged union instead.
type Value struct {
	kind     Kind
	i        int64
	u        uint64
	f        float64
	text     string
	intVec   []int64
	uintVec  []uint64
	floatVec []float64
	enumSet  []string
}

func IntValue(v int64) Value      { return Value{kind: KindInt, i: v} }
func UintValue(v uint64) Value    { return Value{kind: KindUint, u: v} }
func FloatValue(v float64) Value  { return Value{kind: KindFloat, f: v} }
func TextValue(v string) Value    { return Value{kind: KindText, text: v} }
func IntVecValue(v []int64) Value { return Value{kind: KindIntVec, intVec: v} }
func UintVecValue(v []uint64) Value {
	return Value{kind: KindUintVec, uintVec: v}
}
func FloatVecValue(v []float64) Value {
	return Value{kind: KindFloatVec, floatVec: v}
}
func EnumNameValue(v string) Value  { return Value{kind: KindEnumName, text: v} }
func EnumSetValue(v []string) Value { return Value{kind: KindEnumSet, enumSet: v} }

// Kind reports which variant of the union is populated.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer value, converting from any numeric kind.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindUint:
		return int64(v.u), true
	case KindFloat:
		return int64(v.f), true
	}
	return 0, false
}

// Uint returns the unsigned integer value, converting from any numeric kind.
func (v Value) Uint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.u, true
	case KindInt:
		return uint64(v.i), true
	case KindFloat:
		return uint64(v.f), true
	}
	return 0, false
}

// Float returns the floating-point value, converting from any numeric kind.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindUint:
		return float64(v.u), true
	}
	return 0, false
}

// Text returns the string payload for KindText or KindEnumName.
func (v Value) Text() (string, bool) {
	if v.kind == KindText || v.kind == KindEnumName {
		return v.text, true
	}
	return "", false
}

// EnumSet returns the set of set-bit entry names for KindEnumSet.
func (v Value) EnumSet() ([]string, bool) {
	if v.kind == KindEnumSet {
		return v.enumSet, true
	}
	return nil, false
}

// IntVec, UintVec and FloatVec return the element vector for their kind.
func (v Value) IntVec() ([]int64, bool) {
	if v.kind == KindIntVec {
		return v.intVec, true
	}
	return nil, false
}

func (v Value) UintVec() ([]uint64, bool) {
	if v.kind == KindUintVec {
		return v.uintVec, true
	}
	return nil, false
}

func (v Value) FloatVec() ([]float64, bool) {
	if v.kind == KindFloatVec {
		return v.floatVec, true
	}
	return nil, false
}

// Equal reports whether two values carry the same kind and content; used to
// test wait-condition predicates against decoded packet content.
func (v Value) Equal(other Value) bool {
	switch v.kind {
	case KindInt, KindUint, KindFloat:
		a, _ := v.Float()
		b, _ := other.Float()
		return a == b
	case KindText, KindEnumName:
		return other.kind == v.kind && v.text == other.text
	default:
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", other)
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindUint:
		return fmt.Sprintf("%d", v.u)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindText, KindEnumName:
		return v.text
	case KindIntVec:
		return fmt.Sprintf("%v", v.intVec)
	case KindUintVec:
		return fmt.Sprintf("%v", v.uintVec)
	case KindFloatVec:
		return fmt.Sprintf("%v", v.floatVec)
	case KindEnumSet:
		return fmt.Sprintf("%v", v.enumSet)
	default:
		return "<invalid>"
	}
}
