// Package types models the uC type system: the five primitive types,
// array types, and function types. Each type carries the operator tokens
// it supports so the semantic analyzer can validate expressions without
// hard-coding per-type tables.
package types

import (
	"fmt"
	"strings"
)

type Type interface {
	// Typename is the bare uC name ("int", "char", ...) used to build
	// opcode suffixes and error messages.
	Typename() string
	// Equal reports structural equality.
	Equal(other Type) bool

	BinaryOps() []string
	UnaryOps() []string
	RelOps() []string
	AssignOps() []string

	String() string
}

// Primitive is one of the five built-in uC types.
type Primitive struct {
	name      string
	binaryOps []string
	unaryOps  []string
	relOps    []string
	assignOps []string
}

var (
	IntType = &Primitive{
		name:      "int",
		binaryOps: []string{"+", "-", "*", "/", "%"},
		unaryOps:  []string{"-", "+"},
		relOps:    []string{"==", "!=", "<", ">", "<=", ">="},
		assignOps: []string{"="},
	}
	CharType = &Primitive{
		name:      "char",
		relOps:    []string{"==", "!="},
		assignOps: []string{"="},
	}
	StringType = &Primitive{
		name:      "string",
		binaryOps: []string{"+"},
		relOps:    []string{"==", "!="},
		assignOps: []string{"="},
	}
	BoolType = &Primitive{
		name:      "bool",
		binaryOps: []string{"&&", "||"},
		unaryOps:  []string{"!"},
		relOps:    []string{"==", "!="},
		assignOps: []string{"="},
	}
	VoidType = &Primitive{
		name: "void",
	}
)

// ByName maps a uC type keyword to its primitive singleton.
var ByName = map[string]*Primitive{
	"int":    IntType,
	"char":   CharType,
	"string": StringType,
	"bool":   BoolType,
	"void":   VoidType,
}

func (p *Primitive) Typename() string    { return p.name }
func (p *Primitive) BinaryOps() []string { return p.binaryOps }
func (p *Primitive) UnaryOps() []string  { return p.unaryOps }
func (p *Primitive) RelOps() []string    { return p.relOps }
func (p *Primitive) AssignOps() []string { return p.assignOps }
func (p *Primitive) String() string      { return "type(" + p.name + ")" }

func (p *Primitive) Equal(other Type) bool {
	o, ok := other.(*Primitive)
	return ok && o.name == p.name
}

// Array is a fixed-length array of a single element type. The semantic
// analyzer types a multi-dimensional declaration as one Array whose Elem
// is the primitive element type and whose Len is the outermost dimension.
type Array struct {
	Elem Type
	Len  int
}

func NewArray(elem Type, length int) *Array {
	return &Array{Elem: elem, Len: length}
}

func (a *Array) Typename() string    { return "array" }
func (a *Array) BinaryOps() []string { return nil }
func (a *Array) UnaryOps() []string  { return nil }
func (a *Array) RelOps() []string    { return []string{"==", "!="} }
func (a *Array) AssignOps() []string { return []string{"="} }

func (a *Array) String() string {
	return fmt.Sprintf("type(array(%s, %d))", a.Elem.Typename(), a.Len)
}

func (a *Array) Equal(other Type) bool {
	o, ok := other.(*Array)
	return ok && a.Len == o.Len && a.Elem.Equal(o.Elem)
}

// Func is a function signature: return type plus ordered, named parameters.
type Func struct {
	Return     Type
	ParamOrder []string
	Params     map[string]Type
}

func NewFunc(ret Type) *Func {
	return &Func{Return: ret, Params: map[string]Type{}}
}

func (f *Func) AddParam(name string, t Type) {
	f.ParamOrder = append(f.ParamOrder, name)
	f.Params[name] = t
}

func (f *Func) Typename() string    { return "func" }
func (f *Func) BinaryOps() []string { return nil }
func (f *Func) UnaryOps() []string  { return nil }
func (f *Func) RelOps() []string    { return nil }
func (f *Func) AssignOps() []string { return nil }

func (f *Func) String() string {
	parts := make([]string, 0, len(f.ParamOrder))
	for _, name := range f.ParamOrder {
		parts = append(parts, f.Params[name].Typename())
	}
	return fmt.Sprintf("type(func(%s) %s)", strings.Join(parts, ", "), f.Return.Typename())
}

func (f *Func) Equal(other Type) bool {
	o, ok := other.(*Func)
	if !ok || !f.Return.Equal(o.Return) || len(f.ParamOrder) != len(o.ParamOrder) {
		return false
	}
	for i, name := range f.ParamOrder {
		if !f.Params[name].Equal(o.Params[o.ParamOrder[i]]) {
			return false
		}
	}
	return true
}

// Supports reports whether op appears in ops.
func Supports(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
