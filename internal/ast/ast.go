// Package ast defines the uC abstract syntax tree. The node set is a
// closed sum: every construct the parser can produce is one of the structs
// below. Passes dispatch on the concrete type and fall back to Children()
// for default preorder traversal.
package ast

import (
	"fmt"

	"ucc/internal/ir"
	"ucc/internal/types"
)

// Coord is a source position, printed the way diagnostics expect it.
type Coord struct {
	Line int
	Col  int
}

func (c Coord) String() string {
	return fmt.Sprintf("@ %d:%d", c.Line, c.Col)
}

type Node interface {
	Coord() Coord
	Children() []Node
}

// Expr is a node that carries a resolved uC type after semantic analysis
// and a generated location (register or global name) after IR generation.
type Expr interface {
	Node
	Type() types.Type
	SetType(types.Type)
	GenLocation() string
	SetGenLocation(string)
}

type base struct {
	Coordinate Coord
}

func (b *base) Coord() Coord { return b.Coordinate }

type exprBase struct {
	base
	typ    types.Type
	genLoc string
}

func (e *exprBase) Type() types.Type          { return e.typ }
func (e *exprBase) SetType(t types.Type)      { e.typ = t }
func (e *exprBase) GenLocation() string       { return e.genLoc }
func (e *exprBase) SetGenLocation(loc string) { e.genLoc = loc }

func At(line, col int) Coord { return Coord{Line: line, Col: col} }

// nodes returns its non-nil arguments; a convenience for Children().
func nodes(ns ...Node) []Node {
	out := make([]Node, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Program is the root: a list of global declarations and function definitions.
type Program struct {
	base
	GDecls []Node

	// Text is filled by the IR generator with the global prelude so the
	// optimizer can rebuild the final code list.
	Text []ir.Instr
}

func (p *Program) Children() []Node { return p.GDecls }

// GlobalDecl wraps file-scope declarations.
type GlobalDecl struct {
	base
	Decls []*Decl
}

func (g *GlobalDecl) Children() []Node {
	out := make([]Node, len(g.Decls))
	for i, d := range g.Decls {
		out[i] = d
	}
	return out
}

// FuncDef is a function definition: signature declaration plus body.
type FuncDef struct {
	base
	Return *Type
	Decl   *Decl
	Body   *Compound

	// Attached by the IR generator.
	CFG       *ir.BasicBlock
	ParamRegs []string
	ReturnReg string
}

func (f *FuncDef) Children() []Node { return nodes(f.Return, f.Decl, f.Body) }

// Decl declares a name. Spec is one of VarDecl, ArrayDecl, FuncDecl;
// Init is the optional initializer expression.
type Decl struct {
	base
	Name *ID
	Spec Node
	Init Node

	// InitConst is set by the IR generator for local arrays with an
	// initializer: the constant-pool global holding the initial values.
	InitConst string
}

func (d *Decl) Children() []Node { return nodes(d.Name, d.Spec, d.Init) }

// VarDecl declares a scalar variable of a primitive type.
type VarDecl struct {
	base
	Primitive *Type
	DeclName  *ID

	// GenLoc is set for function parameters: the register the argument
	// arrives in, stored into the allocated slot during code generation.
	GenLoc string
}

func (v *VarDecl) Children() []Node { return nodes(v.Primitive, v.DeclName) }

// ArrayDecl declares an array dimension around an inner VarDecl or ArrayDecl.
type ArrayDecl struct {
	base
	Elem Node
	Dim  Node
}

func (a *ArrayDecl) Children() []Node { return nodes(a.Elem, a.Dim) }

// FuncDecl is the declarator of a function: return spec plus parameters.
type FuncDecl struct {
	base
	Spec   *VarDecl
	Params *ParamList
}

func (f *FuncDecl) Children() []Node { return nodes(f.Spec, f.Params) }

type ParamList struct {
	base
	Params []*Decl
}

func (p *ParamList) Children() []Node {
	out := make([]Node, len(p.Params))
	for i, d := range p.Params {
		out[i] = d
	}
	return out
}

// DeclList groups the declarations in a for-statement initializer.
type DeclList struct {
	base
	Decls []*Decl
}

func (d *DeclList) Children() []Node {
	out := make([]Node, len(d.Decls))
	for i, dd := range d.Decls {
		out[i] = dd
	}
	return out
}

// Type names a primitive uC type.
type Type struct {
	base
	Name string
}

func (t *Type) Children() []Node { return nil }

type If struct {
	base
	Cond    Node
	IfTrue  Node
	IfFalse Node
}

func (i *If) Children() []Node { return nodes(i.Cond, i.IfTrue, i.IfFalse) }

type While struct {
	base
	Cond Node
	Body Node
}

func (w *While) Children() []Node { return nodes(w.Cond, w.Body) }

type For struct {
	base
	Init Node
	Cond Node
	Next Node
	Body Node
}

func (f *For) Children() []Node { return nodes(f.Init, f.Cond, f.Next, f.Body) }

type Compound struct {
	base
	Items []Node
}

func (c *Compound) Children() []Node { return c.Items }

type Assignment struct {
	exprBase
	Op     string
	LValue Node
	RValue Node
}

func (a *Assignment) Children() []Node { return nodes(a.LValue, a.RValue) }

type Assert struct {
	base
	Expr Node
}

func (a *Assert) Children() []Node { return nodes(a.Expr) }

type Break struct {
	base
}

func (b *Break) Children() []Node { return nil }

type Print struct {
	base
	Expr Node
}

func (p *Print) Children() []Node { return nodes(p.Expr) }

type Read struct {
	base
	Names Node
}

func (r *Read) Children() []Node { return nodes(r.Names) }

type Return struct {
	base
	Expr Node
}

func (r *Return) Children() []Node { return nodes(r.Expr) }

type FuncCall struct {
	exprBase
	Name *ID
	Args Node
}

func (f *FuncCall) Children() []Node { return nodes(f.Name, f.Args) }

// Constant is a literal. CType is the literal's uC type keyword
// ("int", "char", "string", "bool"); Value is the source text.
type Constant struct {
	exprBase
	CType string
	Value string
}

func (c *Constant) Children() []Node { return nil }

type ID struct {
	exprBase
	Name string
}

func (i *ID) Children() []Node { return nil }

type BinaryOp struct {
	exprBase
	Op    string
	Left  Node
	Right Node
}

func (b *BinaryOp) Children() []Node { return nodes(b.Left, b.Right) }

type UnaryOp struct {
	exprBase
	Op   string
	Expr Node
}

func (u *UnaryOp) Children() []Node { return nodes(u.Expr) }

type ExprList struct {
	exprBase
	Exprs []Node
}

func (e *ExprList) Children() []Node { return e.Exprs }

type ArrayRef struct {
	exprBase
	Name      Node
	Subscript Node
}

func (a *ArrayRef) Children() []Node { return nodes(a.Name, a.Subscript) }

// InitList is a brace initializer. Dimension and DifferentSizes are
// computed by the semantic analyzer.
type InitList struct {
	exprBase
	Exprs []Node

	Dimension      []int
	DifferentSizes bool
}

func (i *InitList) Children() []Node { return i.Exprs }

type EmptyStatement struct {
	base
}

func (e *EmptyStatement) Children() []Node { return nil }

// KindName returns the node's kind tag, used by diagnostics that name
// the offending construct.
func KindName(n Node) string {
	switch n.(type) {
	case *Program:
		return "Program"
	case *GlobalDecl:
		return "GlobalDecl"
	case *FuncDef:
		return "FuncDef"
	case *Decl:
		return "Decl"
	case *VarDecl:
		return "VarDecl"
	case *ArrayDecl:
		return "ArrayDecl"
	case *FuncDecl:
		return "FuncDecl"
	case *ParamList:
		return "ParamList"
	case *DeclList:
		return "DeclList"
	case *Type:
		return "Type"
	case *If:
		return "If"
	case *While:
		return "While"
	case *For:
		return "For"
	case *Compound:
		return "Compound"
	case *Assignment:
		return "Assignment"
	case *Assert:
		return "Assert"
	case *Break:
		return "Break"
	case *Print:
		return "Print"
	case *Read:
		return "Read"
	case *Return:
		return "Return"
	case *FuncCall:
		return "FuncCall"
	case *Constant:
		return "Constant"
	case *ID:
		return "ID"
	case *BinaryOp:
		return "BinaryOp"
	case *UnaryOp:
		return "UnaryOp"
	case *ExprList:
		return "ExprList"
	case *ArrayRef:
		return "ArrayRef"
	case *InitList:
		return "InitList"
	case *EmptyStatement:
		return "EmptyStatement"
	default:
		return fmt.Sprintf("%T", n)
	}
}
