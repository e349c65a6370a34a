// Package sema walks the AST, resolves identifiers against a lexically
// scoped symbol table, annotates every expression with its uC type and
// enforces the semantic rules. The first violated rule terminates the
// check.
package sema

import (
	"fmt"

	"ucc/internal/ast"
	"ucc/internal/types"
	"ucc/internal/uerr"
)

// Analyzer holds the walk state: the scope stack, the enclosing function
// return type, return/loop tracking, and the latch that stops a function
// body compound from opening a second scope.
type Analyzer struct {
	symtab     *SymbolTable
	returnType types.Type
	hasReturn  bool
	inLoop     bool
	// suppressScope is set just before visiting a function body: the
	// function already pushed its scope, the compound must not push another.
	suppressScope bool
	funcName      string
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{symtab: NewSymbolTable()}
}

// bailout carries the diagnostic out of the recursive walk.
type bailout struct {
	err *uerr.UCError
}

// Check runs semantic analysis over the program, annotating expression
// nodes in place. It returns the first diagnostic found, or nil.
func Check(prog *ast.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
	}()
	NewAnalyzer().visit(prog)
	return nil
}

// assert raises the numbered diagnostic when cond is false. The message
// catalog is fixed; name/ltype/rtype fill its placeholders.
func (a *Analyzer) assert(cond bool, code int, coord ast.Coord, name, ltype, rtype string) {
	if cond {
		return
	}
	var msg string
	switch code {
	case 1:
		msg = fmt.Sprintf("%s is not defined", name)
	case 2:
		msg = fmt.Sprintf("subscript must be of type(int), not type(%s)", ltype)
	case 3:
		msg = "Expression must be of type(bool)"
	case 4:
		msg = fmt.Sprintf("Cannot assign type(%s) to type(%s)", rtype, ltype)
	case 5:
		msg = fmt.Sprintf("Binary operator %s does not have matching LHS/RHS types", name)
	case 6:
		msg = fmt.Sprintf("Binary operator %s is not supported by type(%s)", name, ltype)
	case 7:
		msg = "Break statement must be inside a loop"
	case 8:
		msg = "Array dimension mismatch"
	case 9:
		msg = fmt.Sprintf("Size mismatch on %s initialization", name)
	case 10:
		msg = fmt.Sprintf("%s initialization type mismatch", name)
	case 11:
		msg = fmt.Sprintf("%s initialization must be a single element", name)
	case 12:
		msg = "Lists have different sizes"
	case 13:
		msg = "List & variable have different sizes"
	case 14:
		msg = fmt.Sprintf("conditional expression is type(%s), not type(bool)", ltype)
	case 15:
		msg = fmt.Sprintf("%s is not a function", name)
	case 16:
		msg = fmt.Sprintf("no. arguments to call %s function mismatch", name)
	case 17:
		msg = fmt.Sprintf("Type mismatch with parameter %s", name)
	case 18:
		msg = "The condition expression must be of type(bool)"
	case 19:
		msg = "Expression must be a constant"
	case 20:
		msg = "Expression is not of basic type"
	case 21:
		msg = fmt.Sprintf("%s does not reference a variable of basic type", name)
	case 22:
		msg = fmt.Sprintf("%s is not a variable", name)
	case 23:
		msg = fmt.Sprintf("Return of type(%s) is incompatible with type(%s) function definition", ltype, rtype)
	case 24:
		msg = fmt.Sprintf("Name %s is already defined in this scope", name)
	case 25:
		msg = fmt.Sprintf("Unary operator %s is not supported", name)
	default:
		panic(uerr.Internal("unknown diagnostic code %d", code))
	}
	panic(bailout{err: uerr.Semantic(code, msg, coord.String())})
}

// valueType is the type an expression evaluates to: the return type for
// calls, the element type for array references, the annotated type
// otherwise.
func (a *Analyzer) valueType(n ast.Node) types.Type {
	switch x := n.(type) {
	case *ast.FuncCall:
		if ft, ok := x.Type().(*types.Func); ok {
			return ft.Return
		}
		return x.Type()
	case *ast.ArrayRef:
		if at, ok := x.Type().(*types.Array); ok {
			return at.Elem
		}
		return x.Type()
	case ast.Expr:
		return x.Type()
	}
	return nil
}

func (a *Analyzer) visit(n ast.Node) {
	switch node := n.(type) {
	case *ast.Program:
		for _, d := range node.GDecls {
			a.visit(d)
		}
	case *ast.GlobalDecl:
		for _, d := range node.Decls {
			a.visit(d)
		}
	case *ast.FuncDef:
		a.visitFuncDef(node)
	case *ast.Decl:
		a.visitDecl(node)
	case *ast.ParamList:
		a.visitParamList(node)
	case *ast.DeclList:
		for _, d := range node.Decls {
			a.visit(d)
		}
	case *ast.ArrayDecl:
		a.visitArrayDecl(node)
	case *ast.Compound:
		a.visitCompound(node)
	case *ast.If:
		a.visitIf(node)
	case *ast.While:
		a.visitWhile(node)
	case *ast.For:
		a.visitFor(node)
	case *ast.Assignment:
		a.visitAssignment(node)
	case *ast.Assert:
		a.visitAssert(node)
	case *ast.Break:
		a.assert(a.inLoop, 7, node.Coord(), "", "", "")
	case *ast.Print:
		a.visitPrint(node)
	case *ast.Read:
		a.visitRead(node)
	case *ast.Return:
		a.visitReturn(node)
	case *ast.FuncCall:
		a.visitFuncCall(node)
	case *ast.Constant:
		node.SetType(types.ByName[node.CType])
	case *ast.ID:
		a.visitID(node)
	case *ast.BinaryOp:
		a.visitBinaryOp(node)
	case *ast.UnaryOp:
		a.visitUnaryOp(node)
	case *ast.ExprList:
		for _, e := range node.Exprs {
			a.visit(e)
		}
	case *ast.ArrayRef:
		a.visitArrayRef(node)
	case *ast.InitList:
		a.visitInitList(node)
	case *ast.VarDecl, *ast.FuncDecl, *ast.Type, *ast.EmptyStatement:
		// nothing to check
	default:
		for _, c := range n.Children() {
			a.visit(c)
		}
	}
}

func (a *Analyzer) visitFuncDef(node *ast.FuncDef) {
	a.symtab.Create()
	a.returnType = types.ByName[node.Return.Name]
	a.hasReturn = false

	a.visit(node.Decl)

	if node.Body != nil {
		a.suppressScope = true
		a.visit(node.Body)
	}

	// a non-void function must return on some path
	if !a.hasReturn {
		a.assert(node.Return.Name == "void", 23, node.Body.Coord(), "", "void", a.returnType.Typename())
	}

	a.symtab.Pop()
}

func (a *Analyzer) visitParamList(node *ast.ParamList) {
	ft, _ := a.symtab.Lookup(a.funcName).(*types.Func)
	for _, param := range node.Params {
		a.visit(param)
		name := param.Name.Name
		if ft != nil {
			ft.AddParam(name, a.symtab.Lookup(name))
		}
	}
}

func (a *Analyzer) visitDecl(node *ast.Decl) {
	var declared types.Type

	switch spec := node.Spec.(type) {
	case *ast.FuncDecl:
		ret := types.ByName[spec.Spec.Primitive.Name]
		ft := types.NewFunc(ret)
		a.funcName = node.Name.Name

		a.assert(a.symtab.LookupCurrentScope(node.Name.Name) == nil, 24, node.Name.Coord(), node.Name.Name, "", "")
		a.symtab.AddAt(node.Name.Name, ft, 0)

		if spec.Params != nil {
			a.visit(spec.Params)
		}
		return

	case *ast.ArrayDecl:
		a.visit(spec)
		prim, dims := arrayShape(spec)
		elem := types.ByName[prim]
		length := 0
		if len(dims) > 0 {
			length = dims[0]
		}

		if node.Init != nil {
			switch init := node.Init.(type) {
			case *ast.InitList:
				a.visit(init)
				a.assert(!init.DifferentSizes, 12, node.Name.Coord(), "", "", "")
				for i, d := range dims {
					if d < 0 {
						continue // dimension inferred from the initializer
					}
					a.assert(i < len(init.Dimension) && d == init.Dimension[i], 13, node.Name.Coord(), "", "", "")
				}
				length = len(init.Exprs)
			case *ast.Constant:
				a.visit(init)
				if init.CType == "string" {
					a.assert(len(dims) > 0 && (dims[0] < 0 || dims[0] == len(init.Value)), 9, node.Name.Coord(), node.Name.Name, "", "")
					if len(dims) > 0 && dims[0] < 0 {
						length = len(init.Value)
					}
				}
			default:
				a.visit(init)
			}
		}
		declared = types.NewArray(elem, length)

	case *ast.VarDecl:
		declared = types.ByName[spec.Primitive.Name]
		if node.Init != nil {
			_, isList := node.Init.(*ast.InitList)
			a.assert(!isList, 11, node.Name.Coord(), node.Name.Name, "", "")
			a.visit(node.Init)
			vt := a.valueType(node.Init)
			if id, ok := node.Init.(*ast.ID); ok {
				a.assert(vt != nil, 1, id.Coord(), id.Name, "", "")
			}
			a.assert(vt != nil && declared.Equal(vt), 10, node.Name.Coord(), node.Name.Name, "", "")
		}
	}

	a.assert(a.symtab.LookupCurrentScope(node.Name.Name) == nil, 24, node.Name.Coord(), node.Name.Name, "", "")
	a.symtab.Add(node.Name.Name, declared)
}

// arrayShape drills through nested array declarators and returns the
// element primitive name plus the declared dimensions, outermost first.
// Unsized dimensions are reported as -1.
func arrayShape(node *ast.ArrayDecl) (string, []int) {
	var dims []int
	var cur ast.Node = node
	for {
		arr, ok := cur.(*ast.ArrayDecl)
		if !ok {
			break
		}
		dim := -1
		if c, isConst := arr.Dim.(*ast.Constant); isConst {
			dim = atoiOrZero(c.Value)
		}
		dims = append(dims, dim)
		cur = arr.Elem
	}
	vd, _ := cur.(*ast.VarDecl)
	if vd == nil {
		return "", dims
	}
	return vd.Primitive.Name, dims
}

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func (a *Analyzer) visitArrayDecl(node *ast.ArrayDecl) {
	coord := node.Coord()
	a.assert(node.Dim != nil, 8, coord, "", "", "")
	if c, ok := node.Dim.(*ast.Constant); ok {
		a.assert(atoiOrZero(c.Value) > 0, 8, coord, "", "", "")
	}
	if inner, ok := node.Elem.(*ast.ArrayDecl); ok {
		a.visit(inner)
	}
}

func (a *Analyzer) visitCompound(node *ast.Compound) {
	createScope := !a.suppressScope
	a.suppressScope = false

	if createScope {
		a.symtab.Create()
	}
	for _, item := range node.Items {
		a.visit(item)
	}
	if createScope {
		a.symtab.Pop()
	}
}

func (a *Analyzer) visitIf(node *ast.If) {
	a.visit(node.Cond)
	if _, isAssign := node.Cond.(*ast.Assignment); isAssign {
		a.assert(false, 18, node.Cond.Coord(), "", "", "")
	}
	ct := a.valueType(node.Cond)
	a.assert(ct != nil && ct.Equal(types.BoolType), 18, node.Cond.Coord(), "", "", "")

	a.visit(node.IfTrue)
	if node.IfFalse != nil {
		a.visit(node.IfFalse)
	}
}

func (a *Analyzer) visitWhile(node *ast.While) {
	a.visit(node.Cond)
	ct := a.valueType(node.Cond)
	ltype := ""
	if ct != nil {
		ltype = ct.Typename()
	}
	a.assert(ct != nil && ct.Equal(types.BoolType), 14, node.Coord(), "", ltype, "")

	wasInLoop := a.inLoop
	a.inLoop = true
	a.visit(node.Body)
	a.inLoop = wasInLoop
}

func (a *Analyzer) visitFor(node *ast.For) {
	a.symtab.Create()
	if node.Init != nil {
		a.visit(node.Init)
	}
	if node.Cond != nil {
		a.visit(node.Cond)
		ct := a.valueType(node.Cond)
		ltype := ""
		if ct != nil {
			ltype = ct.Typename()
		}
		a.assert(ct != nil && ct.Equal(types.BoolType), 14, node.Coord(), "", ltype, "")
	}
	if node.Next != nil {
		a.visit(node.Next)
	}

	wasInLoop := a.inLoop
	a.inLoop = true
	a.visit(node.Body)
	a.inLoop = wasInLoop

	a.symtab.Pop()
}

func (a *Analyzer) visitAssignment(node *ast.Assignment) {
	a.visit(node.RValue)
	a.visit(node.LValue)

	ltype := a.valueType(node.LValue)
	if id, ok := node.LValue.(*ast.ID); ok {
		a.assert(ltype != nil, 1, id.Coord(), id.Name, "", "")
	}
	rtype := a.valueType(node.RValue)
	a.assert(ltype != nil && rtype != nil && ltype.Equal(rtype), 4, node.Coord(),
		"", typename(ltype), typename(rtype))
	a.assert(types.Supports(ltype.AssignOps(), node.Op), 5, node.Coord(), node.Op, "", "")
	node.SetType(ltype)
}

func typename(t types.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.Typename()
}

func (a *Analyzer) visitAssert(node *ast.Assert) {
	a.visit(node.Expr)
	et := a.valueType(node.Expr)
	a.assert(et != nil && et.Equal(types.BoolType), 3, node.Expr.Coord(), "", "", "")
}

func (a *Analyzer) visitPrint(node *ast.Print) {
	if node.Expr == nil {
		return
	}
	for _, expr := range flattenExprs(node.Expr) {
		a.visit(expr)
		if id, ok := expr.(*ast.ID); ok {
			if _, isArray := id.Type().(*types.Array); isArray {
				a.assert(false, 21, expr.Coord(), id.Name, "", "")
			}
		}
		vt := a.valueType(expr)
		a.assert(vt != nil && !vt.Equal(types.VoidType), 20, expr.Coord(), "", "", "")
		_, isArray := vt.(*types.Array)
		a.assert(!isArray, 20, expr.Coord(), "", "", "")
	}
}

func (a *Analyzer) visitRead(node *ast.Read) {
	if node.Names == nil {
		return
	}
	for _, target := range flattenExprs(node.Names) {
		switch t := target.(type) {
		case *ast.ID:
			a.visit(t)
		case *ast.ArrayRef:
			a.visit(t)
		default:
			a.assert(false, 22, target.Coord(), ast.KindName(target), "", "")
		}
	}
}

func (a *Analyzer) visitReturn(node *ast.Return) {
	vt := types.Type(types.VoidType)
	if node.Expr != nil {
		a.visit(node.Expr)
		vt = a.valueType(node.Expr)
	}
	a.assert(vt != nil && vt.Equal(a.returnType), 23, node.Coord(), "",
		typename(vt), typename(a.returnType))
	a.hasReturn = true
}

func (a *Analyzer) visitFuncCall(node *ast.FuncCall) {
	name := node.Name.Name
	ft, ok := a.symtab.Lookup(name).(*types.Func)
	a.assert(ok, 15, node.Coord(), name, "", "")
	node.SetType(ft)

	if node.Args != nil {
		a.visit(node.Args)
	}
	args := flattenExprs(node.Args)
	a.assert(len(args) == len(ft.ParamOrder), 16, node.Coord(), name, "", "")

	for i, paramName := range ft.ParamOrder {
		argType := a.valueType(args[i])
		paramType := ft.Params[paramName]
		a.assert(argType != nil && argType.Equal(paramType), 17, args[i].Coord(), paramName, "", "")
	}
}

func (a *Analyzer) visitID(node *ast.ID) {
	t := a.symtab.Lookup(node.Name)
	a.assert(t != nil, 1, node.Coord(), node.Name, "", "")
	node.SetType(t)
}

func (a *Analyzer) visitBinaryOp(node *ast.BinaryOp) {
	a.visit(node.Left)
	a.visit(node.Right)

	ltype := a.valueType(node.Left)
	rtype := a.valueType(node.Right)
	a.assert(ltype != nil && rtype != nil && ltype.Equal(rtype), 5, node.Coord(), node.Op, "", "")

	if isRelational(node.Op) {
		a.assert(types.Supports(ltype.RelOps(), node.Op), 6, node.Coord(), node.Op, ltype.Typename(), "")
		node.SetType(types.BoolType)
		return
	}
	a.assert(types.Supports(ltype.BinaryOps(), node.Op), 6, node.Coord(), node.Op, ltype.Typename(), "")
	a.assert(types.Supports(rtype.BinaryOps(), node.Op), 6, node.Coord(), node.Op, rtype.Typename(), "")
	node.SetType(ltype)
}

func isRelational(op string) bool {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func (a *Analyzer) visitUnaryOp(node *ast.UnaryOp) {
	a.visit(node.Expr)
	et := a.valueType(node.Expr)
	a.assert(et != nil && types.Supports(et.UnaryOps(), node.Op), 25, node.Coord(), node.Op, "", "")
	node.SetType(et)
}

func (a *Analyzer) visitArrayRef(node *ast.ArrayRef) {
	a.visit(node.Subscript)
	st := a.valueType(node.Subscript)
	a.assert(st != nil && st.Equal(types.IntType), 2, node.Subscript.Coord(), "", typename(st), "")

	// drill to the base identifier; nested references check their own
	// subscripts on the way down
	if inner, ok := node.Name.(*ast.ArrayRef); ok {
		a.visit(inner)
	}
	base := baseID(node)
	a.assert(base != nil, 22, node.Coord(), ast.KindName(node.Name), "", "")
	t := a.symtab.Lookup(base.Name)
	a.assert(t != nil, 1, base.Coord(), base.Name, "", "")
	node.SetType(t)
}

func baseID(node ast.Node) *ast.ID {
	for {
		switch x := node.(type) {
		case *ast.ID:
			return x
		case *ast.ArrayRef:
			node = x.Name
		default:
			return nil
		}
	}
}

func (a *Analyzer) visitInitList(node *ast.InitList) {
	node.Dimension = []int{len(node.Exprs)}
	node.DifferentSizes = false
	if len(node.Exprs) == 0 {
		return
	}

	if _, nested := node.Exprs[0].(*ast.InitList); nested {
		first := -1
		for _, child := range node.Exprs {
			sub, ok := child.(*ast.InitList)
			a.assert(ok, 19, child.Coord(), "", "", "")
			a.visit(sub)
			if first < 0 {
				first = sub.Dimension[0]
			}
			if first != sub.Dimension[0] || sub.DifferentSizes {
				node.DifferentSizes = true
			}
		}
		node.Dimension = append(node.Dimension, node.Exprs[0].(*ast.InitList).Dimension...)
		return
	}

	for _, child := range node.Exprs {
		c, ok := child.(*ast.Constant)
		a.assert(ok, 19, child.Coord(), "", "", "")
		a.visit(c)
	}
}

// flattenExprs returns the expressions of an ExprList, a single-element
// slice for a bare expression, and nil for nil.
func flattenExprs(n ast.Node) []ast.Node {
	switch x := n.(type) {
	case nil:
		return nil
	case *ast.ExprList:
		return x.Exprs
	default:
		return []ast.Node{n}
	}
}
