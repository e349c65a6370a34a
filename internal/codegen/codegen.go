// Package codegen lowers the type-annotated AST into uCIR: three-address
// instruction tuples grouped into basic blocks and linked into a
// per-function control-flow graph.
//
// Generation runs in three ordered phases. File-scope declarations are
// emitted into a global prelude first; each function is then traversed
// twice, once to emit its stack allocations and once to emit its body.
// The phases share the per-function temporary counter but differ in which
// nodes they emit for, so every emission site consults the phase.
package codegen

import (
	"strconv"

	"ucc/internal/ast"
	"ucc/internal/ir"
	"ucc/internal/types"
	"ucc/internal/uerr"
)

type Phase int

const (
	PhaseGlobals Phase = iota
	PhaseAllocate
	PhaseCodegen
)

var binaryOps = map[string]string{
	"+":  "add",
	"-":  "sub",
	"*":  "mul",
	"/":  "div",
	"%":  "mod",
	">":  "gt",
	">=": "ge",
	"<":  "lt",
	"<=": "le",
	"==": "eq",
	"!=": "ne",
	"&&": "and",
	"||": "or",
	"!":  "not",
}

// labelAllocator hands out block labels per category: the first use of a
// category is the bare name, later uses append ".N".
type labelAllocator struct {
	counts map[string]int
}

func newLabelAllocator() *labelAllocator {
	return &labelAllocator{counts: map[string]int{}}
}

func (l *labelAllocator) Make(category string) string {
	n, seen := l.counts[category]
	if !seen {
		l.counts[category] = 0
		return category
	}
	l.counts[category] = n + 1
	return category + "." + strconv.Itoa(n+1)
}

func (l *labelAllocator) Clear() {
	l.counts = map[string]int{}
}

// varScopes renames local variables: the outermost declaration of a name
// emits as %name, shadowing declarations as %name.N. A stack of scopes
// records introductions so popping restores the previous generation.
type varScopes struct {
	versions map[string]int
	declared [][]string
}

func newVarScopes() *varScopes {
	return &varScopes{versions: map[string]int{}}
}

func (v *varScopes) Push() {
	v.declared = append(v.declared, nil)
}

func (v *varScopes) Pop() {
	top := v.declared[len(v.declared)-1]
	for _, name := range top {
		v.versions[name]--
		if v.versions[name] == 0 {
			delete(v.versions, name)
		}
	}
	v.declared = v.declared[:len(v.declared)-1]
}

func (v *varScopes) New(name string) {
	v.versions[name]++
	v.declared[len(v.declared)-1] = append(v.declared[len(v.declared)-1], name)
}

func (v *varScopes) Get(name string) string {
	if n := v.versions[name]; n > 1 {
		return name + "." + strconv.Itoa(n)
	}
	return name
}

// Generator lowers one program. The zero value is not usable; call New.
type Generator struct {
	phase   Phase
	current *ir.BasicBlock

	fname    string
	versions map[string]int

	code []ir.Instr
	text []ir.Instr

	labels  *labelAllocator
	vars    *varScopes
	globals map[string]bool

	currentFunc *ast.FuncDef
	returnReg   string
	loopEnds    []string
}

func New() *Generator {
	return &Generator{
		fname:    "_glob_",
		versions: map[string]int{"_glob_": 0},
		labels:   newLabelAllocator(),
		vars:     newVarScopes(),
		globals:  map[string]bool{},
	}
}

// Generate emits the whole program and returns the flat instruction list:
// the global prelude followed by each function's blocks in declaration
// order. The per-function CFGs are attached to the FuncDef nodes.
func Generate(prog *ast.Program) []ir.Instr {
	g := New()
	g.visit(prog)
	return g.code
}

func (g *Generator) newTemp() string {
	if _, ok := g.versions[g.fname]; !ok {
		g.versions[g.fname] = 1
	}
	name := "%" + strconv.Itoa(g.versions[g.fname])
	g.versions[g.fname]++
	return name
}

// newText names a constant in the global section, e.g. @.str.0.
func (g *Generator) newText(kind string) string {
	name := "@." + kind + "." + strconv.Itoa(g.versions["_glob_"])
	g.versions["_glob_"]++
	return name
}

func (g *Generator) newGlobal(name string) {
	g.globals[name] = true
}

// getAddress resolves the operand name for a node: globals as @name,
// locals as %name with shadow generation, constants and calls by their
// generated locations.
func (g *Generator) getAddress(node ast.Node) string {
	switch n := node.(type) {
	case *ast.ID:
		if g.globals[n.Name] {
			return "@" + n.Name
		}
		return "%" + g.vars.Get(n.Name)
	case *ast.Constant:
		return n.GenLocation()
	case *ast.FuncCall:
		return "@" + n.Name.Name
	case *ast.ArrayRef:
		base := baseID(n)
		if base == nil {
			panic(uerr.Internal("array reference without identifier base"))
		}
		if g.globals[base.Name] {
			return "@" + base.Name
		}
		return "%" + g.vars.Get(base.Name)
	}
	panic(uerr.Internal("no address for %s node", ast.KindName(node)))
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

// connectNextBlock links block after the current one, makes it current
// and opens it with its label instruction.
func (g *Generator) connectNextBlock(block *ir.BasicBlock, label string) {
	g.current.Next = block
	block.AddPredecessor(g.current)
	g.current = block
	g.current.Append(ir.Instr{label + ":"})
}

func (g *Generator) emitJump(targetLabel string) {
	g.current.Append(ir.Instr{"jump", "%" + targetLabel})
}

// valueTypeName is the opcode suffix for an expression: element type for
// array references, return type for calls.
func valueTypeName(n ast.Node) string {
	switch x := n.(type) {
	case *ast.FuncCall:
		if ft, ok := x.Type().(*types.Func); ok {
			return ft.Return.Typename()
		}
	case *ast.ArrayRef:
		if at, ok := x.Type().(*types.Array); ok {
			return at.Elem.Typename()
		}
	case ast.Expr:
		if x.Type() != nil {
			return x.Type().Typename()
		}
	}
	panic(uerr.Internal("missing type annotation on %s node", ast.KindName(n)))
}

func (g *Generator) visit(n ast.Node) {
	switch node := n.(type) {
	case *ast.Program:
		g.visitProgram(node)
	case *ast.GlobalDecl:
		for _, d := range node.Decls {
			g.visitDecl(d)
		}
	case *ast.FuncDef:
		g.visitFuncDef(node)
	case *ast.Decl:
		g.visitDecl(node)
	case *ast.DeclList:
		for _, d := range node.Decls {
			g.visitDecl(d)
		}
	case *ast.ParamList:
		for _, p := range node.Params {
			g.visitDecl(p)
		}
	case *ast.Compound:
		g.visitCompound(node)
	case *ast.If:
		g.visitIf(node)
	case *ast.While:
		g.visitWhile(node)
	case *ast.For:
		g.visitFor(node)
	case *ast.Assignment:
		g.visitAssignment(node)
	case *ast.Assert:
		g.visitAssert(node)
	case *ast.Break:
		g.visitBreak(node)
	case *ast.Print:
		g.visitPrint(node)
	case *ast.Read:
		g.visitRead(node)
	case *ast.Return:
		g.visitReturn(node)
	case *ast.FuncCall:
		g.visitFuncCall(node)
	case *ast.Constant:
		g.visitConstant(node)
	case *ast.ID:
		g.visitID(node)
	case *ast.BinaryOp:
		g.visitBinaryOp(node)
	case *ast.UnaryOp:
		g.visitUnaryOp(node)
	case *ast.ArrayRef:
		g.visitArrayRef(node)
	case *ast.ExprList:
		// handled by the statements that own one
	case *ast.InitList, *ast.EmptyStatement, *ast.Type, *ast.VarDecl, *ast.FuncDecl, *ast.ArrayDecl:
		// nothing to emit on direct visit
	default:
		panic(uerr.Internal("codegen cannot visit %s node", ast.KindName(n)))
	}
}

func (g *Generator) visitProgram(node *ast.Program) {
	for _, d := range node.GDecls {
		g.visit(d)
	}
	// globals first, then every function's emitted blocks
	g.code = append([]ir.Instr{}, g.text...)
	node.Text = append([]ir.Instr{}, g.text...)
	for _, d := range node.GDecls {
		if f, ok := d.(*ast.FuncDef); ok {
			g.code = append(g.code, ir.EmitBlocks(f.CFG)...)
		}
	}
}

func (g *Generator) visitFuncDef(node *ast.FuncDef) {
	g.phase = PhaseAllocate
	g.fname = node.Decl.Name.Name
	g.newGlobal(g.fname)
	g.vars.Push()

	node.CFG = ir.NewBasicBlock(g.fname)
	g.current = node.CFG
	g.currentFunc = node

	g.visitDecl(node.Decl)

	typename := node.Return.Name
	g.returnReg = ""
	if typename != "void" {
		g.returnReg = g.newTemp()
		g.current.Append(ir.Instr{"alloc_" + typename, g.returnReg})
	}
	node.ReturnReg = g.returnReg

	g.visit(node.Body)

	g.phase = PhaseCodegen
	g.visitDecl(node.Decl)
	g.visit(node.Body)

	g.labels.Clear()

	retBlock := ir.NewBasicBlock("exit")
	retBlock.AddPredecessor(g.current)
	g.emitJump("exit")
	retBlock.Append(ir.Instr{"exit:"})
	if typename == "void" {
		retBlock.Append(ir.Instr{"return_void"})
	} else {
		tmp := g.newTemp()
		retBlock.Append(ir.Instr{"load_" + typename, g.returnReg, tmp})
		retBlock.Append(ir.Instr{"return_" + typename, tmp})
	}
	g.current.Next = retBlock
	g.current = nil

	g.vars.Pop()
	g.currentFunc = nil
	g.phase = PhaseGlobals
	g.fname = "_glob_"
}

func (g *Generator) visitDecl(node *ast.Decl) {
	switch spec := node.Spec.(type) {
	case *ast.FuncDecl:
		g.visitFuncDecl(spec)
	case *ast.ArrayDecl:
		g.visitArrayDecl(spec, node)
	case *ast.VarDecl:
		g.visitVarDecl(spec, node)
	}
}

func (g *Generator) visitFuncDecl(node *ast.FuncDecl) {
	switch g.phase {
	case PhaseAllocate:
		funcType := node.Spec.Primitive.Name
		funcName := node.Spec.DeclName.Name

		// argument registers come first: %1..%N, then the return slot
		var params []ir.ParamPair
		var paramRegs []string
		if node.Params != nil {
			for _, p := range node.Params.Params {
				vd, ok := p.Spec.(*ast.VarDecl)
				if !ok {
					panic(uerr.Internal("parameter %s is not a scalar declaration", p.Name.Name))
				}
				reg := g.newTemp()
				vd.GenLoc = reg
				params = append(params, ir.ParamPair{Typename: vd.Primitive.Name, Reg: reg})
				paramRegs = append(paramRegs, reg)
			}
		}
		if g.currentFunc != nil {
			g.currentFunc.ParamRegs = paramRegs
		}

		g.current.Append(ir.Instr{"define_" + funcType, "@" + funcName, params})
		g.current.Append(ir.Instr{"entry:"})

		if node.Params != nil {
			g.visit(node.Params)
		}
	case PhaseCodegen:
		if node.Params != nil {
			g.visit(node.Params)
		}
	}
}

func (g *Generator) visitVarDecl(node *ast.VarDecl, decl *ast.Decl) {
	typename := node.Primitive.Name
	switch g.phase {
	case PhaseGlobals:
		g.newGlobal(decl.Name.Name)
		inst := ir.Instr{"global_" + typename, "@" + decl.Name.Name}
		if c, ok := decl.Init.(*ast.Constant); ok {
			inst = append(inst, constValue(typename, c.Value))
		}
		g.text = append(g.text, inst)

	case PhaseAllocate:
		if decl.Init != nil {
			g.visit(decl.Init)
		}
		g.vars.New(decl.Name.Name)
		g.current.Append(ir.Instr{"alloc_" + typename, g.getAddress(decl.Name)})

	case PhaseCodegen:
		if decl.Init != nil {
			src := ""
			switch init := decl.Init.(type) {
			case *ast.Constant:
				src = g.getAddress(init)
			case ast.Expr:
				src = init.GenLocation()
			}
			if src != "" {
				g.current.Append(ir.Instr{"store_" + typename, src, g.getAddress(decl.Name)})
			}
		} else if node.GenLoc != "" {
			// parameter: spill the argument register into its slot
			g.current.Append(ir.Instr{"store_" + typename, node.GenLoc, g.getAddress(decl.Name)})
		}
	}
}

func (g *Generator) visitArrayDecl(node *ast.ArrayDecl, decl *ast.Decl) {
	elem, declaredDims := arrayShape(node)
	dims := declaredDims
	if init, ok := decl.Init.(*ast.InitList); ok && len(init.Dimension) > 0 {
		dims = init.Dimension
	}

	suffix := ""
	for _, d := range dims {
		suffix += "_" + strconv.Itoa(d)
	}

	switch g.phase {
	case PhaseGlobals:
		g.newGlobal(decl.Name.Name)
		target := "@" + decl.Name.Name
		g.text = append(g.text, g.arrayDataInstr(elem, suffix, target, decl.Init))

	case PhaseAllocate:
		if decl.Init != nil {
			target := g.newText("const_" + decl.Name.Name)
			decl.InitConst = target
			g.text = append(g.text, g.arrayDataInstr(elem, suffix, target, decl.Init))
		}
		g.vars.New(decl.Name.Name)
		g.current.Append(ir.Instr{"alloc_" + elem + suffix, g.getAddress(decl.Name)})

	case PhaseCodegen:
		if decl.InitConst != "" {
			g.current.Append(ir.Instr{"store_" + elem + suffix, decl.InitConst, g.getAddress(decl.Name)})
		}
	}
}

// arrayDataInstr builds the global data tuple for an array declaration:
// flattened element values for init lists, the literal for strings.
func (g *Generator) arrayDataInstr(elem, suffix, target string, init ast.Node) ir.Instr {
	switch val := init.(type) {
	case *ast.InitList:
		return ir.Instr{"global_" + elem + suffix, target, initValues(elem, val)}
	case *ast.Constant:
		if val.CType == "string" {
			return ir.Instr{"global_string", target, val.Value}
		}
	}
	return ir.Instr{"global_" + elem + suffix, target, []interface{}{}}
}

// initValues converts an init list into the nested value shape the
// global data tuple carries.
func initValues(elem string, list *ast.InitList) []interface{} {
	var out []interface{}
	for _, e := range list.Exprs {
		switch x := e.(type) {
		case *ast.InitList:
			out = append(out, initValues(elem, x))
		case *ast.Constant:
			out = append(out, constValue(elem, x.Value))
		}
	}
	return out
}

func constValue(typename, raw string) interface{} {
	switch typename {
	case "int":
		v, err := strconv.Atoi(raw)
		if err != nil {
			panic(uerr.Internal("bad int literal %q", raw))
		}
		return v
	case "bool":
		return raw == "true"
	default:
		return raw
	}
}

func arrayShape(node *ast.ArrayDecl) (string, []int) {
	var dims []int
	var cur ast.Node = node
	for {
		arr, ok := cur.(*ast.ArrayDecl)
		if !ok {
			break
		}
		d := 0
		if c, isConst := arr.Dim.(*ast.Constant); isConst {
			d, _ = strconv.Atoi(c.Value)
		}
		dims = append(dims, d)
		cur = arr.Elem
	}
	vd, ok := cur.(*ast.VarDecl)
	if !ok {
		panic(uerr.Internal("array declarator without element type"))
	}
	return vd.Primitive.Name, dims
}

func (g *Generator) visitCompound(node *ast.Compound) {
	switch g.phase {
	case PhaseAllocate:
		for _, item := range node.Items {
			if d, ok := item.(*ast.Decl); ok {
				g.visitDecl(d)
			}
		}
	case PhaseCodegen:
		for _, item := range node.Items {
			g.visit(item)
		}
	}
}

func (g *Generator) visitIf(node *ast.If) {
	g.visit(node.Cond)

	thenLabel := g.labels.Make("if.then")
	falseLabel := g.labels.Make("if.end")
	exitLabel := g.labels.Make("if.exit")

	cond := exprLoc(node.Cond)
	g.current.Append(ir.Instr{"cbranch", cond, "%" + thenLabel, "%" + falseLabel})

	thenBlock := ir.NewBasicBlock(thenLabel)
	falseBlock := ir.NewBasicBlock(falseLabel)
	exitBlock := ir.NewBasicBlock(exitLabel)

	g.connectNextBlock(thenBlock, thenLabel)
	g.visit(node.IfTrue)
	g.emitJump(exitLabel)

	g.connectNextBlock(falseBlock, falseLabel)
	if node.IfFalse != nil {
		g.visit(node.IfFalse)
	}
	g.emitJump(exitLabel)

	g.connectNextBlock(exitBlock, exitLabel)
}

func (g *Generator) visitWhile(node *ast.While) {
	g.vars.Push()

	// allocate declarations inside the body before lowering it
	if body, ok := node.Body.(*ast.Compound); ok {
		g.phase = PhaseAllocate
		g.visit(body)
		g.phase = PhaseCodegen
	}

	condLabel := g.labels.Make("while.cond")
	bodyLabel := g.labels.Make("while.body")
	endLabel := g.labels.Make("while.end")

	condBlock := ir.NewConditionBlock(condLabel)
	bodyBlock := ir.NewBasicBlock(bodyLabel)
	endBlock := ir.NewBasicBlock(endLabel)
	condBlock.Taken = bodyBlock
	condBlock.FallThrough = endBlock

	g.emitJump(condLabel)
	g.connectNextBlock(condBlock, condLabel)

	g.visit(node.Cond)
	g.current.Append(ir.Instr{"cbranch", exprLoc(node.Cond), "%" + bodyLabel, "%" + endLabel})

	g.connectNextBlock(bodyBlock, bodyLabel)
	g.loopEnds = append(g.loopEnds, endLabel)
	g.visit(node.Body)
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	g.emitJump(condLabel)

	g.connectNextBlock(endBlock, endLabel)

	g.vars.Pop()
}

func (g *Generator) visitFor(node *ast.For) {
	g.vars.Push()

	if init, ok := node.Init.(*ast.DeclList); ok {
		g.phase = PhaseAllocate
		g.visit(init)
		g.phase = PhaseCodegen
	}
	if body, ok := node.Body.(*ast.Compound); ok {
		g.phase = PhaseAllocate
		g.visit(body)
		g.phase = PhaseCodegen
	}
	if node.Init != nil {
		g.visit(node.Init)
	}

	condLabel := g.labels.Make("for.cond")
	bodyLabel := g.labels.Make("for.body")
	endLabel := g.labels.Make("for.end")
	incLabel := g.labels.Make("for.inc")

	condBlock := ir.NewConditionBlock(condLabel)
	bodyBlock := ir.NewBasicBlock(bodyLabel)
	endBlock := ir.NewBasicBlock(endLabel)
	incBlock := ir.NewBasicBlock(incLabel)
	condBlock.Taken = bodyBlock
	condBlock.FallThrough = endBlock

	g.emitJump(condLabel)
	g.connectNextBlock(condBlock, condLabel)

	g.visit(node.Cond)
	g.current.Append(ir.Instr{"cbranch", exprLoc(node.Cond), "%" + bodyLabel, "%" + endLabel})

	g.connectNextBlock(bodyBlock, bodyLabel)
	g.loopEnds = append(g.loopEnds, endLabel)
	g.visit(node.Body)
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	g.emitJump(incLabel)

	g.connectNextBlock(incBlock, incLabel)
	if node.Next != nil {
		g.visit(node.Next)
	}
	g.emitJump(condLabel)

	g.connectNextBlock(endBlock, endLabel)

	g.vars.Pop()
}

func (g *Generator) visitAssignment(node *ast.Assignment) {
	g.visit(node.RValue)
	src := exprLoc(node.RValue)

	if ref, ok := node.LValue.(*ast.ArrayRef); ok {
		typename := valueTypeName(ref)
		g.visit(ref.Subscript)
		addr := g.newTemp()
		g.current.Append(ir.Instr{"elem_" + typename, g.getAddress(ref), exprLoc(ref.Subscript), addr})
		g.current.Append(ir.Instr{"store_" + typename, src, addr})
		return
	}

	typename := valueTypeName(node.LValue)
	g.current.Append(ir.Instr{"store_" + typename, src, g.getAddress(node.LValue)})
}

func (g *Generator) visitAssert(node *ast.Assert) {
	g.visit(node.Expr)

	target := g.newText("str")
	g.text = append(g.text, ir.Instr{"global_string", target, "assertion_fail on " + node.Expr.Coord().String()})

	g.labels.Make("assert")
	falseLabel := g.labels.Make("assert.false")
	trueLabel := g.labels.Make("assert.true")

	condBlock := ir.NewConditionBlock("assert")
	falseBlock := ir.NewBasicBlock(falseLabel)
	trueBlock := ir.NewBasicBlock(trueLabel)
	condBlock.Taken = trueBlock
	condBlock.FallThrough = falseBlock

	// the condition block carries no label of its own
	condBlock.AddPredecessor(g.current)
	g.current.Next = condBlock
	g.current = condBlock
	g.current.Append(ir.Instr{"cbranch", exprLoc(node.Expr), "%" + trueLabel, "%" + falseLabel})

	g.connectNextBlock(falseBlock, falseLabel)
	g.current.Append(ir.Instr{"print_string", target})
	g.emitJump("exit")

	g.connectNextBlock(trueBlock, trueLabel)
}

func (g *Generator) visitBreak(node *ast.Break) {
	if len(g.loopEnds) == 0 {
		panic(uerr.Internal("break outside loop survived semantic analysis"))
	}
	g.emitJump(g.loopEnds[len(g.loopEnds)-1])
}

func (g *Generator) visitPrint(node *ast.Print) {
	if node.Expr == nil {
		g.current.Append(ir.Instr{"print_void"})
		return
	}
	for _, expr := range flattenExprs(node.Expr) {
		g.visit(expr)
		g.current.Append(ir.Instr{"print_" + valueTypeName(expr), exprLoc(expr)})
	}
}

func (g *Generator) visitRead(node *ast.Read) {
	for _, target := range flattenExprs(node.Names) {
		switch t := target.(type) {
		case *ast.ID:
			g.current.Append(ir.Instr{"read_" + valueTypeName(t), g.getAddress(t)})
		case *ast.ArrayRef:
			typename := valueTypeName(t)
			g.visit(t.Subscript)
			addr := g.newTemp()
			g.current.Append(ir.Instr{"elem_" + typename, g.getAddress(t), exprLoc(t.Subscript), addr})
			tmp := g.newTemp()
			g.current.Append(ir.Instr{"read_" + typename, tmp})
			g.current.Append(ir.Instr{"store_" + typename, tmp, addr})
		}
	}
}

func (g *Generator) visitReturn(node *ast.Return) {
	if node.Expr != nil {
		g.visit(node.Expr)
		typename := valueTypeName(node.Expr)
		g.current.Append(ir.Instr{"store_" + typename, exprLoc(node.Expr), g.returnReg})
	}
	g.emitJump("exit")
}

func (g *Generator) visitFuncCall(node *ast.FuncCall) {
	node.SetGenLocation(g.newTemp())
	funcName := g.getAddress(node)

	for _, arg := range flattenExprs(node.Args) {
		g.visit(arg)
		g.current.Append(ir.Instr{"param_" + valueTypeName(arg), exprLoc(arg)})
	}

	ft, ok := node.Type().(*types.Func)
	if !ok {
		panic(uerr.Internal("call of %s without function type", funcName))
	}
	g.current.Append(ir.Instr{"call_" + ft.Return.Typename(), funcName, node.GenLocation()})
}

func (g *Generator) visitConstant(node *ast.Constant) {
	if node.Type() != nil && node.Type().Typename() == "string" {
		target := g.newText("str")
		g.text = append(g.text, ir.Instr{"global_string", target, node.Value})
		node.SetGenLocation(target)
		return
	}
	target := g.newTemp()
	if g.phase != PhaseGlobals {
		typename := node.Type().Typename()
		g.current.Append(ir.Instr{"literal_" + typename, constValue(typename, node.Value), target})
	}
	node.SetGenLocation(target)
}

func (g *Generator) visitID(node *ast.ID) {
	if node.Type() == nil {
		return
	}
	node.SetGenLocation(g.newTemp())
	g.current.Append(ir.Instr{"load_" + node.Type().Typename(), g.getAddress(node), node.GenLocation()})
}

func (g *Generator) visitBinaryOp(node *ast.BinaryOp) {
	g.visit(node.Left)
	g.visit(node.Right)

	target := g.newTemp()
	typename := valueTypeName(node.Left)

	verb, ok := binaryOps[node.Op]
	if !ok {
		panic(uerr.Internal("unknown binary operator %q", node.Op))
	}
	g.current.Append(ir.Instr{verb + "_" + typename, exprLoc(node.Left), exprLoc(node.Right), target})
	node.SetGenLocation(target)
}

func (g *Generator) visitUnaryOp(node *ast.UnaryOp) {
	g.visit(node.Expr)
	typename := valueTypeName(node.Expr)

	switch node.Op {
	case "+":
		node.SetGenLocation(exprLoc(node.Expr))
	case "!":
		target := g.newTemp()
		g.current.Append(ir.Instr{"not_" + typename, exprLoc(node.Expr), target})
		node.SetGenLocation(target)
	case "-":
		zero := g.newTemp()
		g.current.Append(ir.Instr{"literal_" + typename, 0, zero})
		target := g.newTemp()
		g.current.Append(ir.Instr{"sub_" + typename, zero, exprLoc(node.Expr), target})
		node.SetGenLocation(target)
	default:
		panic(uerr.Internal("unknown unary operator %q", node.Op))
	}
}

func (g *Generator) visitArrayRef(node *ast.ArrayRef) {
	g.visit(node.Subscript)
	typename := valueTypeName(node)

	addr := g.newTemp()
	g.current.Append(ir.Instr{"elem_" + typename, g.getAddress(node), exprLoc(node.Subscript), addr})

	node.SetGenLocation(g.newTemp())
	g.current.Append(ir.Instr{"load_" + typename + "_*", addr, node.GenLocation()})
}

func exprLoc(n ast.Node) string {
	e, ok := n.(ast.Expr)
	if !ok || e.GenLocation() == "" {
		panic(uerr.Internal("%s node has no generated location", ast.KindName(n)))
	}
	return e.GenLocation()
}

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
