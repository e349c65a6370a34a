package dataflow

import (
	"io"
	"strings"
	"testing"

	"golang.org/x/exp/slices"

	"ucc/internal/ast"
	"ucc/internal/codegen"
	"ucc/internal/ir"
	"ucc/internal/parser"
	"ucc/internal/sema"
)

func compile(t *testing.T, input string) (*ast.Program, []ir.Instr) {
	t.Helper()
	prog, errs := parser.Parse(input)
	if len(errs) > 0 {
		t.Fatalf("parse failed: %v", errs)
	}
	if err := sema.Check(prog); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	return prog, codegen.Generate(prog)
}

func optimize(t *testing.T, input string) ([]ir.Instr, []ir.Instr) {
	t.Helper()
	prog, gencode := compile(t, input)
	optcode := New(false, io.Discard).Run(prog)
	return gencode, optcode
}

func countWhere(code []ir.Instr, pred func(ir.Instr) bool) int {
	n := 0
	for _, inst := range code {
		if pred(inst) {
			n++
		}
	}
	return n
}

func TestConstantPropagation(t *testing.T) {
	_, optcode := optimize(t, "int main() { int a; a = 5; print(a); return 0; }")

	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "store_int" && i.Field(2) == "%a"
	}); n != 0 {
		t.Errorf("store to %%a survived propagation (%d)", n)
	}
	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "load_int" && i.Field(1) == "%a"
	}); n != 0 {
		t.Errorf("load of %%a survived propagation (%d)", n)
	}

	// print must use the literal's register directly
	var literalReg, printReg string
	for _, inst := range optcode {
		if inst.Op() == "literal_int" && inst[1] == 5 {
			literalReg = inst.Field(2)
		}
		if inst.Op() == "print_int" {
			printReg = inst.Field(1)
		}
	}
	if literalReg == "" || literalReg != printReg {
		t.Errorf("print uses %s, want the literal register %s", printReg, literalReg)
	}
}

func TestDeadStoreElimination(t *testing.T) {
	_, optcode := optimize(t, "int main() { int a; a = 1; a = 2; print(a); return 0; }")

	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "store_int" && i.Field(2) == "%a"
	}); n != 0 {
		t.Errorf("%d stores to %%a survived, want 0 after propagation and DCE", n)
	}

	var twoReg, printReg string
	for _, inst := range optcode {
		if inst.Op() == "literal_int" && inst[1] == 2 {
			twoReg = inst.Field(2)
		}
		if inst.Op() == "print_int" {
			printReg = inst.Field(1)
		}
	}
	if twoReg == "" || printReg != twoReg {
		t.Errorf("print uses %s, want the register holding literal 2 (%s)", printReg, twoReg)
	}
}

func TestGlobalLoadCoalescing(t *testing.T) {
	_, optcode := optimize(t, "int g = 3; int main() { print(g); print(g); return 0; }")

	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "load_int" && i.Field(1) == "@g"
	}); n != 1 {
		t.Errorf("%d loads of @g, want 1 after coalescing", n)
	}
}

func TestGlobalStoreBlocksCoalescing(t *testing.T) {
	_, optcode := optimize(t, `
int g = 3;
int main() {
	print(g);
	g = 4;
	print(g);
	return 0;
}`)

	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "load_int" && i.Field(1) == "@g"
	}); n != 2 {
		t.Errorf("%d loads of @g, want 2: the store must block coalescing", n)
	}
}

func TestParameterRegistersNotPropagated(t *testing.T) {
	_, optcode := optimize(t, `
int twice(int x) { return x + x; }
int main() { print(twice(4)); return 0; }`)

	// the argument spill into %x must survive: its source is a
	// parameter register
	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "store_int" && i.Field(2) == "%x"
	}); n != 1 {
		t.Errorf("%d stores to %%x, want 1 (parameter spill is not propagatable)", n)
	}
}

func TestLoopStoresSurvive(t *testing.T) {
	_, optcode := optimize(t, `
int main() {
	int i;
	int s;
	s = 0;
	for (i = 0; i < 5; i = i + 1) { s = s + i; }
	print(s);
	return 0;
}`)

	// i has two reaching definitions at its loop uses; none may be folded
	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "store_int" && i.Field(2) == "%i"
	}); n != 2 {
		t.Errorf("%d stores to %%i, want both to survive", n)
	}
	if n := countWhere(optcode, func(i ir.Instr) bool {
		return i.Op() == "store_int" && i.Field(2) == "%s"
	}); n != 2 {
		t.Errorf("%d stores to %%s, want both to survive", n)
	}
}

// fixed-point sanity: after convergence the dataflow equations hold at
// every instruction.
func TestReachingDefinitionsFixedPoint(t *testing.T) {
	prog, _ := compile(t, `
int main() {
	int a;
	a = 1;
	if (a > 0) { a = 2; } else { a = 3; }
	print(a);
	return 0;
}`)

	d := New(false, io.Discard)
	d.reset()
	d.enumerate(prog.GDecls[0].(*ast.FuncDef).CFG)
	d.computeRDGenKill()
	d.computeRDInOut()

	for index := range d.enumerated {
		wantOut := append([]int{}, d.rdGen[index]...)
		for _, def := range d.rdIn[index] {
			if !slices.Contains(d.rdKill[index], def) && !slices.Contains(wantOut, def) {
				wantOut = append(wantOut, def)
			}
		}
		if !slices.Equal(wantOut, d.rdOut[index]) {
			t.Errorf("out[%d] = %v, want %v", index, d.rdOut[index], wantOut)
		}

		var wantIn []int
		for _, pred := range d.preds[index] {
			for _, def := range d.rdOut[pred] {
				if !slices.Contains(wantIn, def) {
					wantIn = append(wantIn, def)
				}
			}
		}
		if !slices.Equal(wantIn, d.rdIn[index]) {
			t.Errorf("in[%d] = %v, want %v", index, d.rdIn[index], wantIn)
		}
	}

	// the print's load sees both branch stores
	printLoad := -1
	for index, inst := range d.enumerated {
		if inst.Op() == "load_int" && inst.Field(1) == "%a" {
			printLoad = index
		}
	}
	if n := d.countLiveDefinitions("%a", printLoad); n != 2 {
		t.Errorf("load at %d reaches %d definitions of %%a, want 2", printLoad, n)
	}
}

func TestLiveVariablesFixedPoint(t *testing.T) {
	prog, _ := compile(t, `
int main() {
	int a;
	int b;
	a = 1;
	b = 2;
	print(a + b);
	return 0;
}`)

	d := New(false, io.Discard)
	d.reset()
	d.enumerate(prog.GDecls[0].(*ast.FuncDef).CFG)
	d.computeLVUseDef()
	d.computeLVInOut()

	for index := range d.enumerated {
		var wantOut []string
		for _, succ := range d.succs[index] {
			for _, v := range d.lvIn[succ] {
				if !slices.Contains(wantOut, v) {
					wantOut = append(wantOut, v)
				}
			}
		}
		if !slices.Equal(wantOut, d.lvOut[index]) {
			t.Errorf("out[%d] = %v, want %v", index, d.lvOut[index], wantOut)
		}

		wantIn := append([]string{}, d.lvUse[index]...)
		for _, v := range d.lvOut[index] {
			if !slices.Contains(d.lvDef[index], v) && !slices.Contains(wantIn, v) {
				wantIn = append(wantIn, v)
			}
		}
		if !slices.Equal(wantIn, d.lvIn[index]) {
			t.Errorf("in[%d] = %v, want %v", index, d.lvIn[index], wantIn)
		}
	}

	// both stores are live at their own program points
	for index, inst := range d.enumerated {
		if inst.Op() == "store_int" && (inst.Field(2) == "%a" || inst.Field(2) == "%b") {
			if !slices.Contains(d.lvOut[index], inst.Field(2)) {
				t.Errorf("store at %d of %s is unexpectedly dead", index, inst.Field(2))
			}
		}
	}
}

func TestBranchEdgesInPredecessors(t *testing.T) {
	prog, _ := compile(t, `
int main() {
	int a;
	a = 0;
	while (a < 3) { a = a + 1; }
	return a;
}`)

	d := New(false, io.Discard)
	d.reset()
	d.enumerate(prog.GDecls[0].(*ast.FuncDef).CFG)
	d.calculatePredecessors()
	d.calculateSuccessors()

	condIdx := d.findLabel("while.cond")
	if condIdx < 0 {
		t.Fatal("while.cond label not found")
	}
	// the back-edge jump at the end of the body must be a predecessor
	backEdge := false
	for _, pred := range d.preds[condIdx] {
		inst := d.enumerated[pred]
		if inst.Op() == "jump" && inst.Field(1) == "%while.cond" && pred > condIdx {
			backEdge = true
		}
	}
	if !backEdge {
		t.Error("loop header has no back-edge predecessor")
	}

	// a cbranch has exactly its two label targets as extra successors
	for index, inst := range d.enumerated {
		if inst.Op() != "cbranch" {
			continue
		}
		for _, field := range []int{2, 3} {
			target := d.findLabel(strings.TrimPrefix(inst.Field(field), "%"))
			if !slices.Contains(d.succs[index], target) {
				t.Errorf("cbranch at %d is missing successor %d", index, target)
			}
		}
	}
}

func TestSpeedupNeverBelowOne(t *testing.T) {
	gencode, optcode := optimize(t, `
int main() {
	int a;
	int b;
	a = 1;
	b = a;
	print(b);
	return 0;
}`)

	if len(optcode) > len(gencode) {
		t.Errorf("optimized code grew: %d > %d", len(optcode), len(gencode))
	}
}
