package codegen

import (
	"strings"
	"testing"

	"ucc/internal/ast"
	"ucc/internal/ir"
	"ucc/internal/parser"
	"ucc/internal/sema"
)

// compile parses, checks and lowers a program, returning the annotated
// AST and the flat instruction list.
func compile(t *testing.T, input string) (*ast.Program, []ir.Instr) {
	t.Helper()
	prog, errs := parser.Parse(input)
	if len(errs) > 0 {
		t.Fatalf("parse failed: %v", errs)
	}
	if err := sema.Check(prog); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	return prog, Generate(prog)
}

func opsOf(code []ir.Instr) []string {
	out := make([]string, len(code))
	for i, inst := range code {
		out[i] = inst.Op()
	}
	return out
}

func countOp(code []ir.Instr, op string) int {
	n := 0
	for _, inst := range code {
		if inst.Op() == op {
			n++
		}
	}
	return n
}

func hasLabel(code []ir.Instr, label string) bool {
	for _, inst := range code {
		if inst.IsLabel() && inst.LabelName() == label {
			return true
		}
	}
	return false
}

// functions splits the flat code list at define_ boundaries.
func functions(code []ir.Instr) [][]ir.Instr {
	var out [][]ir.Instr
	var cur []ir.Instr
	for _, inst := range code {
		if strings.HasPrefix(inst.Op(), "define_") {
			if cur != nil {
				out = append(out, cur)
			}
			cur = nil
		}
		if cur != nil || strings.HasPrefix(inst.Op(), "define_") {
			cur = append(cur, inst)
		}
	}
	if cur != nil {
		out = append(out, cur)
	}
	return out
}

func TestSimpleFunctionLowering(t *testing.T) {
	_, code := compile(t, "int main() { int a; a = 5; print(a); return 0; }")

	ops := opsOf(code)
	want := []string{
		"define_int", "entry:", "alloc_int", "alloc_int",
		"literal_int", "store_int", "load_int", "print_int",
		"literal_int", "store_int", "jump", "jump",
		"exit:", "load_int", "return_int",
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d instructions %v, want %d", len(ops), ops, len(want))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("instruction %d: got %s, want %s", i, ops[i], want[i])
		}
	}

	// the store writes the literal's register into %a
	if code[5].Field(2) != "%a" {
		t.Errorf("store destination %s, want %%a", code[5].Field(2))
	}
}

func TestRegistersDefinedOnce(t *testing.T) {
	_, code := compile(t, `
int add(int a, int b) { return a + b; }
int main() {
	int i;
	int s;
	s = 0;
	for (i = 0; i < 4; i = i + 1) { s = add(s, i); }
	print(s);
	return 0;
}`)

	for _, fn := range functions(code) {
		seen := map[string]bool{}
		for _, inst := range fn {
			dst := destOf(inst)
			if dst == "" {
				continue
			}
			if seen[dst] {
				t.Errorf("register %s defined more than once", dst)
			}
			seen[dst] = true
		}
	}
}

// destOf returns the destination register of a value-producing
// instruction, or "".
func destOf(inst ir.Instr) string {
	op := inst.Op()
	switch {
	case strings.HasPrefix(op, "literal_"),
		strings.HasPrefix(op, "load_"),
		strings.HasPrefix(op, "elem_"),
		strings.HasPrefix(op, "call_"):
		return inst.Field(len(inst) - 1)
	}
	for _, verb := range []string{"add_", "sub_", "mul_", "div_", "mod_", "and_", "or_", "not_", "eq_", "ne_", "lt_", "le_", "gt_", "ge_"} {
		if strings.HasPrefix(op, verb) {
			return inst.Field(len(inst) - 1)
		}
	}
	return ""
}

func TestFunctionShapeInvariants(t *testing.T) {
	_, code := compile(t, `
void show(int x) { print(x); }
int main() {
	show(1);
	if (1 == 1) { show(2); } else { show(3); }
	return 0;
}`)

	fns := functions(code)
	if len(fns) != 2 {
		t.Fatalf("got %d functions, want 2", len(fns))
	}
	for _, fn := range fns {
		if n := countOp(fn, "entry:"); n != 1 {
			t.Errorf("%s: %d entry labels, want 1", fn[0].Field(1), n)
		}
		if n := countOp(fn, "exit:"); n != 1 {
			t.Errorf("%s: %d exit labels, want 1", fn[0].Field(1), n)
		}
		returns := 0
		for _, inst := range fn {
			if strings.HasPrefix(inst.Op(), "return_") {
				returns++
			}
		}
		if returns != 1 {
			t.Errorf("%s: %d return instructions, want 1", fn[0].Field(1), returns)
		}
		assertBranchTargetsExist(t, fn)
	}
}

func assertBranchTargetsExist(t *testing.T, fn []ir.Instr) {
	t.Helper()
	for _, inst := range fn {
		var targets []string
		switch {
		case inst.Op() == "jump":
			targets = []string{inst.Field(1)}
		case inst.Op() == "cbranch":
			targets = []string{inst.Field(2), inst.Field(3)}
		}
		for _, target := range targets {
			label := strings.TrimPrefix(target, "%")
			if !hasLabel(fn, label) {
				t.Errorf("branch target %s has no label in function %s", target, fn[0].Field(1))
			}
		}
	}
}

func TestForLoopLabelNumbering(t *testing.T) {
	_, code := compile(t, `
int main() {
	int i;
	for (i = 0; i < 2; i = i + 1) print(i);
	for (i = 0; i < 2; i = i + 1) print(i);
	return 0;
}`)

	for _, label := range []string{
		"for.cond", "for.body", "for.end", "for.inc",
		"for.cond.1", "for.body.1", "for.end.1", "for.inc.1",
	} {
		if !hasLabel(code, label) {
			t.Errorf("label %s missing", label)
		}
	}
}

func TestLabelCountersResetPerFunction(t *testing.T) {
	_, code := compile(t, `
void f() { while (1 < 2) { break; } }
void g() { while (1 < 2) { break; } }
int main() { f(); g(); return 0; }`)

	fns := functions(code)
	for _, name := range []string{"@f", "@g"} {
		found := false
		for _, fn := range fns {
			if fn[0].Field(1) == name && hasLabel(fn, "while.cond") {
				found = true
			}
		}
		if !found {
			t.Errorf("%s should restart label numbering at while.cond", name)
		}
	}
}

func TestAssertLowering(t *testing.T) {
	prog, code := compile(t, "int main() { assert 1 == 1; return 0; }")

	var message string
	for _, inst := range prog.Text {
		if inst.Op() == "global_string" {
			message, _ = inst[2].(string)
		}
	}
	if !strings.HasPrefix(message, "assertion_fail on @ ") {
		t.Errorf("assert message %q, want assertion_fail prefix with a coordinate", message)
	}

	if countOp(code, "cbranch") != 1 {
		t.Fatal("assert should lower to one cbranch")
	}
	if !hasLabel(code, "assert.true") || !hasLabel(code, "assert.false") {
		t.Error("assert true/false labels missing")
	}

	// the false path prints the message and bails to the exit block
	var sawPrint, sawJumpExit bool
	inFalse := false
	for _, inst := range code {
		if inst.IsLabel() {
			inFalse = inst.LabelName() == "assert.false"
		}
		if inFalse && inst.Op() == "print_string" {
			sawPrint = true
		}
		if inFalse && inst.Op() == "jump" && inst.Field(1) == "%exit" {
			sawJumpExit = true
		}
	}
	if !sawPrint || !sawJumpExit {
		t.Error("assert false path should print the message and jump to %exit")
	}
}

func TestGlobalDeclarations(t *testing.T) {
	prog, code := compile(t, `
int g = 7;
int v[3] = {1, 2, 3};
int main() { print(g); return 0; }`)

	if len(prog.Text) != 2 {
		t.Fatalf("got %d prelude instructions, want 2", len(prog.Text))
	}
	if prog.Text[0].Op() != "global_int" || prog.Text[0].Field(1) != "@g" {
		t.Errorf("unexpected global: %v", prog.Text[0])
	}
	if prog.Text[1].Op() != "global_int_3" || prog.Text[1].Field(1) != "@v" {
		t.Errorf("unexpected array global: %v", prog.Text[1])
	}

	// globals come before any function code
	if !strings.HasPrefix(code[0].Op(), "global_") {
		t.Errorf("code starts with %s, want the global prelude", code[0].Op())
	}

	// uses of g address the global
	foundLoad := false
	for _, inst := range code {
		if inst.Op() == "load_int" && inst.Field(1) == "@g" {
			foundLoad = true
		}
	}
	if !foundLoad {
		t.Error("expected a load of @g")
	}
}

func TestParamRegistersRecorded(t *testing.T) {
	prog, _ := compile(t, "int add(int a, int b) { return a + b; } int main() { return add(1, 2); }")

	def := prog.GDecls[0].(*ast.FuncDef)
	if len(def.ParamRegs) != 2 || def.ParamRegs[0] != "%1" || def.ParamRegs[1] != "%2" {
		t.Errorf("param registers %v, want [%%1 %%2]", def.ParamRegs)
	}
	if def.ReturnReg != "%3" {
		t.Errorf("return slot %s, want %%3", def.ReturnReg)
	}
}

func TestShadowedVariableRenaming(t *testing.T) {
	_, code := compile(t, `
int main() {
	int x;
	x = 1;
	while (x < 2) {
		int x;
		x = 2;
	}
	return 0;
}`)

	sawOuter, sawInner := false, false
	for _, inst := range code {
		if inst.Op() == "alloc_int" && inst.Field(1) == "%x" {
			sawOuter = true
		}
		if inst.Op() == "alloc_int" && inst.Field(1) == "%x.2" {
			sawInner = true
		}
	}
	if !sawOuter || !sawInner {
		t.Errorf("shadowed declarations should allocate %%x and %%x.2 (outer=%v inner=%v)", sawOuter, sawInner)
	}
}
