package parser

import (
	"testing"

	"ucc/internal/ast"
)

// Test helper to parse a string and report errors.
func parseString(t *testing.T, input string) *ast.Program {
	t.Helper()
	prog, errs := Parse(input)
	if len(errs) > 0 {
		t.Fatalf("parsing failed: %v", errs)
	}
	return prog
}

func assertParseError(t *testing.T, input, description string) {
	t.Helper()
	if _, errs := Parse(input); len(errs) == 0 {
		t.Errorf("%s: expected parsing to fail but it succeeded", description)
	}
}

func TestParsePrograms(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		shouldPass bool
	}{
		{"empty main", "int main() { return 0; }", true},
		{"global declaration", "int g = 10; int main() { return 0; }", true},
		{"multiple declarators", "int main() { int a, b, c; return 0; }", true},
		{"array declaration", "int main() { int v[3]; return 0; }", true},
		{"matrix declaration", "int main() { int m[2][3]; return 0; }", true},
		{"init list", "int main() { int v[2] = {1, 2}; return 0; }", true},
		{"if else", "int main() { if (1 == 1) return 1; else return 2; }", true},
		{"while", "int main() { while (1 < 2) { break; } return 0; }", true},
		{"for with declaration", "int main() { for (int i = 0; i < 3; i = i + 1) print(i); return 0; }", true},
		{"function with params", "int add(int a, int b) { return a + b; }", true},
		{"prototype", "int add(int a, int b); int main() { return 0; }", true},
		{"assert", "int main() { assert 1 == 1; return 0; }", true},
		{"print list", "int main() { print(1, 2, 3); return 0; }", true},
		{"empty print", "int main() { print(); return 0; }", true},
		{"read", "int main() { int x; read(x); return 0; }", true},
		{"missing semicolon", "int main() { int a return 0; }", false},
		{"unbalanced paren", "int main() { print(1; return 0; }", false},
		{"bad top level", "return 0;", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, errs := Parse(test.input)
			if test.shouldPass && len(errs) > 0 {
				t.Errorf("parsing failed: %v", errs)
			}
			if !test.shouldPass && len(errs) == 0 {
				t.Error("expected parsing to fail but it succeeded")
			}
		})
	}
}

func TestParseFuncDefShape(t *testing.T) {
	prog := parseString(t, "int add(int a, int b) { return a + b; }")

	if len(prog.GDecls) != 1 {
		t.Fatalf("got %d top-level declarations, want 1", len(prog.GDecls))
	}
	def, ok := prog.GDecls[0].(*ast.FuncDef)
	if !ok {
		t.Fatalf("got %T, want *ast.FuncDef", prog.GDecls[0])
	}
	if def.Return.Name != "int" {
		t.Errorf("return type %s, want int", def.Return.Name)
	}
	fd, ok := def.Decl.Spec.(*ast.FuncDecl)
	if !ok {
		t.Fatalf("declarator is %T, want *ast.FuncDecl", def.Decl.Spec)
	}
	if len(fd.Params.Params) != 2 {
		t.Fatalf("got %d parameters, want 2", len(fd.Params.Params))
	}
	if fd.Params.Params[0].Name.Name != "a" || fd.Params.Params[1].Name.Name != "b" {
		t.Error("parameter names not preserved")
	}
}

func TestParsePrecedence(t *testing.T) {
	prog := parseString(t, "int main() { int x; x = 1 + 2 * 3; return 0; }")

	body := prog.GDecls[0].(*ast.FuncDef).Body
	assign, ok := body.Items[1].(*ast.Assignment)
	if !ok {
		t.Fatalf("got %T, want assignment", body.Items[1])
	}
	add, ok := assign.RValue.(*ast.BinaryOp)
	if !ok || add.Op != "+" {
		t.Fatalf("top of 1 + 2 * 3 should be +, got %v", assign.RValue)
	}
	mul, ok := add.Right.(*ast.BinaryOp)
	if !ok || mul.Op != "*" {
		t.Fatalf("right of + should be *, got %v", add.Right)
	}
}

func TestParseNestedArrayDecl(t *testing.T) {
	prog := parseString(t, "int main() { int m[2][3]; return 0; }")

	body := prog.GDecls[0].(*ast.FuncDef).Body
	decl := body.Items[0].(*ast.Decl)
	outer, ok := decl.Spec.(*ast.ArrayDecl)
	if !ok {
		t.Fatalf("got %T, want *ast.ArrayDecl", decl.Spec)
	}
	outerDim := outer.Dim.(*ast.Constant)
	if outerDim.Value != "2" {
		t.Errorf("outer dimension %s, want 2", outerDim.Value)
	}
	inner, ok := outer.Elem.(*ast.ArrayDecl)
	if !ok {
		t.Fatalf("inner is %T, want *ast.ArrayDecl", outer.Elem)
	}
	if inner.Dim.(*ast.Constant).Value != "3" {
		t.Errorf("inner dimension %s, want 3", inner.Dim.(*ast.Constant).Value)
	}
	if _, ok := inner.Elem.(*ast.VarDecl); !ok {
		t.Errorf("element is %T, want *ast.VarDecl", inner.Elem)
	}
}

func TestParseCoordinates(t *testing.T) {
	prog := parseString(t, "int main() {\n  int x;\n}")

	body := prog.GDecls[0].(*ast.FuncDef).Body
	decl := body.Items[0].(*ast.Decl)
	if decl.Name.Coord().Line != 2 || decl.Name.Coord().Col != 7 {
		t.Errorf("x declared at %s, want @ 2:7", decl.Name.Coord())
	}
}

func TestParseAssignmentTargets(t *testing.T) {
	assertParseError(t, "int main() { 1 = 2; return 0; }", "constant assignment target")
	parseString(t, "int main() { int v[2]; v[0] = 1; return 0; }")
}
