package sema

import (
	"strings"
	"testing"

	"ucc/internal/parser"
	"ucc/internal/types"
	"ucc/internal/uerr"
)

// analyze parses and checks a program, returning the first diagnostic.
func analyze(t *testing.T, input string) error {
	t.Helper()
	prog, errs := parser.Parse(input)
	if len(errs) > 0 {
		t.Fatalf("parse failed: %v", errs)
	}
	return Check(prog)
}

func TestValidPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"minimal", "int main() { return 0; }"},
		{"void function", "void f() { print(1); } int main() { f(); return 0; }"},
		{"globals", "int g = 3; int main() { print(g); return 0; }"},
		{"shadowing in block", "int main() { int x; x = 1; { int x; x = 2; } return x; }"},
		{"for loop", "int main() { for (int i = 0; i < 3; i = i + 1) print(i); return 0; }"},
		{"while with break", "int main() { while (1 < 2) { break; } return 0; }"},
		{"arrays", "int main() { int v[2] = {1, 2}; print(v[0]); return 0; }"},
		{"call with args", "int add(int a, int b) { return a + b; } int main() { return add(1, 2); }"},
		{"assert", "int main() { assert 2 > 1; return 0; }"},
		{"bool ops", "int main() { bool b; b = true && !false; if (b) return 1; return 0; }"},
		{"char compare", "int main() { char c; c = 'a'; if (c == 'b') return 1; return 0; }"},
		{"string print", `int main() { print("hello"); return 0; }`},
		{"read targets", "int main() { int x; int v[2]; read(x, v[0]); return 0; }"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := analyze(t, test.input); err != nil {
				t.Errorf("unexpected diagnostic: %v", err)
			}
		})
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		code     int
		contains string
	}{
		{"undefined name", "int main() { x = 1; return 0; }", 1, "x is not defined"},
		{"bad subscript", "int main() { int v[2]; int b; b = v[true]; return 0; }", 2, "subscript must be of type(int)"},
		{"assert not bool", "int main() { assert 1; return 0; }", 3, "must be of type(bool)"},
		{"assign mismatch", "int main() { int a; a = 'c'; return 0; }", 4, "Cannot assign type(char) to type(int)"},
		{"binary mismatch", "int main() { int a; a = 1 + true; return 0; }", 5, "does not have matching LHS/RHS types"},
		{"binary unsupported", "int main() { char c; c = 'a' + 'b'; return 0; }", 6, "not supported by type(char)"},
		{"stray break", "int main() { break; return 0; }", 7, "inside a loop"},
		{"missing dimension", "int main() { int v[]; return 0; }", 8, "Array dimension mismatch"},
		{"zero dimension", "int main() { int v[0]; return 0; }", 8, "Array dimension mismatch"},
		{"string size mismatch", `int main() { char s[3] = "ab"; return 0; }`, 9, "Size mismatch on s initialization"},
		{"init type mismatch", "int main() { int a = 'x'; return 0; }", 10, "a initialization type mismatch"},
		{"scalar list init", "int main() { int a = {1}; return 0; }", 11, "must be a single element"},
		{"ragged init lists", "int main() { int m[2][2] = {{1, 2}, {3}}; return 0; }", 12, "Lists have different sizes"},
		{"short init list", "int main() { int v[3] = {1, 2}; return 0; }", 13, "List & variable have different sizes"},
		{"while cond not bool", "int main() { while (1) { print(); } return 0; }", 14, "conditional expression is type(int)"},
		{"call of non-function", "int main() { int f; f = 1; int x; x = f(); return 0; }", 15, "f is not a function"},
		{"arity mismatch", "int f(int a) { return a; } int main() { return f(); }", 16, "no. arguments to call f function mismatch"},
		{"arg type mismatch", "int f(int a) { return a; } int main() { return f(true); }", 17, "Type mismatch with parameter a"},
		{"if cond not bool", "int main() { if (1) return 1; return 0; }", 18, "condition expression must be of type(bool)"},
		{"non-constant init element", "int main() { int a; a = 1; int v[2] = {a, 2}; return 0; }", 19, "must be a constant"},
		{"print void call", "void f() { print(); } int main() { print(f()); return 0; }", 20, "not of basic type"},
		{"print whole array", "int main() { int v[2] = {1, 2}; print(v); return 0; }", 21, "v does not reference a variable of basic type"},
		{"read non-variable", "int main() { read(1); return 0; }", 22, "is not a variable"},
		{"return type mismatch", "int main() { return true; }", 23, "Return of type(bool) is incompatible with type(int)"},
		{"missing return", "int main() { int a; a = 1; }", 23, "Return of type(void) is incompatible with type(int)"},
		{"redeclaration", "int main() { int x; int x; return 0; }", 24, "Name x is already defined in this scope"},
		{"bad unary", "int main() { bool b; b = -true; return 0; }", 25, "Unary operator - is not supported"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := analyze(t, test.input)
			if err == nil {
				t.Fatal("expected a diagnostic, got none")
			}
			ucErr, ok := err.(*uerr.UCError)
			if !ok {
				t.Fatalf("got %T, want *uerr.UCError", err)
			}
			if ucErr.Code != test.code {
				t.Errorf("got diagnostic %d (%s), want %d", ucErr.Code, ucErr.Message, test.code)
			}
			if !strings.Contains(err.Error(), test.contains) {
				t.Errorf("message %q does not contain %q", err.Error(), test.contains)
			}
			if !strings.HasPrefix(err.Error(), "SemanticError: ") {
				t.Errorf("message %q is not prefixed with SemanticError", err.Error())
			}
		})
	}
}

func TestDiagnosticFormat(t *testing.T) {
	err := analyze(t, "int main() { int x; int x; return 0; }")
	if err == nil {
		t.Fatal("expected a diagnostic")
	}
	want := "SemanticError: Name x is already defined in this scope @ 1:25"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestSymbolTableScoping(t *testing.T) {
	st := NewSymbolTable()
	st.Add("a", types.IntType)

	st.Create()
	if st.Depth() != 2 {
		t.Fatalf("depth %d, want 2", st.Depth())
	}
	if st.LookupCurrentScope("a") != nil {
		t.Error("a should not be visible in the inner scope map")
	}
	if got := st.Lookup("b"); got != nil {
		t.Errorf("lookup of unknown name returned %v", got)
	}

	st.Pop()
	if st.Depth() != 1 {
		t.Fatalf("depth %d after pop, want 1", st.Depth())
	}
}
