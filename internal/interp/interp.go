// Package interp executes a flat uCIR instruction list. Registers and
// stack slots live in a per-frame map; globals are shared. The dispatch
// loop walks the vector directly, resolving labels once per call.
package interp

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/pkg/errors"

	"ucc/internal/ir"
	"ucc/internal/uerr"
)

type Interpreter struct {
	In       io.Reader
	Out      io.Writer
	DebugOut io.Writer
	Debug    bool

	code    []ir.Instr
	globals map[string]interface{}
	funcs   map[string]int

	executed int
}

func New(debug bool) *Interpreter {
	return &Interpreter{
		In:       os.Stdin,
		Out:      os.Stdout,
		DebugOut: os.Stderr,
		Debug:    debug,
	}
}

// elemRef is the value of an elem_* instruction: an addressable array cell.
type elemRef struct {
	arr []interface{}
	idx int
}

type frame struct {
	regs map[string]interface{}
}

// Run loads globals, resolves function entry points and executes @main.
func (i *Interpreter) Run(code []ir.Instr) error {
	i.code = code
	i.globals = map[string]interface{}{}
	i.funcs = map[string]int{}
	i.executed = 0

	for idx, inst := range code {
		op := inst.Op()
		switch {
		case strings.HasPrefix(op, "global_"):
			i.loadGlobal(inst)
		case strings.HasPrefix(op, "define_"):
			name := strings.TrimPrefix(inst.Field(1), "@")
			i.funcs[name] = idx
		}
	}

	if _, ok := i.funcs["main"]; !ok {
		return uerr.New(uerr.RuntimeError, "no main function", "")
	}
	_, err := i.call("main", nil)
	if err != nil {
		return err
	}

	if i.Debug {
		fmt.Fprintf(i.DebugOut, "executed %s instructions\n", humanize.Comma(int64(i.executed)))
		pretty.Fprintf(i.DebugOut, "globals after run: %v\n", i.globals)
	}
	return nil
}

func (i *Interpreter) loadGlobal(inst ir.Instr) {
	name := strings.TrimPrefix(inst.Field(1), "@")
	suffix := strings.TrimPrefix(inst.Op(), "global_")

	if strings.Contains(suffix, "_") {
		// dimensioned array data
		var flat []interface{}
		if len(inst) > 2 {
			flat = flatten(inst[2])
		}
		i.globals[name] = flat
		return
	}
	if len(inst) > 2 {
		i.globals[name] = inst[2]
		return
	}
	i.globals[name] = zeroValue(suffix)
}

func flatten(v interface{}) []interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return []interface{}{v}
	}
	var out []interface{}
	for _, e := range list {
		if sub, nested := e.([]interface{}); nested {
			out = append(out, flatten(sub)...)
		} else {
			out = append(out, e)
		}
	}
	return out
}

func zeroValue(typename string) interface{} {
	switch typename {
	case "int":
		return 0
	case "bool":
		return false
	default:
		return ""
	}
}

// call executes the function named name with the given argument values.
func (i *Interpreter) call(name string, args []interface{}) (interface{}, error) {
	defIdx, ok := i.funcs[name]
	if !ok {
		return nil, uerr.New(uerr.RuntimeError, fmt.Sprintf("call of undefined function %s", name), "")
	}
	def := i.code[defIdx]

	f := &frame{regs: map[string]interface{}{}}
	var params []ir.ParamPair
	if len(def) > 2 {
		params, _ = def[2].([]ir.ParamPair)
	}
	if len(args) != len(params) {
		return nil, uerr.New(uerr.RuntimeError,
			fmt.Sprintf("%s expects %d arguments, got %d", name, len(params), len(args)), "")
	}
	for k, p := range params {
		f.regs[p.Reg] = args[k]
	}

	labels := map[string]int{}
	end := len(i.code)
	for idx := defIdx + 1; idx < len(i.code); idx++ {
		if strings.HasPrefix(i.code[idx].Op(), "define_") {
			end = idx
			break
		}
		if i.code[idx].IsLabel() {
			labels[i.code[idx].LabelName()] = idx
		}
	}

	var pending []interface{}
	pc := defIdx + 1
	for pc < end {
		inst := i.code[pc]
		i.executed++
		if i.Debug {
			fmt.Fprintf(i.DebugOut, "[%d] %s\n", pc, ir.Format(inst))
		}

		if inst.IsLabel() {
			pc++
			continue
		}

		op := inst.Op()
		verb, suffix := splitOpcode(op)

		switch verb {
		case "alloc":
			f.regs[inst.Field(1)] = allocValue(suffix)

		case "store":
			val, err := i.value(f, inst.Field(1))
			if err != nil {
				return nil, err
			}
			if err := i.storeTo(f, inst.Field(2), val); err != nil {
				return nil, err
			}

		case "load":
			val, err := i.value(f, inst.Field(1))
			if err != nil {
				return nil, err
			}
			if strings.HasSuffix(op, "_*") {
				ref, isRef := val.(elemRef)
				if !isRef {
					return nil, uerr.Internal("indirect load of non-address value at %d", pc)
				}
				if ref.idx < 0 || ref.idx >= len(ref.arr) {
					return nil, uerr.New(uerr.RuntimeError, fmt.Sprintf("index %d out of bounds", ref.idx), "")
				}
				val = ref.arr[ref.idx]
			}
			f.regs[inst.Field(2)] = val

		case "literal":
			f.regs[inst.Field(2)] = inst[1]

		case "elem":
			base, err := i.value(f, inst.Field(1))
			if err != nil {
				return nil, err
			}
			arr, isArr := base.([]interface{})
			if !isArr {
				// char arrays initialized from a string literal hold the
				// literal itself; expand it into cells
				s, isStr := base.(string)
				if !isStr {
					return nil, uerr.Internal("elem on non-array operand at %d", pc)
				}
				arr = make([]interface{}, len(s))
				for k, c := range []byte(s) {
					arr[k] = string(c)
				}
			}
			idxVal, err := i.value(f, inst.Field(2))
			if err != nil {
				return nil, err
			}
			n, isInt := idxVal.(int)
			if !isInt {
				return nil, uerr.Internal("non-integer subscript at %d", pc)
			}
			f.regs[inst.Field(3)] = elemRef{arr: arr, idx: n}

		case "jump":
			target, ok := labels[strings.TrimPrefix(inst.Field(1), "%")]
			if !ok {
				return nil, uerr.Internal("jump to unresolved label %s", inst.Field(1))
			}
			pc = target
			continue

		case "cbranch":
			condVal, err := i.value(f, inst.Field(1))
			if err != nil {
				return nil, err
			}
			cond, isBool := condVal.(bool)
			if !isBool {
				return nil, uerr.Internal("cbranch on non-bool value at %d", pc)
			}
			labelField := inst.Field(2)
			if !cond {
				labelField = inst.Field(3)
			}
			target, ok := labels[strings.TrimPrefix(labelField, "%")]
			if !ok {
				return nil, uerr.Internal("cbranch to unresolved label %s", labelField)
			}
			pc = target
			continue

		case "param":
			val, err := i.value(f, inst.Field(1))
			if err != nil {
				return nil, err
			}
			pending = append(pending, val)

		case "call":
			callee := strings.TrimPrefix(inst.Field(1), "@")
			ret, err := i.call(callee, pending)
			if err != nil {
				return nil, err
			}
			pending = nil
			if suffix != "void" {
				f.regs[inst.Field(2)] = ret
			}

		case "return":
			if suffix == "void" {
				return nil, nil
			}
			return i.value(f, inst.Field(1))

		case "print":
			if err := i.print(f, suffix, inst); err != nil {
				return nil, err
			}

		case "read":
			if err := i.read(f, suffix, inst.Field(1)); err != nil {
				return nil, err
			}

		case "add", "sub", "mul", "div", "mod", "and", "or", "not",
			"eq", "ne", "lt", "le", "gt", "ge":
			if err := i.operate(f, verb, inst); err != nil {
				return nil, err
			}

		default:
			return nil, uerr.Internal("unknown opcode %q at %d", op, pc)
		}
		pc++
	}

	return nil, nil
}

func splitOpcode(op string) (string, string) {
	if idx := strings.Index(op, "_"); idx >= 0 {
		return op[:idx], op[idx+1:]
	}
	return op, ""
}

func allocValue(suffix string) interface{} {
	parts := strings.Split(suffix, "_")
	if len(parts) == 1 {
		return zeroValue(suffix)
	}
	size := 1
	for _, dim := range parts[1:] {
		n := 0
		fmt.Sscanf(dim, "%d", &n)
		if n > 0 {
			size *= n
		}
	}
	arr := make([]interface{}, size)
	for k := range arr {
		arr[k] = zeroValue(parts[0])
	}
	return arr
}

func (i *Interpreter) value(f *frame, operand string) (interface{}, error) {
	switch {
	case strings.HasPrefix(operand, "@"):
		v, ok := i.globals[strings.TrimPrefix(operand, "@")]
		if !ok {
			return nil, uerr.Internal("undefined global %s", operand)
		}
		return v, nil
	case strings.HasPrefix(operand, "%"):
		v, ok := f.regs[operand]
		if !ok {
			return nil, uerr.Internal("read of undefined register %s", operand)
		}
		return v, nil
	}
	return nil, uerr.Internal("malformed operand %q", operand)
}

// storeTo writes val to dst: through an element reference when the
// destination register holds one, to a global, or to a frame slot. Array
// sources (constant-pool initializers) are copied, not aliased.
func (i *Interpreter) storeTo(f *frame, dst string, val interface{}) error {
	if src, isArr := val.([]interface{}); isArr {
		val = append([]interface{}{}, src...)
	}
	if strings.HasPrefix(dst, "@") {
		i.globals[strings.TrimPrefix(dst, "@")] = val
		return nil
	}
	if ref, isRef := f.regs[dst].(elemRef); isRef {
		if ref.idx < 0 || ref.idx >= len(ref.arr) {
			return uerr.New(uerr.RuntimeError, fmt.Sprintf("index %d out of bounds", ref.idx), "")
		}
		ref.arr[ref.idx] = val
		return nil
	}
	f.regs[dst] = val
	return nil
}

func (i *Interpreter) print(f *frame, suffix string, inst ir.Instr) error {
	if suffix == "void" || len(inst) < 2 {
		fmt.Fprintln(i.Out)
		return nil
	}
	val, err := i.value(f, inst.Field(1))
	if err != nil {
		return err
	}
	switch v := val.(type) {
	case bool:
		if v {
			fmt.Fprint(i.Out, "true")
		} else {
			fmt.Fprint(i.Out, "false")
		}
	default:
		fmt.Fprint(i.Out, v)
	}
	return nil
}

func (i *Interpreter) read(f *frame, suffix, dst string) error {
	var val interface{}
	switch suffix {
	case "int":
		var n int
		if _, err := fmt.Fscan(i.In, &n); err != nil {
			return errors.Wrap(err, "read_int")
		}
		val = n
	case "bool":
		var b bool
		if _, err := fmt.Fscan(i.In, &b); err != nil {
			return errors.Wrap(err, "read_bool")
		}
		val = b
	default:
		var s string
		if _, err := fmt.Fscan(i.In, &s); err != nil {
			return errors.Wrap(err, "read_"+suffix)
		}
		if suffix == "char" && len(s) > 0 {
			s = s[:1]
		}
		val = s
	}
	return i.storeTo(f, dst, val)
}

func (i *Interpreter) operate(f *frame, verb string, inst ir.Instr) error {
	left, err := i.value(f, inst.Field(1))
	if err != nil {
		return err
	}

	// unary not has two operands: source and destination
	if verb == "not" {
		b, isBool := left.(bool)
		if !isBool {
			return uerr.Internal("not on non-bool operand")
		}
		f.regs[inst.Field(2)] = !b
		return nil
	}

	right, err := i.value(f, inst.Field(2))
	if err != nil {
		return err
	}
	dst := inst.Field(3)

	switch verb {
	case "and", "or":
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return uerr.Internal("%s on non-bool operands", verb)
		}
		if verb == "and" {
			f.regs[dst] = lb && rb
		} else {
			f.regs[dst] = lb || rb
		}
		return nil
	case "eq":
		f.regs[dst] = left == right
		return nil
	case "ne":
		f.regs[dst] = left != right
		return nil
	}

	if ls, isStr := left.(string); isStr {
		rs, _ := right.(string)
		switch verb {
		case "add":
			f.regs[dst] = ls + rs
		case "lt":
			f.regs[dst] = ls < rs
		case "le":
			f.regs[dst] = ls <= rs
		case "gt":
			f.regs[dst] = ls > rs
		case "ge":
			f.regs[dst] = ls >= rs
		default:
			return uerr.Internal("%s is not defined on strings", verb)
		}
		return nil
	}

	ln, lok := left.(int)
	rn, rok := right.(int)
	if !lok || !rok {
		return uerr.Internal("%s on mismatched operands %T/%T", verb, left, right)
	}
	switch verb {
	case "add":
		f.regs[dst] = ln + rn
	case "sub":
		f.regs[dst] = ln - rn
	case "mul":
		f.regs[dst] = ln * rn
	case "div":
		if rn == 0 {
			return uerr.New(uerr.RuntimeError, "division by zero", "")
		}
		f.regs[dst] = ln / rn
	case "mod":
		if rn == 0 {
			return uerr.New(uerr.RuntimeError, "division by zero", "")
		}
		f.regs[dst] = ln % rn
	case "lt":
		f.regs[dst] = ln < rn
	case "le":
		f.regs[dst] = ln <= rn
	case "gt":
		f.regs[dst] = ln > rn
	case "ge":
		f.regs[dst] = ln >= rn
	}
	return nil
}
