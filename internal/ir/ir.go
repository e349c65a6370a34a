// Package ir holds the uCIR instruction and basic-block model. An
// instruction is a positional tuple whose first field is the opcode;
// operands are register names (%k), label names (%label) or global
// names (@name). A label is the single-field tuple ("name:",).
package ir

import (
	"fmt"
	"strings"
)

// Instr is a three-address instruction tuple.
type Instr []interface{}

// Op returns the opcode field.
func (i Instr) Op() string {
	if len(i) == 0 {
		return ""
	}
	op, _ := i[0].(string)
	return op
}

// IsLabel reports whether the tuple is a block-entry label.
func (i Instr) IsLabel() bool {
	op := i.Op()
	return len(i) == 1 && strings.HasSuffix(op, ":")
}

// LabelName returns the label without the trailing colon, or "" if the
// instruction is not a label.
func (i Instr) LabelName() string {
	if !i.IsLabel() {
		return ""
	}
	return strings.TrimSuffix(i.Op(), ":")
}

// Field returns field k as a string, or "" when absent or not a string.
func (i Instr) Field(k int) string {
	if k >= len(i) {
		return ""
	}
	s, _ := i[k].(string)
	return s
}

// ParamPair is one (type, register) entry of a define instruction.
type ParamPair struct {
	Typename string
	Reg      string
}

func formatOperand(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []ParamPair:
		parts := make([]string, len(x))
		for k, p := range x {
			parts[k] = fmt.Sprintf("(%s, %s)", p.Typename, p.Reg)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []interface{}:
		parts := make([]string, len(x))
		for k, e := range x {
			parts[k] = formatOperand(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Format renders one instruction the way the IR dump prints it: labels
// and define/global lines flush left, everything else indented.
func Format(inst Instr) string {
	if inst.IsLabel() {
		return inst.Op()
	}
	parts := make([]string, len(inst))
	for k, f := range inst {
		parts[k] = formatOperand(f)
	}
	line := strings.Join(parts, " ")
	op := inst.Op()
	if strings.HasPrefix(op, "define_") || strings.HasPrefix(op, "global_") {
		return line
	}
	return "  " + line
}

// FormatCode renders a whole instruction list, one per line.
func FormatCode(code []Instr) string {
	var sb strings.Builder
	for _, inst := range code {
		sb.WriteString(Format(inst))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// BasicBlock is a labelled straight-line instruction sequence. Blocks are
// chained by Next in emission order; Preds holds control-flow
// predecessors. Condition blocks additionally record their Taken and
// FallThrough branches for CFG rendering.
type BasicBlock struct {
	Label  string
	Instrs []Instr
	Next   *BasicBlock
	Preds  []*BasicBlock

	// Condition blocks only.
	Taken       *BasicBlock
	FallThrough *BasicBlock
}

func NewBasicBlock(label string) *BasicBlock {
	return &BasicBlock{Label: label}
}

// NewConditionBlock creates a block whose terminating cbranch selects
// between the Taken and FallThrough children (set by the generator).
func NewConditionBlock(label string) *BasicBlock {
	return &BasicBlock{Label: label}
}

func (b *BasicBlock) Append(inst Instr) {
	b.Instrs = append(b.Instrs, inst)
}

func (b *BasicBlock) AddPredecessor(p *BasicBlock) {
	b.Preds = append(b.Preds, p)
}

// EmitBlocks walks the Next chain from entry and concatenates every
// block's instructions into a single linear vector.
func EmitBlocks(entry *BasicBlock) []Instr {
	var code []Instr
	for block := entry; block != nil; block = block.Next {
		code = append(code, block.Instrs...)
	}
	return code
}
