// Package dataflow runs the intra-procedural optimizer. Each function's
// CFG is linearized into an indexed instruction vector; reaching
// definitions and live variables are iterated to fixed point over that
// vector, and the propagation/elimination passes rewrite it in place.
// Labels and branches carry all control-flow information, so the block
// structure is not consulted again until the final vector is appended to
// the program code list.
package dataflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/kr/pretty"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"ucc/internal/ast"
	"ucc/internal/ir"
)

type DataFlow struct {
	// Code is the optimized program: the global prelude followed by each
	// function's rewritten instruction vector.
	Code []ir.Instr

	debug bool
	out   io.Writer

	// reaching definitions
	rdGen  map[int][]int
	rdKill map[int][]int
	rdIn   map[int][]int
	rdOut  map[int][]int

	// live variables
	lvUse map[int][]string
	lvDef map[int][]string
	lvIn  map[int][]string
	lvOut map[int][]string

	definitions map[string][]int
	preds       map[int][]int
	succs       map[int][]int
	enumerated  []ir.Instr

	// registers constant propagation must not touch: the function's
	// parameter registers and its return slot, recorded at generation time
	blacklist []string
}

func New(debug bool, out io.Writer) *DataFlow {
	return &DataFlow{debug: debug, out: out}
}

// Run optimizes every function and returns the final flat code list.
func (d *DataFlow) Run(prog *ast.Program) []ir.Instr {
	d.Code = append([]ir.Instr{}, prog.Text...)

	for _, decl := range prog.GDecls {
		f, ok := decl.(*ast.FuncDef)
		if !ok {
			continue
		}
		d.reset()
		d.enumerate(f.CFG)

		d.coalesceGlobalLoads()

		d.BuildRDBlocks(f.CFG)
		d.computeRDGenKill()
		d.computeRDInOut()
		if d.debug {
			d.printRD(f.Decl.Name.Name)
		}

		d.blacklist = append([]string{}, f.ParamRegs...)
		if f.ReturnReg != "" {
			d.blacklist = append(d.blacklist, f.ReturnReg)
		}
		d.constantPropagation()

		d.BuildLVBlocks(f.CFG)
		d.computeLVUseDef()
		d.computeLVInOut()
		if d.debug {
			d.printLV(f.Decl.Name.Name)
		}
		d.deadcodeElimination()

		d.ShortCircuitJumps(f.CFG)
		d.MergeBlocks(f.CFG)
		d.DiscardUnusedAllocs(f.CFG)

		d.Code = append(d.Code, d.enumerated...)
	}
	return d.Code
}

func (d *DataFlow) reset() {
	d.rdGen = map[int][]int{}
	d.rdKill = map[int][]int{}
	d.rdIn = map[int][]int{}
	d.rdOut = map[int][]int{}
	d.lvUse = map[int][]string{}
	d.lvDef = map[int][]string{}
	d.lvIn = map[int][]string{}
	d.lvOut = map[int][]string{}
	d.definitions = map[string][]int{}
	d.preds = map[int][]int{}
	d.succs = map[int][]int{}
	d.enumerated = nil
	d.blacklist = nil
}

// enumerate flattens the CFG into the indexed vector by walking the
// next-block chain.
func (d *DataFlow) enumerate(cfg *ir.BasicBlock) {
	for block := cfg; block != nil; block = block.Next {
		d.enumerated = append(d.enumerated, block.Instrs...)
	}
}

func (d *DataFlow) findLabel(label string) int {
	for idx, inst := range d.enumerated {
		if inst.IsLabel() && inst.LabelName() == label {
			return idx
		}
	}
	return -1
}

// PREDECESSORS / SUCCESSORS

func (d *DataFlow) calculatePredecessors() {
	d.preds = map[int][]int{}
	d.preds[0] = nil

	for index := 1; index < len(d.enumerated); index++ {
		d.addEdge(d.preds, index, index-1)
	}
	for branchIdx, inst := range d.enumerated {
		switch {
		case strings.HasPrefix(inst.Op(), "jump"):
			if target := d.findLabel(strings.TrimPrefix(inst.Field(1), "%")); target >= 0 {
				d.addEdge(d.preds, target, branchIdx)
			}
		case inst.Op() == "cbranch":
			if target := d.findLabel(strings.TrimPrefix(inst.Field(2), "%")); target >= 0 {
				d.addEdge(d.preds, target, branchIdx)
			}
			if target := d.findLabel(strings.TrimPrefix(inst.Field(3), "%")); target >= 0 {
				d.addEdge(d.preds, target, branchIdx)
			}
		}
	}
}

func (d *DataFlow) calculateSuccessors() {
	d.succs = map[int][]int{}
	d.succs[len(d.enumerated)-1] = nil

	for index := 0; index < len(d.enumerated)-1; index++ {
		d.addEdge(d.succs, index, index+1)
	}
	for branchIdx, inst := range d.enumerated {
		switch {
		case strings.HasPrefix(inst.Op(), "jump"):
			if target := d.findLabel(strings.TrimPrefix(inst.Field(1), "%")); target >= 0 {
				d.addEdge(d.succs, branchIdx, target)
			}
		case inst.Op() == "cbranch":
			if target := d.findLabel(strings.TrimPrefix(inst.Field(2), "%")); target >= 0 {
				d.addEdge(d.succs, branchIdx, target)
			}
			if target := d.findLabel(strings.TrimPrefix(inst.Field(3), "%")); target >= 0 {
				d.addEdge(d.succs, branchIdx, target)
			}
		}
	}
}

func (d *DataFlow) addEdge(m map[int][]int, line, other int) {
	if !slices.Contains(m[line], other) {
		m[line] = append(m[line], other)
	}
}

// REACHING DEFINITIONS

// BuildRDBlocks is a declared extension point; the analysis works on the
// linear vector and needs no per-block precomputation.
func (d *DataFlow) BuildRDBlocks(cfg *ir.BasicBlock) {}

func (d *DataFlow) computeRDGenKill() {
	d.rdGen = map[int][]int{}
	d.rdKill = map[int][]int{}
	d.definitions = map[string][]int{}
	d.calculatePredecessors()

	for index, inst := range d.enumerated {
		if isSlotStore(inst) {
			varName := inst.Field(2)
			d.definitions[varName] = append(d.definitions[varName], index)
		}
	}

	for index, inst := range d.enumerated {
		if !isSlotStore(inst) {
			continue
		}
		d.rdGen[index] = []int{index}

		kill := []int{}
		for _, def := range d.definitions[inst.Field(2)] {
			if def != index {
				kill = append(kill, def)
			}
		}
		d.rdKill[index] = kill
	}
}

func (d *DataFlow) computeRDInOut() {
	d.rdIn = map[int][]int{}
	d.rdOut = map[int][]int{}

	for changed := true; changed; {
		changed = false

		for index := range d.enumerated {
			in := []int{}
			for _, pred := range d.preds[index] {
				for _, def := range d.rdOut[pred] {
					if !slices.Contains(in, def) {
						in = append(in, def)
					}
				}
			}
			if !slices.Equal(in, d.rdIn[index]) {
				d.rdIn[index] = in
				changed = true
			}
		}

		for index := range d.enumerated {
			out := append([]int{}, d.rdGen[index]...)
			for _, def := range d.rdIn[index] {
				if !slices.Contains(d.rdKill[index], def) && !slices.Contains(out, def) {
					out = append(out, def)
				}
			}
			if !slices.Equal(out, d.rdOut[index]) {
				d.rdOut[index] = out
				changed = true
			}
		}
	}
}

// isSlotStore reports whether inst stores to a named stack slot or a
// global. Stores through an element address (whose destination is a
// numbered temporary produced by elem_*) write an array cell the linear
// analysis cannot name; they are neither definitions nor removable.
func isSlotStore(inst ir.Instr) bool {
	if !strings.HasPrefix(inst.Op(), "store_") {
		return false
	}
	dst := inst.Field(2)
	if strings.HasPrefix(dst, "@") {
		return true
	}
	if !strings.HasPrefix(dst, "%") {
		return false
	}
	for _, c := range dst[1:] {
		if c < '0' || c > '9' {
			return true
		}
	}
	return false
}

// countLiveDefinitions counts how many stores of varName reach line.
func (d *DataFlow) countLiveDefinitions(varName string, line int) int {
	defs := d.definitions[varName]
	if len(defs) == 0 {
		return 0
	}
	count := 0
	for _, def := range defs {
		if slices.Contains(d.rdIn[line], def) {
			count++
		}
	}
	return count
}

// OPTIMIZATION PASSES

// coalesceGlobalLoads takes the first int load of each distinct global
// and removes the later loads of that global up to the next store of it,
// rewriting uses of their targets to the first load's target. Loads of
// the global after that store are left in place.
func (d *DataFlow) coalesceGlobalLoads() {
	seen := map[string]bool{}
	for index := 0; index < len(d.enumerated); index++ {
		inst := d.enumerated[index]
		if !strings.HasPrefix(inst.Op(), "load_int") {
			continue
		}
		globalName := inst.Field(1)
		if !strings.HasPrefix(globalName, "@") || seen[globalName] {
			continue
		}
		seen[globalName] = true
		d.removeSimilarLoads(index+1, globalName, inst.Field(2))
	}
}

func (d *DataFlow) constantPropagation() {
	current := 0
	for {
		removed := false

		for index := current; index < len(d.enumerated); index++ {
			inst := d.enumerated[index]
			if !strings.HasPrefix(inst.Op(), "load_") || strings.HasSuffix(inst.Op(), "_*") {
				continue
			}
			varName := inst.Field(1)
			if strings.HasPrefix(varName, "@") {
				continue
			}
			// more than one reaching definition: cannot propagate
			if d.countLiveDefinitions(varName, index) > 1 {
				continue
			}

			storeIdx := -1
			for _, defIdx := range d.rdIn[index] {
				if defIdx < index && d.enumerated[defIdx].Field(2) == varName {
					storeIdx = defIdx
				}
			}
			if storeIdx < 0 {
				continue
			}

			loadReg := inst.Field(2)
			storeReg := d.enumerated[storeIdx].Field(1)
			storeVar := d.enumerated[storeIdx].Field(2)
			if slices.Contains(d.blacklist, storeReg) || slices.Contains(d.blacklist, storeVar) {
				continue
			}

			d.replaceSubsequentRegisters(index, loadReg, storeReg)
			canRemoveStore := d.removeSimilarLoads(index+1, varName, storeReg)

			toRemove := []int{index}
			if canRemoveStore {
				toRemove = append(toRemove, storeIdx)
			}
			d.removeInstructions(toRemove)
			current = storeIdx
			removed = true
			break
		}

		d.computeRDGenKill()
		d.computeRDInOut()
		if !removed {
			return
		}
	}
}

// replaceSubsequentRegisters rewrites every use of from as to, starting
// at index start.
func (d *DataFlow) replaceSubsequentRegisters(start int, from, to string) {
	for idx := start; idx < len(d.enumerated); idx++ {
		inst := d.enumerated[idx]
		for field := range inst {
			if s, ok := inst[field].(string); ok && s == from {
				inst[field] = to
			}
		}
	}
}

// removeSimilarLoads drops later loads of varName until the next store of
// it, rewriting their targets to reg. It reports whether the originating
// store may be removed too.
func (d *DataFlow) removeSimilarLoads(start int, varName, reg string) bool {
	var loadsToRemove []int
	canRemoveStore := true

	for idx := start; idx < len(d.enumerated); idx++ {
		inst := d.enumerated[idx]

		if strings.HasPrefix(inst.Op(), "load_") {
			loadVar := inst.Field(1)
			if loadVar == varName {
				if d.countLiveDefinitions(loadVar, idx) > 1 {
					canRemoveStore = false
					break
				}
				loadsToRemove = append(loadsToRemove, idx)
				d.replaceSubsequentRegisters(idx+1, inst.Field(2), reg)
			}
		}

		if strings.HasPrefix(inst.Op(), "store_") && inst.Field(2) == varName {
			break
		}
	}

	d.removeInstructions(loadsToRemove)
	return canRemoveStore
}

func (d *DataFlow) removeInstructions(indices []int) {
	if len(indices) == 0 {
		return
	}
	drop := map[int]bool{}
	for _, idx := range indices {
		drop[idx] = true
	}
	kept := d.enumerated[:0]
	for idx, inst := range d.enumerated {
		if !drop[idx] {
			kept = append(kept, inst)
		}
	}
	d.enumerated = kept
}

// LIVE VARIABLES

// BuildLVBlocks is a declared extension point, like BuildRDBlocks.
func (d *DataFlow) BuildLVBlocks(cfg *ir.BasicBlock) {}

func (d *DataFlow) computeLVUseDef() {
	d.lvUse = map[int][]string{}
	d.lvDef = map[int][]string{}

	for index := len(d.enumerated) - 1; index >= 0; index-- {
		inst := d.enumerated[index]
		if isSlotStore(inst) {
			d.lvDef[index] = []string{inst.Field(2)}
		}
		switch {
		case strings.HasPrefix(inst.Op(), "load_"):
			d.lvUse[index] = []string{inst.Field(1)}
		case strings.HasPrefix(inst.Op(), "elem_"):
			// computing an element address reads the array slot
			d.lvUse[index] = []string{inst.Field(1)}
		case strings.HasPrefix(inst.Op(), "store_") && !isSlotStore(inst):
			// a store through an element address reads the address register
			d.lvUse[index] = []string{inst.Field(2)}
		}
	}
}

func (d *DataFlow) computeLVInOut() {
	d.lvIn = map[int][]string{}
	d.lvOut = map[int][]string{}
	d.calculateSuccessors()

	for changed := true; changed; {
		changed = false

		for index := len(d.enumerated) - 1; index >= 0; index-- {
			out := []string{}
			for _, succ := range d.succs[index] {
				for _, v := range d.lvIn[succ] {
					if !slices.Contains(out, v) {
						out = append(out, v)
					}
				}
			}
			if !slices.Equal(out, d.lvOut[index]) {
				d.lvOut[index] = out
				changed = true
			}

			in := append([]string{}, d.lvUse[index]...)
			for _, v := range out {
				if !slices.Contains(d.lvDef[index], v) && !slices.Contains(in, v) {
					in = append(in, v)
				}
			}
			if !slices.Equal(in, d.lvIn[index]) {
				d.lvIn[index] = in
				changed = true
			}
		}
	}
}

func (d *DataFlow) deadcodeElimination() {
	var toRemove []int

	keys := maps.Keys(d.lvDef)
	slices.Sort(keys)
	for _, index := range keys {
		for _, varName := range d.lvDef[index] {
			if !slices.Contains(d.lvOut[index], varName) {
				toRemove = append(toRemove, index)
			}
		}
	}

	d.removeInstructions(toRemove)
}

// CFG SIMPLIFICATION (extension points, deliberately no-ops)

func (d *DataFlow) ShortCircuitJumps(cfg *ir.BasicBlock)   {}
func (d *DataFlow) MergeBlocks(cfg *ir.BasicBlock)         {}
func (d *DataFlow) DiscardUnusedAllocs(cfg *ir.BasicBlock) {}

// DEBUG OUTPUT

func (d *DataFlow) printRD(fname string) {
	fmt.Fprintf(d.out, "Reach Definitions Analysis (%s): ==========\n", fname)
	pretty.Fprintf(d.out, "gen  %v\nkill %v\nin   %v\nout  %v\n", d.rdGen, d.rdKill, d.rdIn, d.rdOut)
	fmt.Fprintln(d.out, "======================================")
}

func (d *DataFlow) printLV(fname string) {
	fmt.Fprintf(d.out, "Liveness Variable Analysis (%s): ==========\n", fname)
	pretty.Fprintf(d.out, "use %v\ndef %v\nin  %v\nout %v\n", d.lvUse, d.lvDef, d.lvIn, d.lvOut)
	fmt.Fprintln(d.out, "======================================")
}

// PrintEnumerated dumps the current indexed vector, for debugging.
func (d *DataFlow) PrintEnumerated() {
	fmt.Fprintln(d.out, "Enumerated code: =====================")
	for idx, inst := range d.enumerated {
		fmt.Fprintln(d.out, idx, ir.Format(inst))
	}
	fmt.Fprintln(d.out, "======================================")
}
