// Command ucc compiles a uC source file to uCIR, optimizes it and runs
// the result on the uCIR interpreter.
//
// Usage: ucc [flags] input_file
//
// Stdout receives IR dumps and program output; stderr receives semantic
// errors and the speedup line. Exit code is 0 on success, 1 on a missing
// input file or a compilation error.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"ucc/internal/ast"
	"ucc/internal/codegen"
	"ucc/internal/dataflow"
	"ucc/internal/interp"
	"ucc/internal/ir"
	"ucc/internal/parser"
	"ucc/internal/sema"
)

func main() {
	printIR := flag.Bool("ir", false, "print uCIR generated from input_file")
	printOpt := flag.Bool("opt", false, "print optimized uCIR generated from input_file")
	viewCFG := flag.Bool("cfg", false, "write the CFG of each function as Graphviz dot files")
	debug := flag.Bool("debug", false, "run the interpreter in debug mode")
	speedup := flag.Bool("speedup", true, "show speedup of the optimized uCIR on stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ucc [flags] input_file")
		flag.PrintDefaults()
		os.Exit(1)
	}
	inputFile := flag.Arg(0)

	source, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Input", inputFile, "not found")
		os.Exit(1)
	}

	prog, parseErrs := parser.Parse(string(source))
	if len(parseErrs) > 0 {
		for _, e := range parseErrs {
			reportError(e)
		}
		os.Exit(1)
	}

	if err := sema.Check(prog); err != nil {
		reportError(err)
		os.Exit(1)
	}

	gencode := codegen.Generate(prog)
	if *printIR {
		fmt.Println("Generated uCIR: --------")
		fmt.Print(ir.FormatCode(gencode))
		fmt.Println("------------------------")
		fmt.Println()
	}
	if *viewCFG {
		writeCFGs(prog, "")
	}

	opt := dataflow.New(*debug, os.Stderr)
	optcode := opt.Run(prog)
	if *printOpt {
		fmt.Println("Optimized uCIR: --------")
		fmt.Print(ir.FormatCode(optcode))
		fmt.Println("------------------------")
		fmt.Println()
	}
	if *viewCFG {
		writeCFGs(prog, ".opt")
	}

	if *speedup {
		ratio := float64(len(gencode)) / float64(len(optcode))
		fmt.Fprintf(os.Stderr, "[SPEEDUP] Default: %d Optimized: %d Speedup: %.2f\n\n",
			len(gencode), len(optcode), ratio)
	}

	vm := interp.New(*debug)
	if err := vm.Run(optcode); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func reportError(err error) {
	msg := err.Error()
	if isatty.IsTerminal(os.Stderr.Fd()) {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	fmt.Fprintln(os.Stderr, msg)
}

func writeCFGs(prog *ast.Program, suffix string) {
	for _, decl := range prog.GDecls {
		f, ok := decl.(*ast.FuncDef)
		if !ok {
			continue
		}
		name := f.Decl.Name.Name
		path := name + suffix + ".dot"
		out, err := os.Create(path)
		if err != nil {
			reportError(errors.Wrapf(err, "cannot write %s", path))
			continue
		}
		if err := ir.WriteDot(out, name+suffix, f.CFG); err != nil {
			reportError(errors.Wrapf(err, "cannot render %s", path))
		}
		out.Close()
	}
}
