package yk

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/jitmod"
)

// DebugIRStage identifies a point in the JIT pipeline at which IR can be
// dumped.
type DebugIRStage int

const (
	// StageAOT dumps the AOT module as loaded.
	StageAOT DebugIRStage = iota
	// StageJITPreOpt dumps the compiled trace before cleanup.
	StageJITPreOpt
	// StageJITPreOptSBS dumps the compiled trace side by side with the
	// AOT instructions it was cloned from.
	StageJITPreOptSBS
	// StageJITPostOpt dumps the compiled trace as handed to the backend.
	StageJITPostOpt

	numDebugIRStages
)

// PrintIREnvVar lists the stages to dump, comma-separated.
const PrintIREnvVar = "YKD_PRINT_IR"

func (s DebugIRStage) String() string {
	switch s {
	case StageAOT:
		return "aot"
	case StageJITPreOpt:
		return "jit-pre-opt"
	case StageJITPreOptSBS:
		return "jit-pre-opt-sbs"
	case StageJITPostOpt:
		return "jit-post-opt"
	default:
		panic(int(s))
	}
}

// DebugIRPrinter dumps IR at the stages selected by the YKD_PRINT_IR
// environment variable. Dumps go to standard error, bracketed by begin/end
// markers so tests can anchor matches to a specific stage.
type DebugIRPrinter struct {
	toPrint [numDebugIRStages]bool
	out     io.Writer
}

// NewDebugIRPrinter parses YKD_PRINT_IR. Unknown stage names are an error.
func NewDebugIRPrinter() (*DebugIRPrinter, error) {
	p := &DebugIRPrinter{out: os.Stderr}
	env := os.Getenv(PrintIREnvVar)
	if env == "" {
		return p, nil
	}
	for _, val := range strings.Split(env, ",") {
		switch val {
		case "aot":
			p.toPrint[StageAOT] = true
		case "jit-pre-opt":
			p.toPrint[StageJITPreOpt] = true
		case "jit-pre-opt-sbs":
			p.toPrint[StageJITPreOptSBS] = true
		case "jit-post-opt":
			p.toPrint[StageJITPostOpt] = true
		default:
			return nil, fmt.Errorf("invalid parameter for %s: '%s'", PrintIREnvVar, val)
		}
	}
	return p, nil
}

// PrintModule dumps m if the given stage was requested.
func (p *DebugIRPrinter) PrintModule(stage DebugIRStage, m *ir.Module) {
	if !p.toPrint[stage] {
		return
	}
	fmt.Fprintf(p.out, "--- Begin %s ---\n", stage)
	io.WriteString(p.out, m.String())
	fmt.Fprintf(p.out, "--- End %s ---\n", stage)
}

// PrintSBS dumps the compiled trace's instructions side by side with the AOT
// instructions they were cloned from, if the stage was requested. A scope
// header is printed whenever the AOT function changes, and a location header
// whenever the debug location changes.
func (p *DebugIRPrinter) PrintSBS(ct *jitmod.CompiledTrace) {
	if !p.toPrint[StageJITPreOptSBS] {
		return
	}
	jitFunc := ct.Func()
	jf := ir.NewFunctionFormatter(jitFunc)

	// Find the longest line in the trace column so the AOT column lines
	// up.
	longest := len("Trace")
	for _, bb := range jitFunc.Blocks {
		for _, inst := range bb.Instrs {
			if n := len(jf.Instruction(inst)); n > longest {
				longest = n
			}
		}
	}

	fmt.Fprintf(p.out, "\n\n--- Begin trace dump for %s ---\n", ct.Name)
	fmt.Fprintf(p.out, "Trace%s  | AOT\n", strings.Repeat(" ", longest-len("Trace")))

	aotFormatters := make(map[*ir.Function]*ir.FunctionFormatter)
	lastAOTFunc := ""
	var lastLoc *ir.DebugLoc
	for _, bb := range jitFunc.Blocks {
		for _, inst := range bb.Instrs {
			jitLine := jf.Instruction(inst)
			aotInst := ct.AOTSource(inst)
			if aotInst == nil {
				// Synthesized, not cloned; print it in the trace
				// column only.
				fmt.Fprintf(p.out, "%s\n", jitLine)
				continue
			}
			aotFunc := aotInst.Parent().Parent()
			if aotFunc.Name != lastAOTFunc {
				fmt.Fprintf(p.out, "# %s()\n", aotFunc.Name)
				lastAOTFunc = aotFunc.Name
			}
			if loc := inst.DebugLoc(); loc != lastLoc {
				if loc != nil {
					fmt.Fprintf(p.out, "# %s\n", loc)
				}
				lastLoc = loc
			}
			af, ok := aotFormatters[aotFunc]
			if !ok {
				af = ir.NewFunctionFormatter(aotFunc)
				aotFormatters[aotFunc] = af
			}
			pad := strings.Repeat(" ", longest-len(jitLine))
			fmt.Fprintf(p.out, "%s%s  |  %s\n", jitLine, pad, af.Instruction(aotInst))
		}
	}
	fmt.Fprintf(p.out, "--- End trace dump for %s ---\n", ct.Name)
}
