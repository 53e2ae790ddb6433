package dataflow

import (
	"testing"

	"tacopt/internal/cfg"
	"tacopt/internal/ir"
)

// varSet is a toy Fact used only to exercise the solver: a set of live
// variable names.
type varSet map[string]bool

func (s varSet) Equal(o Fact) bool {
	other, ok := o.(varSet)
	if !ok || len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other[k] {
			return false
		}
	}
	return true
}

func unionMerge(neighbors []Fact) Fact {
	out := varSet{}
	for _, n := range neighbors {
		for k := range n.(varSet) {
			out[k] = true
		}
	}
	return out
}

func livenessTransfer(in Fact, block *cfg.Block, _ int) Fact {
	out := varSet{}
	for k := range in.(varSet) {
		out[k] = true
	}
	for i := len(block.Instrs) - 1; i >= 0; i-- {
		instr := block.Instrs[i]
		if instr.HasDest {
			delete(out, instr.Dest)
		}
		for _, a := range instr.Args {
			out[a] = true
		}
	}
	return out
}

func constInstr(dest string, v int64) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpConst, HasDest: true, Dest: dest, Type: ir.PrimType("int"), HasValue: true, Value: v}
}
func addInstr(dest, a, b string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpAdd, HasDest: true, Dest: dest, Type: ir.PrimType("int"), Args: []string{a, b}}
}
func printInstr(arg string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpPrint, Args: []string{arg}}
}
func ret() *ir.Instr { return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpRet} }

// entry: a = const 1; br cond then else
// then:  print a; ret
// else:  ret
//
// "a" is live out of entry (into then) but not live anywhere past then's
// print, and entry's own live-out set should mention a while else's
// live-in set should not.
func TestSolve_BackwardLiveness(t *testing.T) {
	instrs := []*ir.Instr{
		ir.NewLabel("entry"),
		constInstr("a", 1),
		constInstr("cond", 1),
		&ir.Instr{Kind: ir.KindEffect, Op: ir.OpBr, Labels: []string{"then", "else"}},
		ir.NewLabel("then"),
		printInstr("a"),
		ret(),
		ir.NewLabel("else"),
		ret(),
	}
	blocks, labelIndex := cfg.Split(instrs)
	g, err := cfg.Build("f", blocks, labelIndex)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	result := Solve(g, Analysis{
		Direction: Backward,
		Init:      func() Fact { return varSet{} },
		Merge:     unionMerge,
		Transfer:  livenessTransfer,
	})

	entryOut := result.Out[0].(varSet)
	if !entryOut["a"] {
		t.Errorf("a should be live out of entry (used in then), got %v", entryOut)
	}
	elseIn := result.In[2].(varSet)
	if len(elseIn) != 0 {
		t.Errorf("else never uses anything, live-in should be empty, got %v", elseIn)
	}
}

func TestSolve_DeadBlockStaysEmpty(t *testing.T) {
	instrs := []*ir.Instr{
		constInstr("x", 5),
		ret(),
	}
	blocks, labelIndex := cfg.Split(instrs)
	g, err := cfg.Build("f", blocks, labelIndex)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	result := Solve(g, Analysis{
		Direction: Backward,
		Init:      func() Fact { return varSet{} },
		Merge:     unionMerge,
		Transfer:  livenessTransfer,
	})
	if len(result.Out[0].(varSet)) != 0 {
		t.Errorf("x is never used, out-facts should be empty, got %v", result.Out[0])
	}
}
