package driver

import (
	"context"
	"strings"
	"testing"

	"tacopt/internal/ir"
)

func constInstr(dest string, v int64) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpConst, HasDest: true, Dest: dest, Type: ir.PrimType("int"), HasValue: true, Value: v}
}
func printInstr(arg string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpPrint, Args: []string{arg}}
}
func ret() *ir.Instr { return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpRet} }

func TestRunNamed_AppliesPassesInOrderAcrossFunctions(t *testing.T) {
	prog := &ir.Program{Functions: []*ir.Function{
		{Name: "f", Instrs: []*ir.Instr{
			constInstr("dead", 1),
			constInstr("a", 2),
			printInstr("a"),
			ret(),
		}},
		{Name: "g", Instrs: []*ir.Instr{
			constInstr("x", 7),
			printInstr("x"),
			ret(),
		}},
	}}

	if err := RunNamed(context.Background(), prog, []string{"trivial-dce"}); err != nil {
		t.Fatalf("RunNamed: %v", err)
	}

	f := prog.Functions[0]
	for _, instr := range f.Instrs {
		if instr.HasDest && instr.Dest == "dead" {
			t.Fatalf("dead const should have been removed from f, got %+v", f.Instrs)
		}
	}
	g := prog.Functions[1]
	if len(g.Instrs) != 3 {
		t.Errorf("g has nothing dead, expected all 3 instructions to survive, got %+v", g.Instrs)
	}
}

func TestRunNamed_UnknownPassIsAnError(t *testing.T) {
	prog := &ir.Program{Functions: []*ir.Function{{Name: "f", Instrs: []*ir.Instr{ret()}}}}
	err := RunNamed(context.Background(), prog, []string{"not-a-real-pass"})
	if err == nil {
		t.Fatal("expected an error for an unregistered pass name")
	}
}

func TestNames_IncludesEveryRegisteredPass(t *testing.T) {
	want := map[string]bool{
		"trivial-dce": true, "local-dce": true, "liveness-dce": true,
		"lvn": true, "dse": true, "licm": true, "const-prop": true, "ssa": true,
	}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d pass names, got %d: %v", len(want), len(got), got)
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected pass name %q", n)
		}
	}
}

func addInstr(dest, a, b string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpAdd, HasDest: true, Dest: dest, Type: ir.PrimType("int"), Args: []string{a, b}}
}

func TestConstPropPass_RewritesFoldableChainToConst(t *testing.T) {
	prog := &ir.Program{Functions: []*ir.Function{{Name: "f", Instrs: []*ir.Instr{
		constInstr("a", 2),
		constInstr("b", 3),
		addInstr("c", "a", "b"),
		printInstr("c"),
		ret(),
	}}}}
	if err := RunNamed(context.Background(), prog, []string{"const-prop"}); err != nil {
		t.Fatalf("RunNamed const-prop: %v", err)
	}
	fn := prog.Functions[0]
	var c *ir.Instr
	for _, instr := range fn.Instrs {
		if instr.HasDest && instr.Dest == "c" {
			c = instr
		}
	}
	if c == nil || c.Op != ir.OpConst || !c.HasValue {
		t.Fatalf("c = a + b should be rewritten to a const, got %+v", c)
	}
	if v, ok := c.Value.(int64); !ok || v != 5 {
		t.Errorf("c should fold to 5, got %#v", c.Value)
	}
}

func TestSsaPass_LoopHeaderGetsPhiWithPreheaderAndLatchArgs(t *testing.T) {
	prog := &ir.Program{Functions: []*ir.Function{{Name: "loop", Instrs: []*ir.Instr{
		ir.NewLabel("entry"),
		constInstr("x", 0),
		{Kind: ir.KindEffect, Op: ir.OpJmp, Labels: []string{"header"}},
		ir.NewLabel("header"),
		{Kind: ir.KindValue, Op: ir.OpId, HasDest: true, Dest: "v", Type: ir.PrimType("int"), Args: []string{"x"}},
		constInstr("cond", 1),
		{Kind: ir.KindEffect, Op: ir.OpBr, Labels: []string{"body", "exit"}},
		ir.NewLabel("body"),
		constInstr("x", 1),
		{Kind: ir.KindEffect, Op: ir.OpJmp, Labels: []string{"header"}},
		ir.NewLabel("exit"),
		printInstr("v"),
		ret(),
	}}}}

	if err := RunNamed(context.Background(), prog, []string{"ssa"}); err != nil {
		t.Fatalf("RunNamed ssa: %v", err)
	}

	fn := prog.Functions[0]
	var headerInstrs []*ir.Instr
	inHeader := false
	for _, instr := range fn.Instrs {
		if instr.Kind == ir.KindLabel {
			inHeader = instr.Label == "header"
			continue
		}
		if inHeader {
			headerInstrs = append(headerInstrs, instr)
		}
	}
	var phi *ir.Instr
	for _, instr := range headerInstrs {
		if instr.Op == ir.OpPhi && strings.HasPrefix(instr.Dest, "x.") {
			phi = instr
		}
	}
	if phi == nil {
		t.Fatalf("header block should hold a phi for x, got %+v", headerInstrs)
	}
	if len(phi.Args) != 2 || len(phi.Labels) != 2 {
		t.Fatalf("loop header phi should have 2 (arg,label) pairs (pre-header + latch), got args=%v labels=%v", phi.Args, phi.Labels)
	}
	gotLabels := map[string]bool{phi.Labels[0]: true, phi.Labels[1]: true}
	if !gotLabels["entry"] || !gotLabels["body"] {
		t.Errorf("phi incoming labels should be {entry, body}, got %v", phi.Labels)
	}
}

func TestLicmPass_NoLoopIsANoop(t *testing.T) {
	prog := &ir.Program{Functions: []*ir.Function{{Name: "straight", Instrs: []*ir.Instr{
		constInstr("a", 1),
		printInstr("a"),
		ret(),
	}}}}
	if err := RunNamed(context.Background(), prog, []string{"licm"}); err != nil {
		t.Fatalf("RunNamed licm: %v", err)
	}
	if len(prog.Functions[0].Instrs) != 3 {
		t.Errorf("function with no loop should be unchanged, got %+v", prog.Functions[0].Instrs)
	}
}
