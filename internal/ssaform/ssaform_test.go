package ssaform

import (
	"testing"

	"tacopt/internal/cfg"
	"tacopt/internal/dom"
	"tacopt/internal/ir"
)

func constInstr(dest string, v int64) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpConst, HasDest: true, Dest: dest, Type: ir.PrimType("int"), HasValue: true, Value: v}
}
func idInstr(dest, src string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpId, HasDest: true, Dest: dest, Type: ir.PrimType("int"), Args: []string{src}}
}
func addInstr(dest, a, b string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindValue, Op: ir.OpAdd, HasDest: true, Dest: dest, Type: ir.PrimType("int"), Args: []string{a, b}}
}
func jmp(label string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpJmp, Labels: []string{label}}
}
func br(t, f string) *ir.Instr {
	return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpBr, Labels: []string{t, f}}
}
func ret() *ir.Instr { return &ir.Instr{Kind: ir.KindEffect, Op: ir.OpRet} }

// buildDiamond builds a diamond CFG where "x" is assigned differently on
// each branch and used after the join, requiring exactly one φ-node at join.
//
//	entry: x = 1; br cond then else
//	then:  x = 2; jmp join
//	else:  x = 3; jmp join
//	join:  y = id x; ret
func buildDiamond(t *testing.T) ([]*cfg.Block, *cfg.Graph, *dom.Info) {
	instrs := []*ir.Instr{
		ir.NewLabel("entry"),
		constInstr("cond", 1),
		constInstr("x", 1),
		br("then", "else"),
		ir.NewLabel("then"),
		constInstr("x", 2),
		jmp("join"),
		ir.NewLabel("else"),
		constInstr("x", 3),
		jmp("join"),
		ir.NewLabel("join"),
		idInstr("y", "x"),
		ret(),
	}
	blocks, labelIndex := cfg.Split(instrs)
	g, err := cfg.Build("f", blocks, labelIndex)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	info := dom.Compute(g)
	return blocks, g, info
}

func TestEnsureSingleEntry_NoOpWhenNoIncomingEdge(t *testing.T) {
	blocks, labelIndex := cfg.Split([]*ir.Instr{ir.NewLabel("entry"), ret()})
	out, _, changed := EnsureSingleEntry(blocks, labelIndex, "entry")
	if changed {
		t.Fatal("should not synthesize an entry block when none is needed")
	}
	if len(out) != len(blocks) {
		t.Fatalf("block count changed unexpectedly")
	}
}

func TestEnsureSingleEntry_SynthesizesWhenLoopedBack(t *testing.T) {
	instrs := []*ir.Instr{
		ir.NewLabel("loop"),
		jmp("loop"),
	}
	blocks, labelIndex := cfg.Split(instrs)
	out, newIdx, changed := EnsureSingleEntry(blocks, labelIndex, "entry")
	if !changed {
		t.Fatal("should synthesize an entry block when the first block has an incoming edge")
	}
	if len(out) != len(blocks)+1 {
		t.Fatalf("want 1 new block, got %d vs %d", len(out), len(blocks))
	}
	if out[0].Label != "entry_0" {
		t.Errorf("synthesized label = %q, want entry_0", out[0].Label)
	}
	if newIdx["loop"] != 1 {
		t.Errorf("loop's index should shift to 1, got %d", newIdx["loop"])
	}
}

func TestInsertPhis_PlacesExactlyOnePhiAtJoin(t *testing.T) {
	blocks, _, info := buildDiamond(t)
	phis := InsertPhis(blocks, info)

	joinIdx := 3
	if _, ok := phis[joinIdx]["x"]; !ok {
		t.Fatalf("want a phi for x at join, got %v", phis[joinIdx])
	}
	if len(phis[joinIdx]) != 1 {
		t.Errorf("want exactly one phi at join, got %d", len(phis[joinIdx]))
	}
	for b, vars := range phis {
		if b == joinIdx {
			continue
		}
		if len(vars) != 0 {
			t.Errorf("unexpected phi at block %d: %v", b, vars)
		}
	}
}

func TestRename_ProducesDistinctVersionsAndFillsPhi(t *testing.T) {
	blocks, g, info := buildDiamond(t)
	phis := InsertPhis(blocks, info)
	Rename(g, info, blocks, phis, map[string]bool{})

	thenDest := blocks[1].Instrs[1].Dest
	elseDest := blocks[2].Instrs[1].Dest
	if thenDest == elseDest {
		t.Fatalf("then/else assignments to x must get distinct SSA names, both got %q", thenDest)
	}

	join := blocks[3]
	if join.Instrs[1].Op != ir.OpPhi {
		t.Fatalf("join's second instruction should be the spliced phi, got %v", join.Instrs[1].Op)
	}
	phiInstr := join.Instrs[1]
	if len(phiInstr.Args) != 2 || len(phiInstr.Labels) != 2 {
		t.Fatalf("phi should have 2 (arg,label) pairs, got args=%v labels=%v", phiInstr.Args, phiInstr.Labels)
	}
	gotArgs := map[string]bool{phiInstr.Args[0]: true, phiInstr.Args[1]: true}
	if !gotArgs[thenDest] || !gotArgs[elseDest] {
		t.Errorf("phi args %v should be exactly {%q, %q}", phiInstr.Args, thenDest, elseDest)
	}

	// the use of x in "y = id x" after the join must reference the phi's
	// fresh destination, not the original name.
	useInstr := join.Instrs[len(join.Instrs)-2]
	if useInstr.Args[0] != phiInstr.Dest {
		t.Errorf("use after join references %q, want phi dest %q", useInstr.Args[0], phiInstr.Dest)
	}
}
