// Package ssaform converts a function's basic blocks into SSA form:
// trivial φ-placement by iterated dominance-frontier closure (a φ goes at
// every such block whether or not the variable is live there; φs are not
// pruned by liveness), followed by a
// dominator-tree-ordered rename pass (§4.5), grounded on convert_ssa.py's
// insert_phi/rename.
package ssaform

import (
	"fmt"

	"tacopt/internal/cfg"
	"tacopt/internal/dom"
	"tacopt/internal/ir"
)

// UndefinedSentinel marks a φ-argument reachable along a path where the
// original variable has no value yet and is not one of the function's
// parameters.
const UndefinedSentinel = "__undefined"

// EnsureSingleEntry synthesizes a synthetic entry block labeled
// "<labelPrefix>_0" when the function's existing first block has incoming
// edges, so the dominator tree computed afterward has a true, edge-free
// root. Returns the (possibly unchanged) blocks/labelIndex and whether it
// synthesized a block.
func EnsureSingleEntry(blocks []*cfg.Block, labelIndex map[string]int, labelPrefix string) ([]*cfg.Block, map[string]int, bool) {
	if len(blocks) == 0 {
		return blocks, labelIndex, false
	}
	first := blocks[0].Label
	hasIncoming := false
	for _, b := range blocks {
		for _, l := range b.Last().Labels {
			if l == first {
				hasIncoming = true
			}
		}
	}
	if !hasIncoming {
		return blocks, labelIndex, false
	}

	label := fmt.Sprintf("%s_0", labelPrefix)
	newLabelIndex := make(map[string]int, len(labelIndex)+1)
	for k, v := range labelIndex {
		newLabelIndex[k] = v + 1
	}
	newLabelIndex[label] = 0

	entry := &cfg.Block{
		Label: label,
		Instrs: []*ir.Instr{
			ir.NewLabel(label),
			{Kind: ir.KindEffect, Op: ir.OpJmp, Labels: []string{first}},
		},
	}
	newBlocks := make([]*cfg.Block, 0, len(blocks)+1)
	newBlocks = append(newBlocks, entry)
	newBlocks = append(newBlocks, blocks...)
	return newBlocks, newLabelIndex, true
}

// phi is a not-yet-materialized φ-node: one per (block, original variable)
// pair discovered by InsertPhis. dest/args/labels are filled in by Rename.
type phi struct {
	dest   string
	typ    *ir.Type
	args   []string
	labels []string
}

// defSites returns, for every variable with at least one destination
// instruction anywhere in the function, the set of blocks that define it,
// plus the type recorded at its first definition.
func defSites(blocks []*cfg.Block) (map[string]cfg.BlockSet, map[string]*ir.Type) {
	defs := make(map[string]cfg.BlockSet)
	types := make(map[string]*ir.Type)
	for i, b := range blocks {
		for _, instr := range b.Instrs {
			if !instr.HasDest {
				continue
			}
			if defs[instr.Dest] == nil {
				defs[instr.Dest] = cfg.NewBlockSet()
			}
			defs[instr.Dest].Add(i)
			if _, ok := types[instr.Dest]; !ok {
				types[instr.Dest] = instr.Type
			}
		}
	}
	return defs, types
}

// InsertPhis places trivial φ-nodes: for every variable, iterate its
// definition set to its dominance-frontier closure, adding a phi slot at
// every frontier block reached (Cytron's standard iterated-DF algorithm).
func InsertPhis(blocks []*cfg.Block, info *dom.Info) map[int]map[string]*phi {
	defs, types := defSites(blocks)
	phis := make(map[int]map[string]*phi, len(blocks))
	for i := range blocks {
		phis[i] = make(map[string]*phi)
	}

	for v, sites := range defs {
		work := sites.Clone()
		changed := true
		for changed {
			changed = false
			for d := range work.Clone() {
				for f := range info.Frontier[d] {
					if _, ok := phis[f][v]; !ok {
						phis[f][v] = &phi{typ: types[v]}
					}
					if !work.Has(f) {
						work.Add(f)
						changed = true
					}
				}
			}
		}
	}
	return phis
}

func sortedKeys(m map[string]*phi) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Rename performs dominator-tree-ordered SSA renaming: it assigns fresh
// "name.N" destinations, rewrites operand references to whichever renamed
// version is currently in scope, and fills in each φ-node's (value,
// source-label) argument pairs as it walks out of each block into its
// successors. argNames identifies the function's formal parameters, which
// may be read under their original name even when never otherwise defined.
// Rename mutates blocks and splices materialized φ-instructions into them.
func Rename(g *cfg.Graph, info *dom.Info, blocks []*cfg.Block, phis map[int]map[string]*phi, argNames map[string]bool) {
	stacks := make(map[string][]string)
	counters := make(map[string]int)

	fresh := func(v string) string {
		counters[v]++
		return fmt.Sprintf("%s.%d", v, counters[v])
	}

	var rename func(b int)
	rename = func(b int) {
		saved := make(map[string][]string, len(stacks))
		for k, v := range stacks {
			saved[k] = append([]string(nil), v...)
		}

		for _, origVar := range sortedKeys(phis[b]) {
			p := phis[b][origVar]
			name := fresh(origVar)
			p.dest = name
			stacks[origVar] = append(stacks[origVar], name)
		}

		for _, instr := range blocks[b].Instrs {
			if instr.Kind == ir.KindLabel || instr.Op == ir.OpPhi {
				continue
			}
			for i, a := range instr.Args {
				if s, ok := stacks[a]; ok && len(s) > 0 {
					instr.Args[i] = s[len(s)-1]
				}
			}
			if instr.HasDest {
				name := fresh(instr.Dest)
				stacks[instr.Dest] = append(stacks[instr.Dest], name)
				instr.Dest = name
			}
		}

		srcLabel := blocks[b].Label
		for _, s := range g.Succs[b] {
			for _, origVar := range sortedKeys(phis[s]) {
				p := phis[s][origVar]
				var argName string
				stack := stacks[origVar]
				if len(stack) == 0 {
					if argNames[origVar] {
						argName = origVar
					} else {
						argName = UndefinedSentinel
					}
				} else {
					argName = stack[len(stack)-1]
				}
				p.args = append(p.args, argName)
				p.labels = append(p.labels, srcLabel)
			}
		}

		for _, c := range info.Children[b] {
			rename(c)
		}

		stacks = saved
	}

	rename(0)

	for b, vars := range phis {
		if len(vars) == 0 {
			continue
		}
		insertAt := 0
		if len(blocks[b].Instrs) > 0 && blocks[b].Instrs[0].Kind == ir.KindLabel {
			insertAt = 1
		}
		var phiInstrs []*ir.Instr
		for _, origVar := range sortedKeys(vars) {
			p := vars[origVar]
			phiInstrs = append(phiInstrs, &ir.Instr{
				Kind:    ir.KindValue,
				Op:      ir.OpPhi,
				HasDest: true,
				Dest:    p.dest,
				Type:    p.typ,
				Args:    p.args,
				Labels:  p.labels,
			})
		}
		rest := append([]*ir.Instr(nil), blocks[b].Instrs[insertAt:]...)
		blocks[b].Instrs = append(blocks[b].Instrs[:insertAt], append(phiInstrs, rest...)...)
	}
}
