// Package opt implements the dead-code, dead-store, and loop-invariant-code
// motion transformation passes of §4.9/§4.10: trivial DCE, local DCE,
// liveness-driven DCE, dead-store elimination, and LICM.
package opt

import (
	"tacopt/internal/analysis"
	"tacopt/internal/cfg"
	"tacopt/internal/dataflow"
	"tacopt/internal/ir"
	"tacopt/internal/loop"
)

// TrivialDCE repeats a whole-function sweep — drop any instruction whose
// destination is never read anywhere in the function — until a fixed
// point, grounded on trivial_dce.py. Every instruction without a
// destination (labels, effects, control) is always retained.
func TrivialDCE(fn *ir.Function) {
	for {
		used := map[string]bool{}
		for _, instr := range fn.Instrs {
			for _, a := range instr.Args {
				used[a] = true
			}
		}

		changed := false
		kept := make([]*ir.Instr, 0, len(fn.Instrs))
		for _, instr := range fn.Instrs {
			if instr.HasDest && !used[instr.Dest] {
				changed = true
				continue
			}
			kept = append(kept, instr)
		}
		fn.Instrs = kept
		if !changed {
			return
		}
	}
}

// LocalDCE iterates each block to a fixed point: walking forward, a read
// clears a variable's pending-unused entry, and a write whose variable is
// still pending marks the earlier definition for deletion. Grounded on the
// forward pending-unused variant of local_dce.py.
func LocalDCE(blocks []*cfg.Block) {
	for _, b := range blocks {
		for {
			pending := map[string]int{}
			toRemove := map[int]bool{}
			for idx, instr := range b.Instrs {
				for _, a := range instr.Args {
					delete(pending, a)
				}
				if instr.HasDest {
					if prevIdx, ok := pending[instr.Dest]; ok {
						toRemove[prevIdx] = true
					}
					pending[instr.Dest] = idx
				}
			}
			if len(toRemove) == 0 {
				break
			}
			kept := make([]*ir.Instr, 0, len(b.Instrs)-len(toRemove))
			for idx, instr := range b.Instrs {
				if !toRemove[idx] {
					kept = append(kept, instr)
				}
			}
			b.Instrs = kept
		}
	}
}

// sideEffectFree reports whether instr may be deleted once liveness shows
// its destination is never read — the condition §4.9 adds on top of
// liveness_dce.py's super_dead_code_eliminator, which deletes any unused
// destination regardless of opcode. alloc/load/call are excluded even
// though they carry a destination, since their execution has effects
// liveness analysis does not model.
func sideEffectFree(instr *ir.Instr) bool {
	return instr.Op == ir.OpConst || instr.Op == ir.OpId || instr.Op == ir.OpPhi || ir.PureArith(instr.Op)
}

// LivenessDCE walks each block in reverse starting from its live-out set,
// deleting side-effect-free instructions whose destination is absent from
// the working set, then updating the set unconditionally (discard the
// destination, add the arguments) exactly as super_dead_code_eliminator
// does — including for a deleted instruction, whose arguments are still
// folded into the set as if it had run.
func LivenessDCE(g *cfg.Graph, live *dataflow.Result) {
	for i, b := range g.Blocks {
		current := make(analysis.LiveFact, len(live.Out[i].(analysis.LiveFact)))
		for k := range live.Out[i].(analysis.LiveFact) {
			current[k] = true
		}

		keep := make([]bool, len(b.Instrs))
		for idx := len(b.Instrs) - 1; idx >= 0; idx-- {
			instr := b.Instrs[idx]
			keep[idx] = true
			if instr.HasDest {
				if !current[instr.Dest] && sideEffectFree(instr) {
					keep[idx] = false
				}
				delete(current, instr.Dest)
			}
			for _, a := range instr.Args {
				current[a] = true
			}
		}

		kept := make([]*ir.Instr, 0, len(b.Instrs))
		for idx, instr := range b.Instrs {
			if keep[idx] {
				kept = append(kept, instr)
			}
		}
		b.Instrs = kept
	}
}

// ConstPropRewrite is a ConstProp ApplyBlock hook: it walks block with the
// same per-instruction resolution analysis.InstrConstVal gives the
// analysis's own transfer function, replacing any instruction whose
// destination resolves to a known value with a plain const carrying that
// value — constant propagation's "optimizing pass" mode (§4.7), grounded on
// const_prop.py's rewrite-in-place behavior. A destination already a const
// is left alone.
func ConstPropRewrite(in analysis.ConstFact, block *cfg.Block) {
	facts := make(analysis.ConstFact, len(in))
	for k, v := range in {
		facts[k] = v
	}
	for _, instr := range block.Instrs {
		if !instr.HasDest {
			continue
		}
		val := analysis.InstrConstVal(facts, instr)
		facts[instr.Dest] = val
		if val.Unknown || instr.Op == ir.OpConst {
			continue
		}
		instr.Op = ir.OpConst
		instr.Args = nil
		instr.Labels = nil
		instr.Funcs = nil
		instr.HasValue = true
		instr.Value = val.Value
	}
}

const storedMarker = "STORED"

func cloneAliasFact(f analysis.AliasFact) analysis.AliasFact {
	out := make(analysis.AliasFact, len(f))
	for k, v := range f {
		c := make(analysis.LocSet, len(v))
		for loc := range v {
			c[loc] = true
		}
		out[k] = c
	}
	return out
}

// DeadStoreElimination walks each block in reverse, starting from its
// may-alias out-facts, removing a store to p once a later store to p (with
// no intervening aliasing read) has already been seen and no other
// tracked pointer may reach p's locations or any-memory. Grounded on
// task4/alias.py's dead_store_elimination; a target with no tracked
// location set (unknown provenance) is conservatively treated as aliased,
// per the keep-the-store-when-in-doubt decision in SPEC_FULL.md §E.3.
func DeadStoreElimination(g *cfg.Graph, alias *dataflow.Result) {
	for i, b := range g.Blocks {
		current := cloneAliasFact(alias.Out[i].(analysis.AliasFact))

		keep := make([]bool, len(b.Instrs))
		for idx := range keep {
			keep[idx] = true
		}

		for idx := len(b.Instrs) - 1; idx >= 0; idx-- {
			instr := b.Instrs[idx]
			if instr.Op != ir.OpStore || len(instr.Args) == 0 {
				continue
			}
			target := instr.Args[0]
			targetLocs, haveTarget := current[target]
			aliased := !haveTarget
			for v, locs := range current {
				if v == target {
					continue
				}
				if locs[analysis.AnyMemory] {
					aliased = true
				}
				if haveTarget {
					for loc := range targetLocs {
						if locs[loc] {
							aliased = true
						}
					}
				}
			}
			if !aliased && haveTarget && targetLocs[storedMarker] {
				keep[idx] = false
			} else if haveTarget {
				targetLocs[storedMarker] = true
			}
		}

		kept := make([]*ir.Instr, 0, len(b.Instrs))
		for idx, instr := range b.Instrs {
			if keep[idx] {
				kept = append(kept, instr)
			}
		}
		b.Instrs = kept
	}
}

// invariantOp reports whether op (with destination type typ) is
// deterministic and safe to re-execute outside its original position, per
// §4.10's exclusion list.
func invariantOp(op ir.Op, typ *ir.Type) bool {
	switch op {
	case ir.OpCall, ir.OpLoad, ir.OpStore, ir.OpFree, ir.OpPtrAdd, ir.OpJmp, ir.OpBr, ir.OpRet, ir.OpPhi:
		return false
	}
	if op == ir.OpId && typ != nil && typ.IsPtr() {
		return false
	}
	return true
}

// LICM hoists loop-invariant instructions into each loop's pre-header,
// grounded on licm.py's perform_licm. loops must already be normalized
// (every Loop.PreHeader assigned) via loop.Normalize.
func LICM(blocks []*cfg.Block, loops []*loop.Loop) {
	for _, lp := range loops {
		definedInLoop := map[string]bool{}
		for bi := range lp.Body {
			for _, instr := range blocks[bi].Instrs {
				if instr.HasDest {
					definedInLoop[instr.Dest] = true
				}
			}
		}

		safe := map[string]*ir.Instr{}
		for _, bi := range lp.Body.Sorted() {
			for _, instr := range blocks[bi].Instrs {
				if !instr.HasDest {
					continue
				}
				if !invariantOp(instr.Op, instr.Type) {
					delete(safe, instr.Dest)
					continue
				}
				dependsOnLoop := false
				for _, a := range instr.Args {
					if definedInLoop[a] {
						dependsOnLoop = true
						break
					}
				}
				if dependsOnLoop {
					delete(safe, instr.Dest)
					continue
				}
				safe[instr.Dest] = instr
			}
		}
		if len(safe) == 0 {
			continue
		}

		// Re-walk in program order so hoisted instructions preserve their
		// original intra-loop dependency order.
		blockOf := map[*ir.Instr]int{}
		var ordered []*ir.Instr
		for _, bi := range lp.Body.Sorted() {
			for _, instr := range blocks[bi].Instrs {
				if safe[instr.Dest] == instr {
					ordered = append(ordered, instr)
					blockOf[instr] = bi
				}
			}
		}

		pre := blocks[lp.PreHeader]
		for _, instr := range ordered {
			insertBeforeTerminator(pre, instr)
			removeInstr(blocks[blockOf[instr]], instr)
		}
	}
}

func insertBeforeTerminator(b *cfg.Block, instr *ir.Instr) {
	n := len(b.Instrs)
	if n > 0 {
		last := b.Instrs[n-1]
		if last.Op == ir.OpJmp || last.Op == ir.OpBr {
			b.Instrs = append(b.Instrs[:n-1:n-1], instr, last)
			return
		}
	}
	b.Instrs = append(b.Instrs, instr)
}

func removeInstr(b *cfg.Block, instr *ir.Instr) {
	for i, in := range b.Instrs {
		if in == instr {
			b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
			return
		}
	}
}
