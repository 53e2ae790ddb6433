// Package analysis implements the three concrete dataflow analyses named in
// §4.7 — live variables, constant propagation, and may-alias — each over a
// Fact type grounded on the matching reference implementation. Live and
// ConstProp run through dataflow.Solve; MayAlias runs its own forward
// worklist so it can merge an argument-seeded fact into every block.
package analysis

import (
	"fmt"

	"tacopt/internal/cfg"
	"tacopt/internal/dataflow"
	"tacopt/internal/ir"
)

// ---- Live variables (backward, set union/kill), grounded on liveness_dce.py ----

// LiveFact is the set of variable names live at a program point.
type LiveFact map[string]bool

func (f LiveFact) Equal(o dataflow.Fact) bool {
	other, ok := o.(LiveFact)
	if !ok || len(f) != len(other) {
		return false
	}
	for k := range f {
		if !other[k] {
			return false
		}
	}
	return true
}

func liveMerge(neighbors []dataflow.Fact) dataflow.Fact {
	out := LiveFact{}
	for _, n := range neighbors {
		for k := range n.(LiveFact) {
			out[k] = true
		}
	}
	return out
}

func liveTransfer(in dataflow.Fact, block *cfg.Block, _ int) dataflow.Fact {
	out := make(LiveFact, len(in.(LiveFact)))
	for k := range in.(LiveFact) {
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

// Live computes live-variable facts over g. Result.Out[b] is the live-out
// set DCE passes consume to decide whether a definition in b is dead.
func Live(g *cfg.Graph) *dataflow.Result {
	return dataflow.Solve(g, dataflow.Analysis{
		Direction: dataflow.Backward,
		Init:      func() dataflow.Fact { return LiveFact{} },
		Merge:     liveMerge,
		Transfer:  liveTransfer,
	})
}

// ---- Constant propagation (forward, map lattice with unknown/top), grounded on const_prop.py ----

// ConstVal is one variable's constant-propagation lattice value.
type ConstVal struct {
	Unknown bool // the '?' sentinel: not a single constant on every path
	Value   any  // bool or int64, meaningful only when !Unknown
}

// ConstFact maps variable names to their known-or-unknown constant value.
type ConstFact map[string]ConstVal

func (f ConstFact) Equal(o dataflow.Fact) bool {
	other, ok := o.(ConstFact)
	if !ok || len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || v.Unknown != ov.Unknown {
			return false
		}
		if !v.Unknown && v.Value != ov.Value {
			return false
		}
	}
	return true
}

func (f ConstFact) clone() ConstFact {
	out := make(ConstFact, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// constMerge intersects predecessor fact maps: a variable missing from any
// predecessor's map is dropped, and one whose known values disagree becomes
// Unknown. An empty predecessor map
// (an as-yet-unvisited predecessor) resets the merge to empty, matching
// cfg_intersect_maps's conservative `any(d == {} for d in predecessor_facts)`
// guard in the reference implementation.
func constMerge(predecessors []dataflow.Fact) dataflow.Fact {
	if len(predecessors) == 0 {
		return ConstFact{}
	}
	for _, p := range predecessors {
		if len(p.(ConstFact)) == 0 {
			return ConstFact{}
		}
	}
	out := ConstFact{}
	for _, p := range predecessors {
		for k, v := range p.(ConstFact) {
			if v.Unknown {
				out[k] = ConstVal{Unknown: true}
				continue
			}
			if existing, ok := out[k]; ok {
				if existing.Unknown || existing.Value != v.Value {
					out[k] = ConstVal{Unknown: true}
				}
				continue
			}
			out[k] = v
		}
	}
	for k := range out {
		for _, p := range predecessors {
			if _, ok := p.(ConstFact)[k]; !ok {
				delete(out, k)
				break
			}
		}
	}
	return out
}

// InstrConstVal resolves instr's destination value given facts as of just
// before instr, without mutating facts. Exported so a rewrite pass (e.g. an
// ApplyBlock hook) can walk a block with the exact same per-instruction
// resolution this analysis's own transfer function uses, deciding instr by
// instr whether to splice in a const.
func InstrConstVal(facts ConstFact, instr *ir.Instr) ConstVal {
	switch {
	case instr.Op == ir.OpConst:
		return ConstVal{Value: instr.Value}
	case instr.Op == ir.OpNot || instr.Op == ir.OpId:
		if len(instr.Args) == 1 {
			if v, ok := facts[instr.Args[0]]; ok && !v.Unknown {
				if folded, ok := ir.Fold(instr.Op, []any{v.Value}); ok {
					return ConstVal{Value: folded}
				}
			}
		}
		return ConstVal{Unknown: true}
	case ir.PureArith(instr.Op):
		args := make([]any, len(instr.Args))
		known := true
		for i, a := range instr.Args {
			v, ok := facts[a]
			if !ok || v.Unknown {
				known = false
				break
			}
			args[i] = v.Value
		}
		if known {
			if folded, ok := ir.Fold(instr.Op, args); ok {
				return ConstVal{Value: folded}
			}
		}
		return ConstVal{Unknown: true}
	default:
		return ConstVal{Unknown: true}
	}
}

func constTransfer(in dataflow.Fact, block *cfg.Block, _ int) dataflow.Fact {
	facts := in.(ConstFact).clone()
	for _, instr := range block.Instrs {
		if !instr.HasDest {
			continue
		}
		facts[instr.Dest] = InstrConstVal(facts, instr)
	}
	return facts
}

// ConstProp computes per-block constant-propagation facts over g. It is a
// pessimistic analysis: a non-nil applyBlock is called on each block with
// its in-facts every time the solver (re)processes it, so callers can
// rewrite instructions to consts on the fly.
func ConstProp(g *cfg.Graph, applyBlock func(in ConstFact, block *cfg.Block)) *dataflow.Result {
	a := dataflow.Analysis{
		Direction: dataflow.Forward,
		Init:      func() dataflow.Fact { return ConstFact{} },
		Merge:     constMerge,
		Transfer:  constTransfer,
	}
	if applyBlock != nil {
		a.ApplyBlock = func(in dataflow.Fact, block *cfg.Block) {
			applyBlock(in.(ConstFact), block)
		}
	}
	return dataflow.Solve(g, a)
}

// ---- May-alias (forward, location-set lattice with any-memory top), grounded on task4/alias.py ----

// AnyMemory is the any-memory top element: a pointer whose provenance is
// unknown (loaded from memory, or a function argument) may alias anything.
const AnyMemory = "*"

// LocSet is a set of abstract memory locations.
type LocSet map[string]bool

// AliasFact maps pointer-valued variables to the locations they may refer to.
type AliasFact map[string]LocSet

func (f AliasFact) Equal(o dataflow.Fact) bool {
	other, ok := o.(AliasFact)
	if !ok || len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || len(v) != len(ov) {
			return false
		}
		for loc := range v {
			if !ov[loc] {
				return false
			}
		}
	}
	return true
}

func (f AliasFact) clone() AliasFact {
	out := make(AliasFact, len(f))
	for k, v := range f {
		c := make(LocSet, len(v))
		for loc := range v {
			c[loc] = true
		}
		out[k] = c
	}
	return out
}

func unionInto(dest LocSet, src LocSet) LocSet {
	if dest == nil {
		dest = make(LocSet, len(src))
	}
	for loc := range src {
		dest[loc] = true
	}
	return dest
}

// allocSite tags an alloc instruction by its (block, instruction-within-block)
// position, matching alias.py's `(block_index, instr_index)` tuple key.
func allocSite(blockIdx, instrIdx int) string {
	return fmt.Sprintf("%d:%d", blockIdx, instrIdx)
}

func aliasMerge(neighbors []dataflow.Fact) dataflow.Fact {
	out := AliasFact{}
	for _, n := range neighbors {
		for k, v := range n.(AliasFact) {
			out[k] = unionInto(out[k], v)
		}
	}
	return out
}

func aliasTransfer(in dataflow.Fact, block *cfg.Block, blockIdx int) dataflow.Fact {
	facts := in.(AliasFact).clone()
	for instrIdx, instr := range block.Instrs {
		if !instr.HasDest {
			continue
		}
		switch instr.Op {
		case ir.OpAlloc:
			facts[instr.Dest] = LocSet{allocSite(blockIdx, instrIdx): true}
		case ir.OpId:
			if instr.Type.IsPtr() && len(instr.Args) == 1 {
				if src, ok := facts[instr.Args[0]]; ok {
					facts[instr.Dest] = unionInto(facts[instr.Dest], src)
				}
			}
		case ir.OpPtrAdd:
			if len(instr.Args) > 0 {
				if src, ok := facts[instr.Args[0]]; ok {
					facts[instr.Dest] = unionInto(facts[instr.Dest], src)
				}
			}
		case ir.OpLoad:
			facts[instr.Dest] = LocSet{AnyMemory: true}
		}
	}
	return facts
}

// MayAlias computes, per block, the abstract memory locations each
// pointer-valued variable may refer to. argNames seeds every formal
// parameter with the any-memory location: the analysis has no provenance
// for values the caller passed in, so it must assume the worst
// conservatively, matching alias.py's default_map_for_arguments.
func MayAlias(g *cfg.Graph, argNames map[string]bool) *dataflow.Result {
	n := len(g.Blocks)
	in := make([]dataflow.Fact, n)
	out := make([]dataflow.Fact, n)
	for i := 0; i < n; i++ {
		in[i] = AliasFact{}
		out[i] = AliasFact{}
	}

	seed := AliasFact{}
	for a := range argNames {
		seed[a] = LocSet{AnyMemory: true}
	}

	worklist := make([]int, n)
	for i := range worklist {
		worklist[i] = i
	}
	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]

		neighbors := []dataflow.Fact{seed}
		for _, p := range g.Preds[current] {
			neighbors = append(neighbors, out[p])
		}
		merged := aliasMerge(neighbors)
		in[current] = merged

		newFacts := aliasTransfer(in[current], g.Blocks[current], current)
		if !out[current].(AliasFact).Equal(newFacts) {
			out[current] = newFacts
			worklist = append(worklist, g.Succs[current]...)
		}
	}

	return &dataflow.Result{In: in, Out: out}
}
