// Package lvn implements local value numbering, a block-local common
// subexpression elimination pass with commutative-operator canonicalization
// and an optional constant-folding step (§4.8), grounded on local_vn.py and
// its constant-folding variant, local_vn_experiment.py.
//
// Value numbering here is restricted to side-effect-free, pure value
// instructions (const, id, and the deterministic arithmetic/comparison
// opcodes) — unlike the reference implementation, which numbers every
// instruction with a destination indiscriminately (including alloc/load,
// whose "value" depends on mutable memory) and even rewrites duplicate
// effect instructions (print, store — which have no destination at all) to
// a destination-less "id", silently discarding their side effect. That
// would violate §8's "LVN preserves observable semantics" invariant, so
// this package never touches an effect instruction or a load/alloc/call.
package lvn

import (
	"fmt"

	"tacopt/internal/cfg"
	"tacopt/internal/ir"
)

// eligible reports whether instr may participate in value numbering.
func eligible(instr *ir.Instr) bool {
	if !instr.HasDest {
		return false
	}
	return instr.Op == ir.OpConst || instr.Op == ir.OpId || ir.PureArith(instr.Op)
}

// Run performs local value numbering independently within every block,
// mutating instructions in place.
func Run(blocks []*cfg.Block) {
	for _, b := range blocks {
		runBlock(b)
	}
}

func runBlock(b *cfg.Block) {
	valToNum := map[string]int{}   // canonical value key -> number
	numToKey := map[int]string{}   // number -> its key, for clobber cleanup
	numToConst := map[int]any{}    // number -> concrete value, for const-valued numbers
	numToVars := map[int][]string{} // number -> surviving aliases, oldest first
	varToNum := map[string]int{}   // variable -> its current number
	next := 0

	removeAlias := func(num int, v string) {
		vars := numToVars[num]
		for i, e := range vars {
			if e == v {
				vars = append(vars[:i], vars[i+1:]...)
				break
			}
		}
		if len(vars) == 0 {
			delete(valToNum, numToKey[num])
			delete(numToKey, num)
			delete(numToConst, num)
			delete(numToVars, num)
		} else {
			numToVars[num] = vars
		}
	}

	bindDest := func(instr *ir.Instr, num int) {
		dest := instr.Dest
		if prev, ok := varToNum[dest]; ok {
			removeAlias(prev, dest)
		}
		varToNum[dest] = num
		numToVars[num] = append(numToVars[num], dest)
	}

	install := func(key string, constVal any, hasConst bool) int {
		num := next
		next++
		valToNum[key] = num
		numToKey[num] = key
		if hasConst {
			numToConst[num] = constVal
		}
		return num
	}

	for _, instr := range b.Instrs {
		if !eligible(instr) {
			continue
		}

		canonArgs := make([]string, len(instr.Args))
		concrete := make([]any, len(instr.Args))
		allConcrete := len(instr.Args) > 0
		for i, a := range instr.Args {
			if num, ok := varToNum[a]; ok {
				canonArgs[i] = fmt.Sprintf("#%d", num)
				if v, ok := numToConst[num]; ok {
					concrete[i] = v
					continue
				}
			} else {
				canonArgs[i] = a
			}
			allConcrete = false
		}

		if allConcrete && ir.PureArith(instr.Op) {
			if folded, ok := ir.Fold(instr.Op, concrete); ok {
				instr.Op = ir.OpConst
				instr.HasValue = true
				instr.Value = folded
				instr.Args = nil
				key := fmt.Sprintf("const:%v", folded)
				num, seen := valToNum[key]
				if !seen {
					num = install(key, folded, true)
				}
				bindDest(instr, num)
				continue
			}
		} else if len(instr.Args) == 2 {
			if kept, ok := identitySimplify(instr.Op, instr.Args, concrete); ok {
				instr.Op = ir.OpId
				instr.Args = []string{kept}
				canonArgs = []string{canonArgFor(kept, varToNum)}
			}
		}

		var key string
		switch {
		case instr.Op == ir.OpConst:
			key = fmt.Sprintf("const:%v", instr.Value)
		case ir.Commutative(instr.Op):
			sorted := append([]string(nil), canonArgs...)
			insertionSort(sorted)
			key = fmt.Sprintf("%s:%v", instr.Op, sorted)
		default:
			key = fmt.Sprintf("%s:%v", instr.Op, canonArgs)
		}

		num, seen := valToNum[key]
		if !seen {
			num = install(key, instr.Value, instr.Op == ir.OpConst)
		} else {
			instr.Op = ir.OpId
			instr.Args = []string{numToVars[num][0]}
		}
		bindDest(instr, num)
	}
}

func canonArgFor(v string, varToNum map[string]int) string {
	if num, ok := varToNum[v]; ok {
		return fmt.Sprintf("#%d", num)
	}
	return v
}

// identitySimplify implements the identity-simplification extension
// (x+0 -> x, 0+x -> x, x-0 -> x, x*1 -> x, 1*x -> x) that local_vn_experiment.py
// gestures at with its constant-folding table; §4.8 step 4 leaves room for
// extensions like this as long as they never change which opcodes fold.
func identitySimplify(op ir.Op, args []string, concrete []any) (kept string, ok bool) {
	a0, a0ok := concrete[0].(int64)
	a1, a1ok := concrete[1].(int64)
	switch op {
	case ir.OpAdd:
		if a1ok && a1 == 0 {
			return args[0], true
		}
		if a0ok && a0 == 0 {
			return args[1], true
		}
	case ir.OpSub:
		if a1ok && a1 == 0 {
			return args[0], true
		}
	case ir.OpMul:
		if a1ok && a1 == 1 {
			return args[0], true
		}
		if a0ok && a0 == 1 {
			return args[1], true
		}
	}
	return "", false
}

func insertionSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
