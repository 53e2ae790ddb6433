// Package dom computes dominator sets, the immediate-dominator tree, and
// dominance frontiers over a cfg.Graph (§4.3). The iterative fixed-point
// structure (a "changed" flag looping until a full pass makes no further
// progress) follows the same shape as the teacher's Cooper-Harvey-Kennedy
// post-dominator computation in cdg.go, though the technique here is the
// simpler direct set-intersection method the specification calls for.
package dom

import "tacopt/internal/cfg"

// Info holds the dominator relation and everything derived from it.
type Info struct {
	Dom      []cfg.BlockSet // Dom(b), inclusive of b
	Strict   []cfg.BlockSet // Dom(b) \ {b}
	IDom     []int          // immediate dominator of b, -1 for the entry block
	Children [][]int        // dominator-tree children of b
	Frontier []cfg.BlockSet // dominance frontier of b
}

// Compute derives full dominator info for g, whose block 0 is the entry.
func Compute(g *cfg.Graph) *Info {
	n := len(g.Blocks)
	dom := make([]cfg.BlockSet, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	for b := 0; b < n; b++ {
		if b == 0 {
			dom[b] = cfg.NewBlockSet(0)
		} else {
			dom[b] = cfg.NewBlockSet(all...)
		}
	}

	changed := true
	for changed {
		changed = false
		for b := 1; b < n; b++ {
			preds := g.Preds[b]
			if len(preds) == 0 {
				// No predecessors: nothing constrains Dom(b) further, so it
				// stays at its initial "all blocks" value, matching the
				// reference implementation's guard on empty predecessor lists.
				continue
			}
			inter := dom[preds[0]].Clone()
			for _, p := range preds[1:] {
				inter = intersect(inter, dom[p])
			}
			inter.Add(b)
			if !inter.Equal(dom[b]) {
				dom[b] = inter
				changed = true
			}
		}
	}

	strict := make([]cfg.BlockSet, n)
	for b := 0; b < n; b++ {
		s := cfg.NewBlockSet()
		for a := range dom[b] {
			if a != b {
				s.Add(a)
			}
		}
		strict[b] = s
	}

	idom := immediateDominators(strict, n)
	children := make([][]int, n)
	for b := 1; b < n; b++ {
		if idom[b] >= 0 {
			children[idom[b]] = append(children[idom[b]], b)
		}
	}

	frontier := computeFrontier(g, dom, strict)

	return &Info{Dom: dom, Strict: strict, IDom: idom, Children: children, Frontier: frontier}
}

func intersect(a, b cfg.BlockSet) cfg.BlockSet {
	out := cfg.NewBlockSet()
	for k := range a {
		if b.Has(k) {
			out.Add(k)
		}
	}
	return out
}

// immediateDominators picks, for each block, the strict dominator that does
// not itself strictly dominate any other strict dominator of that block —
// i.e. the closest one.
func immediateDominators(strict []cfg.BlockSet, n int) []int {
	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	for b := 0; b < n; b++ {
		for sd := range strict[b] {
			immediate := true
			for other := range strict[b] {
				if other == sd {
					continue
				}
				if strict[other].Has(sd) {
					immediate = false
					break
				}
			}
			if immediate {
				idom[b] = sd
				break
			}
		}
	}
	return idom
}

// computeFrontier implements DF(a) = { b | a dominates some predecessor of
// b, and a does not strictly dominate b }.
func computeFrontier(g *cfg.Graph, dom, strict []cfg.BlockSet) []cfg.BlockSet {
	n := len(g.Blocks)
	df := make([]cfg.BlockSet, n)
	for i := range df {
		df[i] = cfg.NewBlockSet()
	}
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			if strict[b].Has(a) {
				continue
			}
			for _, p := range g.Preds[b] {
				if dom[p].Has(a) {
					df[a].Add(b)
					break
				}
			}
		}
	}
	return df
}
