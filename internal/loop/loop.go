// Package loop discovers natural loops via back edges and normalizes them
// with synthesized pre-headers (§4.4), grounded on find_back_edges /
// find_loops / normalize_loops in the reference implementation's licm.py.
package loop

import (
	"fmt"

	"tacopt/internal/cfg"
	"tacopt/internal/dom"
	"tacopt/internal/ir"
)

// Loop is one back edge's natural loop. Multiple Loop records may share a
// Header when the header has multiple latches (multiple back edges).
type Loop struct {
	Header    int
	Latch     int
	Body      cfg.BlockSet // includes Header
	PreHeader int          // -1 until Normalize assigns it
	Exits     cfg.BlockSet
}

// FindBackEdges returns every edge (latch, header) where header dominates latch.
func FindBackEdges(g *cfg.Graph, info *dom.Info) [][2]int {
	var edges [][2]int
	for a := range g.Succs {
		for _, b := range g.Succs[a] {
			if info.Dom[a].Has(b) {
				edges = append(edges, [2]int{a, b})
			}
		}
	}
	return edges
}

// NaturalLoop computes header's natural loop for the back edge latch->header:
// header together with every node that can reach latch without passing
// through header.
func NaturalLoop(g *cfg.Graph, latch, header int) cfg.BlockSet {
	body := cfg.NewBlockSet(header)
	if latch == header {
		return body
	}
	visited := cfg.NewBlockSet()
	stack := []int{latch}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == header || visited.Has(n) {
			continue
		}
		visited.Add(n)
		stack = append(stack, g.Preds[n]...)
	}
	for n := range visited {
		body.Add(n)
	}
	return body
}

// Discover finds every natural loop in g.
func Discover(g *cfg.Graph, info *dom.Info) []*Loop {
	edges := FindBackEdges(g, info)
	loops := make([]*Loop, 0, len(edges))
	for _, e := range edges {
		latch, header := e[0], e[1]
		loops = append(loops, &Loop{
			Header:    header,
			Latch:     latch,
			Body:      NaturalLoop(g, latch, header),
			PreHeader: -1,
		})
	}
	for _, l := range loops {
		l.Exits = cfg.NewBlockSet()
		for b := range l.Body {
			for _, s := range g.Succs[b] {
				if !l.Body.Has(s) {
					l.Exits.Add(s)
				}
			}
		}
	}
	return loops
}

// Normalize synthesizes a pre-header for every loop header that does not
// already have exactly one external predecessor, rewires affected terminators
// and φ-nodes, and updates loops in place to reflect the new block indices.
// labelPrefix names the synthesized blocks (e.g. "preheader"); it is combined
// with a per-call counter starting at startCounter.
func Normalize(fn string, blocks []*cfg.Block, labelIndex map[string]int, loops []*Loop, labelPrefix string, startCounter int) ([]*cfg.Block, map[string]int, error) {
	byHeader := map[int][]int{}
	for i, l := range loops {
		byHeader[l.Header] = append(byHeader[l.Header], i)
	}
	headers := make([]int, 0, len(byHeader))
	for h := range byHeader {
		headers = append(headers, h)
	}
	for i := 1; i < len(headers); i++ {
		for j := i; j > 0 && headers[j-1] > headers[j]; j-- {
			headers[j-1], headers[j] = headers[j], headers[j-1]
		}
	}

	counter := startCounter

	for _, h := range headers {
		idxs := byHeader[h]

		g, err := cfg.Build(fn, blocks, labelIndex)
		if err != nil {
			return nil, nil, err
		}

		header := loops[idxs[0]].Header

		bodyUnion := cfg.NewBlockSet()
		for _, i := range idxs {
			for b := range loops[i].Body {
				bodyUnion.Add(b)
			}
		}

		var preds []int
		for _, p := range g.Preds[header] {
			if !bodyUnion.Has(p) {
				preds = append(preds, p)
			}
		}

		if len(preds) == 1 {
			for _, i := range idxs {
				loops[i].PreHeader = preds[0]
			}
			continue
		}

		headerLabel := blocks[header].Label
		label := fmt.Sprintf("%s_%d", labelPrefix, counter)
		counter++
		preBlock := &cfg.Block{
			Label: label,
			Instrs: []*ir.Instr{
				ir.NewLabel(label),
				{Kind: ir.KindEffect, Op: ir.OpJmp, Labels: []string{headerLabel}},
			},
		}

		blocks = insertAt(blocks, header, preBlock)
		labelIndex = shiftLabelIndex(labelIndex, header)
		labelIndex[label] = header

		for _, l := range loops {
			l.Header = shiftIdx(l.Header, header)
			l.Latch = shiftIdx(l.Latch, header)
			l.Body = shiftSet(l.Body, header)
			l.Exits = shiftSet(l.Exits, header)
			if l.PreHeader >= 0 {
				l.PreHeader = shiftIdx(l.PreHeader, header)
			}
		}
		newHeader := header + 1

		shiftedPreds := make([]int, len(preds))
		for i, p := range preds {
			shiftedPreds[i] = shiftIdx(p, header)
		}

		for _, p := range shiftedPreds {
			last := blocks[p].Last()
			switch last.Op {
			case ir.OpJmp:
				last.Labels = []string{label}
			case ir.OpBr:
				for i, l := range last.Labels {
					if l == headerLabel {
						last.Labels[i] = label
					}
				}
			}
			// A predecessor with a non-control final instruction simply
			// falls through into the newly inserted pre-header now that it
			// occupies the header's old slot; nothing to rewrite.
		}

		predSet := cfg.NewBlockSet(shiftedPreds...)
		for _, instr := range blocks[newHeader].Instrs {
			if instr.Op != ir.OpPhi {
				continue
			}
			for i, srcLabel := range instr.Labels {
				if srcIdx, ok := labelIndex[srcLabel]; ok && predSet.Has(srcIdx) {
					instr.Labels[i] = label
				}
			}
		}

		for _, i := range idxs {
			loops[i].PreHeader = header
		}
	}

	return blocks, labelIndex, nil
}

func shiftIdx(idx, threshold int) int {
	if idx < 0 {
		return idx
	}
	if idx >= threshold {
		return idx + 1
	}
	return idx
}

func shiftSet(s cfg.BlockSet, threshold int) cfg.BlockSet {
	out := cfg.NewBlockSet()
	for k := range s {
		out.Add(shiftIdx(k, threshold))
	}
	return out
}

func shiftLabelIndex(m map[string]int, threshold int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = shiftIdx(v, threshold)
	}
	return out
}

func insertAt(blocks []*cfg.Block, idx int, b *cfg.Block) []*cfg.Block {
	out := make([]*cfg.Block, 0, len(blocks)+1)
	out = append(out, blocks[:idx]...)
	out = append(out, b)
	out = append(out, blocks[idx:]...)
	return out
}
