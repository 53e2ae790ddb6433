// Package driver applies a named optimization pass to every function of a
// program, rebuilding whatever transient structure (blocks, CFG, loops) the
// pass needs and flattening back to the function's instruction stream when
// it's done — the "driver glue" component of §2, grounded on the teacher's
// phased main.go pipeline and kanso's OptimizationPipeline shape.
package driver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tacopt/internal/analysis"
	"tacopt/internal/cfg"
	"tacopt/internal/dom"
	"tacopt/internal/ir"
	"tacopt/internal/loop"
	"tacopt/internal/lvn"
	"tacopt/internal/opt"
	"tacopt/internal/ssaform"
)

// Pass transforms a single function's instruction stream in place.
type Pass func(fn *ir.Function) error

var registry = map[string]Pass{
	"trivial-dce":  trivialDCE,
	"local-dce":    localDCE,
	"liveness-dce": livenessDCE,
	"lvn":          lvnPass,
	"dse":          deadStoreElimination,
	"licm":         licmPass,
	"const-prop":   constPropPass,
	"ssa":          ssaPass,
}

// Names returns every registered pass name in sorted order, for CLI help text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// Lookup resolves a pass by name.
func Lookup(name string) (Pass, bool) {
	p, ok := registry[name]
	return p, ok
}

// Run applies pass to every function of prog concurrently via errgroup: each
// invocation reads and rewrites only its own function's instructions, so
// fan-out across functions needs no synchronization, realizing §5's "passes
// may be parallelized across functions externally without any change to the
// core" directly.
func Run(ctx context.Context, prog *ir.Program, pass Pass) error {
	g, _ := errgroup.WithContext(ctx)
	for _, fn := range prog.Functions {
		fn := fn
		g.Go(func() error {
			if err := pass(fn); err != nil {
				return fmt.Errorf("function %q: %w", fn.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RunNamed resolves each name in turn and applies it to the whole program,
// in the order given, each pass running to completion before the next starts.
func RunNamed(ctx context.Context, prog *ir.Program, names []string) error {
	for _, name := range names {
		pass, ok := Lookup(name)
		if !ok {
			return fmt.Errorf("unknown pass %q (available: %v)", name, Names())
		}
		if err := Run(ctx, prog, pass); err != nil {
			return err
		}
	}
	return nil
}

func trivialDCE(fn *ir.Function) error {
	opt.TrivialDCE(fn)
	return nil
}

func localDCE(fn *ir.Function) error {
	return withBlocks(fn, func(blocks []*cfg.Block) error {
		opt.LocalDCE(blocks)
		return nil
	})
}

func lvnPass(fn *ir.Function) error {
	return withBlocks(fn, func(blocks []*cfg.Block) error {
		lvn.Run(blocks)
		return nil
	})
}

func livenessDCE(fn *ir.Function) error {
	return withGraph(fn, func(g *cfg.Graph) error {
		live := analysis.Live(g)
		opt.LivenessDCE(g, live)
		return nil
	})
}

func deadStoreElimination(fn *ir.Function) error {
	return withGraph(fn, func(g *cfg.Graph) error {
		alias := analysis.MayAlias(g, fn.ArgNames())
		opt.DeadStoreElimination(g, alias)
		return nil
	})
}

func licmPass(fn *ir.Function) error {
	blocks, labelIndex := cfg.Split(fn.Instrs)
	g, err := cfg.Build(fn.Name, blocks, labelIndex)
	if err != nil {
		return err
	}
	info := dom.Compute(g)
	loops := loop.Discover(g, info)
	if len(loops) == 0 {
		return nil
	}
	blocks, _, err = loop.Normalize(fn.Name, blocks, labelIndex, loops, fn.Name+"_pre", 0)
	if err != nil {
		return err
	}
	opt.LICM(blocks, loops)
	fn.Instrs = cfg.Flatten(blocks)
	return nil
}

func constPropPass(fn *ir.Function) error {
	return withGraph(fn, func(g *cfg.Graph) error {
		analysis.ConstProp(g, opt.ConstPropRewrite)
		return nil
	})
}

// ssaPass converts fn into (unpruned) SSA form: synthesize a single entry,
// normalize every natural loop's header with a pre-header (§4.4's premise
// for §4.5 — φ-placement walks a dominator tree rooted at a single entry,
// and a loop header needs exactly one non-body predecessor for its
// pre-header-fed φ to be well-formed), then place and rename φs.
func ssaPass(fn *ir.Function) error {
	blocks, labelIndex := cfg.Split(fn.Instrs)
	blocks, labelIndex, _ = ssaform.EnsureSingleEntry(blocks, labelIndex, fn.Name+"_entry")

	g, err := cfg.Build(fn.Name, blocks, labelIndex)
	if err != nil {
		return err
	}
	info := dom.Compute(g)

	if loops := loop.Discover(g, info); len(loops) > 0 {
		blocks, labelIndex, err = loop.Normalize(fn.Name, blocks, labelIndex, loops, fn.Name+"_pre", 0)
		if err != nil {
			return err
		}
		g, err = cfg.Build(fn.Name, blocks, labelIndex)
		if err != nil {
			return err
		}
		info = dom.Compute(g)
	}

	phis := ssaform.InsertPhis(blocks, info)
	ssaform.Rename(g, info, blocks, phis, fn.ArgNames())
	fn.Instrs = cfg.Flatten(blocks)
	return nil
}

func withBlocks(fn *ir.Function, f func(blocks []*cfg.Block) error) error {
	blocks, _ := cfg.Split(fn.Instrs)
	if err := f(blocks); err != nil {
		return err
	}
	fn.Instrs = cfg.Flatten(blocks)
	return nil
}

func withGraph(fn *ir.Function, f func(g *cfg.Graph) error) error {
	blocks, labelIndex := cfg.Split(fn.Instrs)
	g, err := cfg.Build(fn.Name, blocks, labelIndex)
	if err != nil {
		return err
	}
	if err := f(g); err != nil {
		return err
	}
	fn.Instrs = cfg.Flatten(g.Blocks)
	return nil
}
