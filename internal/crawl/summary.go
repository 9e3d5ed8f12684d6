package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/crawl/api"
	"github.com/agentic-research/crawl/internal/assemble"
)

// summarize runs every part of op concurrently and combines the grouped
// results into one composite record per key.
func (r *Runner) summarize(ctx context.Context, op *api.Operation, args Args, log *zap.Logger) ([]*assemble.Record, assemble.Report, error) {
	inputs := make([]assemble.Input, len(op.Parts))
	reports := make([]assemble.Report, len(op.Parts))

	targets := make([]*api.Operation, len(op.Parts))
	for i, p := range op.Parts {
		target, ok := r.catalog.Operation(p.Operation)
		if !ok {
			return nil, assemble.Report{}, fmt.Errorf("part %s: unknown operation %q", p.Name, p.Operation)
		}
		key, coll := partKey(target.Shape)
		if p.Collection != "" {
			coll = p.Collection
		}
		targets[i] = target
		inputs[i] = assemble.Input{Name: p.Name, Key: key, Collection: coll}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range op.Parts {
		i, p := i, p
		target := targets[i]
		g.Go(func() error {
			bound, err := bindArgs(target, args, bindRequired)
			if err != nil {
				return err
			}
			plog := log.With(zap.String("part", p.Name))
			v, rep, err := r.execute(ctx, target, bound, plog)
			if err != nil {
				return fmt.Errorf("part %s: %w", p.Name, err)
			}
			recs, ok := v.([]*assemble.Record)
			if !ok {
				return fmt.Errorf("part %s: operation %s does not produce grouped records", p.Name, p.Operation)
			}
			inputs[i].Records = recs
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, assemble.Report{}, err
	}

	var report assemble.Report
	for _, rep := range reports {
		report.Rows += rep.Rows
		report.BrokenChains += rep.BrokenChains
		report.Warnings = append(report.Warnings, rep.Warnings...)
	}
	out, err := assemble.Combine(inputs...)
	return out, report, err
}

// partKey returns the key field and collection of a grouped shape.
func partKey(s *api.Shape) (key, collection string) {
	if s == nil {
		return "", ""
	}
	switch s.Kind {
	case api.ShapeGroup:
		return s.Key, s.Collection
	case api.ShapeNest:
		if len(s.Levels) > 0 && len(s.Levels[0].Key) > 0 {
			return s.Levels[0].Key[0], s.Levels[0].Collection
		}
	}
	return "", ""
}
