// Package crawl runs catalog operations: it binds request arguments, queries
// the database and assembles the rows into the response the operation's shape
// describes.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/crawl/api"
	"github.com/agentic-research/crawl/internal/assemble"
	"github.com/agentic-research/crawl/internal/config"
	"github.com/agentic-research/crawl/internal/metrics"
	"github.com/agentic-research/crawl/internal/query"
)

// Runner executes operations from one catalog against one database.
// It holds no per-request state and is safe for concurrent use.
type Runner struct {
	catalog *api.Catalog
	db      query.Querier
	log     *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records every run on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

func NewRunner(c *api.Catalog, db query.Querier, opts ...Option) *Runner {
	r := &Runner{catalog: c, db: db, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Catalog returns the catalog the runner serves.
func (r *Runner) Catalog() *api.Catalog { return r.catalog }

// Result is the outcome of one operation.
type Result struct {
	Operation string
	RequestID string
	// Field is the response field holding Value.
	Field string
	// Value is []*assemble.Record or, for tree shapes, []*assemble.Node.
	Value  any
	Echo   *assemble.Record
	Report assemble.Report
}

// Envelope renders the response: the operation name, echoed arguments, the
// result and any row warnings.
func (res *Result) Envelope() *assemble.Record {
	body := assemble.NewRecord(3).Set("name", res.Operation)
	if res.Echo != nil {
		for _, n := range res.Echo.Names() {
			body.Set(n, res.Echo.Value(n))
		}
	}
	body.Set(res.Field, res.Value)
	if w := res.Report.WarningStrings(); len(w) > 0 {
		body.Set("warnings", w)
	}
	return assemble.NewRecord(1).Set("response", body)
}

// Len returns the number of top-level entities in the result.
func (res *Result) Len() int {
	switch v := res.Value.(type) {
	case []*assemble.Record:
		return len(v)
	case []*assemble.Node:
		return len(v)
	}
	return 0
}

// Run executes the named operation. Failures are returned as *Error.
func (r *Runner) Run(ctx context.Context, name string, args Args) (*Result, error) {
	res := &Result{Operation: name, RequestID: uuid.NewString()}
	log := r.log.With(zap.String("operation", name), zap.String("request_id", res.RequestID))
	start := time.Now()

	op, ok := r.catalog.Operation(name)
	if !ok {
		err := &Error{
			Operation:   name,
			Code:        CodeUnknownQuery,
			Message:     fmt.Sprintf("unknown query %q", name),
			Remediation: OperationList(r.catalog),
		}
		r.metrics.Failed(name, string(err.Code))
		log.Warn("unknown operation")
		return nil, err
	}
	res.Field = op.ResultField()

	if err := r.run(ctx, op, args, res, log); err != nil {
		e := classify(name, err, Usage(op))
		r.metrics.Failed(name, string(e.Code))
		log.Warn("operation failed", zap.String("code", string(e.Code)), zap.Error(err))
		return nil, e
	}

	elapsed := time.Since(start)
	r.metrics.Observe(name, elapsed.Seconds())
	r.metrics.Assembled(name, res.Report.Rows, res.Len(), res.Report.BrokenChains)
	log.Info("operation complete",
		zap.Int("rows", res.Report.Rows),
		zap.Int("entities", res.Len()),
		zap.Int("warnings", len(res.Report.Warnings)),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

func (r *Runner) run(ctx context.Context, op *api.Operation, args Args, res *Result, log *zap.Logger) error {
	bound, err := bindArgs(op, args, bindRequest)
	if err != nil {
		return err
	}
	if len(op.Echo) > 0 {
		res.Echo = assemble.NewRecord(len(op.Echo))
		for _, n := range op.Echo {
			res.Echo.Set(n, bound[n])
		}
	}

	if len(op.Parts) > 0 {
		res.Value, res.Report, err = r.summarize(ctx, op, args, log)
		return err
	}

	res.Value, res.Report, err = r.execute(ctx, op, bound, log)
	if err != nil {
		return err
	}
	if op.RequireRows && res.Report.Rows == 0 {
		return &Error{Code: CodeDataNotFound, Message: "no results were found for the query"}
	}
	return nil
}

// Reshape assembles rows that were read elsewhere with the named
// operation's shape. The operation's SQL is not used. args may select shape
// behaviour such as a tree's mode argument; required arguments need no value.
// Operations that combine other operations cannot reshape rows.
func (r *Runner) Reshape(ctx context.Context, name string, rows []assemble.Row, args Args) (*Result, error) {
	op, ok := r.catalog.Operation(name)
	if !ok {
		return nil, &Error{
			Operation:   name,
			Code:        CodeUnknownQuery,
			Message:     fmt.Sprintf("unknown query %q", name),
			Remediation: OperationList(r.catalog),
		}
	}
	res := &Result{Operation: name, RequestID: uuid.NewString(), Field: op.ResultField()}
	log := r.log.With(zap.String("operation", name), zap.String("request_id", res.RequestID))

	if len(op.Parts) > 0 {
		err := &Error{
			Operation: name,
			Code:      CodeMisc,
			Message:   fmt.Sprintf("%s combines other operations and cannot reshape rows", name),
		}
		r.metrics.Failed(name, string(err.Code))
		return nil, err
	}

	bound, err := bindArgs(op, args, bindStrict)
	if err == nil {
		res.Value, res.Report, err = r.shape(ctx, op, rows, bound, log)
	}
	if err != nil {
		e := classify(name, err, Usage(op))
		r.metrics.Failed(name, string(e.Code))
		return nil, e
	}
	r.metrics.Assembled(name, res.Report.Rows, res.Len(), res.Report.BrokenChains)
	return res, nil
}

// execute queries op and assembles its rows.
func (r *Runner) execute(ctx context.Context, op *api.Operation, bound map[string]any, log *zap.Logger) (any, assemble.Report, error) {
	rows, err := r.db.Query(ctx, op.SQL, bound)
	if err != nil {
		if errors.Is(err, query.ErrMissingArg) {
			return nil, assemble.Report{}, &Error{Code: CodeMissingParameter, Message: err.Error(), Err: err}
		}
		return nil, assemble.Report{}, err
	}
	log.Debug("query returned", zap.Int("rows", len(rows)))
	return r.shape(ctx, op, rows, bound, log)
}

func (r *Runner) shape(ctx context.Context, op *api.Operation, rows []assemble.Row, bound map[string]any, log *zap.Logger) (any, assemble.Report, error) {
	report := assemble.Report{Rows: len(rows)}
	s := op.Shape
	if s == nil || s.Kind == api.ShapeRows {
		out := make([]*assemble.Record, len(rows))
		for i, row := range rows {
			out[i] = row.Record()
		}
		return out, report, nil
	}

	var aopts []assemble.Option
	if s.KeepKey {
		aopts = append(aopts, assemble.KeepKey())
	}
	if s.DedupLeaves {
		aopts = append(aopts, assemble.DedupLeaves())
	}
	aopts = append(aopts, assemble.WithLogger(log))

	switch s.Kind {
	case api.ShapeGroup:
		out, err := assemble.Group(rows, s.Key, s.Collection, aopts...)
		return out, report, err

	case api.ShapeNest:
		out, err := assemble.Nest(rows, config.NestLevels(s), aopts...)
		if err != nil {
			return nil, report, err
		}
		if err := r.attach(ctx, s, out, bound); err != nil {
			return nil, report, err
		}
		return out, report, nil

	case api.ShapeTree:
		mode, err := assemble.ParseMode(s.Mode)
		if err != nil {
			return nil, report, err
		}
		if s.ModeArg != "" {
			if flat, _ := bound[s.ModeArg].(bool); flat {
				mode = assemble.Flattened
			}
		}
		aopts = append(aopts, assemble.WithNodeFields(s.Parent, s.Children))
		t, err := assemble.Assemble(rows, config.TreeLevels(s), mode, aopts...)
		if err != nil {
			return nil, report, err
		}
		return t.Nodes, t.Report, nil
	}
	return nil, report, fmt.Errorf("unknown shape kind %q", s.Kind)
}

// attach runs every attachment query of s concurrently, then hangs the
// grouped results on the records of the attachment's level.
func (r *Runner) attach(ctx context.Context, s *api.Shape, out []*assemble.Record, bound map[string]any) error {
	if len(s.Attach) == 0 {
		return nil
	}
	if r.db == nil {
		return errors.New("attachments need a database")
	}
	levels := levelRecords(out, s.Levels)
	inputs := make([]assemble.Input, len(s.Attach))

	g, ctx := errgroup.WithContext(ctx)
	for i, a := range s.Attach {
		i, a := i, a
		parents := levels[a.Level]
		inputs[i] = assemble.Input{Name: a.Name, Key: a.Key, Collection: a.Name}
		ids := distinctValues(parents, a.IDField)
		if len(ids) == 0 {
			continue
		}
		g.Go(func() error {
			args := make(map[string]any, len(bound)+1)
			for k, v := range bound {
				args[k] = v
			}
			args["ids"] = ids
			rows, err := r.db.Query(ctx, a.SQL, args)
			if err != nil {
				return fmt.Errorf("attach %s: %w", a.Name, err)
			}
			grouped, err := assemble.Group(rows, a.Key, a.Name)
			if err != nil {
				return fmt.Errorf("attach %s: %w", a.Name, err)
			}
			inputs[i].Records = grouped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, a := range s.Attach {
		if err := assemble.Attach(levels[a.Level], a.IDField, inputs[i]); err != nil {
			return err
		}
	}
	return nil
}

// levelRecords lists the records of every nest level, root first.
func levelRecords(out []*assemble.Record, levels []api.Level) [][]*assemble.Record {
	all := make([][]*assemble.Record, len(levels))
	all[0] = out
	for i := 1; i < len(levels); i++ {
		coll := levels[i-1].Collection
		for _, p := range all[i-1] {
			all[i] = append(all[i], p.Collection(coll)...)
		}
	}
	return all
}

func distinctValues(recs []*assemble.Record, field string) []any {
	seen := make(map[assemble.Key]struct{}, len(recs))
	var out []any
	for _, rec := range recs {
		v := rec.Value(field)
		if v == nil {
			continue
		}
		k := assemble.KeyOf(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
