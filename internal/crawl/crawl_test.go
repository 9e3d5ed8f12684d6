package crawl

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/crawl/api"
	"github.com/agentic-research/crawl/internal/assemble"
	"github.com/agentic-research/crawl/internal/config"
	"github.com/agentic-research/crawl/internal/encode"
	"github.com/agentic-research/crawl/internal/metrics"
	"github.com/agentic-research/crawl/internal/query"
)

const (
	gene   = "PF3D7_0100100"
	gene2  = "PF3D7_0100200"
	region = "Pf3D7_01"
)

// openChado loads testdata/chado.sql, a small slice of a Chado schema, into a
// fresh SQLite database.
func openChado(t *testing.T) *query.DB {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("testdata", "chado.sql"))
	require.NoError(t, err)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "chado.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range strings.Split(string(src), ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return query.Wrap(db, "sqlite")
}

func newTestRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	c, err := config.DefaultCatalog()
	require.NoError(t, err)
	return NewRunner(c, openChado(t), opts...)
}

func args(pairs ...string) Args {
	a := Args{}
	for i := 0; i+1 < len(pairs); i += 2 {
		a.Add(pairs[i], pairs[i+1])
	}
	return a
}

func sel(t *testing.T, res *Result, path string) []any {
	t.Helper()
	got, err := encode.Select(res.Envelope(), path)
	require.NoError(t, err)
	return got
}

func TestProperties(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	res, err := r.Run(ctx, "features/properties", args("features", gene, "features", gene2))
	require.NoError(t, err)
	assert.Equal(t, "features", res.Field)
	assert.NotEmpty(t, res.RequestID)

	assert.Equal(t, []any{"features/properties"}, sel(t, res, "$.response.name"))
	assert.Equal(t, []any{gene}, sel(t, res, "$.response.features[*].feature"), "features without props are absent")
	assert.Equal(t, []any{"first <note>", "second"}, sel(t, res, "$.response.features[0].props[*].prop"))
	assert.Equal(t, []any{"comment"}, sel(t, res, "$.response.features[0].props[0].proptype"))

	t.Run("aliases and delimited", func(t *testing.T) {
		res, err := r.Run(ctx, "features/properties", args("us", gene2+"|"+gene, "delimiter", "|"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Len())

		res, err = r.Run(ctx, "features/properties", args("uniqueName", gene))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Len())
	})

	t.Run("missing parameter", func(t *testing.T) {
		_, err := r.Run(ctx, "features/properties", Args{})
		require.Error(t, err)
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, CodeMissingParameter, ce.Code)
		assert.Equal(t, "features/properties", ce.Operation)
		assert.Contains(t, ce.Remediation, "Available query options are:")
		assert.Contains(t, ce.Remediation, "-features\t")
	})

	t.Run("unexpected argument", func(t *testing.T) {
		_, err := r.Run(ctx, "features/properties", args("features", gene, "colour", "red"))
		assert.Equal(t, CodeMisc, CodeOf(err))
		assert.ErrorContains(t, err, "colour")
	})
}

func TestUnknownQuery(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), "features/nope", Args{})
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeUnknownQuery, ce.Code)
	assert.Equal(t, 2, ce.Code.ExitStatus())
	assert.Contains(t, ce.Remediation, "features/summary")

	got, err := encode.Select(ce.Record(), "$.response.error.code")
	require.NoError(t, err)
	assert.Equal(t, []any{"UNKNOWN_QUERY"}, got)
}

func TestFeatureLoc(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	base := []string{"uniqueName", region, "start", "1", "end", "5000"}

	t.Run("nested", func(t *testing.T) {
		res, err := r.Run(ctx, "regions/featureloc", args(base...))
		require.NoError(t, err)
		assert.Equal(t, 4, res.Report.Rows)

		assert.Equal(t, []any{region}, sel(t, res, "$.response.uniqueName"))
		assert.Equal(t, []any{int64(1)}, sel(t, res, "$.response.start"))
		assert.Equal(t, []any{gene, gene2}, sel(t, res, "$.response.features[*].uniquename"))
		assert.Equal(t, []any{""}, sel(t, res, "$.response.features[0].parent"))
		assert.Equal(t, []any{""}, sel(t, res, "$.response.features[0].relationship_type"))
		assert.Equal(t, []any{"PF3D7_0100100.1"}, sel(t, res, "$.response.features[0].features[*].uniquename"))
		assert.Equal(t, []any{"part_of"}, sel(t, res, "$.response.features[0].features[0].relationship_type"))
		assert.Equal(t,
			[]any{"PF3D7_0100100.1:exon:1", "PF3D7_0100100.1:pep", "PF3D7_0100100.1:exon:2"},
			sel(t, res, "$.response.features[0].features[0].features[*].uniquename"))
		assert.Equal(t, []any{"derives_from"},
			sel(t, res, "$.response.features[0].features[0].features[1].relationship_type"))
		assert.Empty(t, sel(t, res, "$.response.features[1].features[*]"))
	})

	t.Run("flattened", func(t *testing.T) {
		res, err := r.Run(ctx, "regions/featureloc", args(append(base, "flattened", "true")...))
		require.NoError(t, err)
		assert.Equal(t, 6, res.Len())
		assert.Equal(t,
			[]any{"", gene, "PF3D7_0100100.1", "PF3D7_0100100.1", "PF3D7_0100100.1", ""},
			sel(t, res, "$.response.features[*].parent"))
		assert.Empty(t, sel(t, res, "$.response.features[*].features"))
	})

	t.Run("window", func(t *testing.T) {
		res, err := r.Run(ctx, "regions/featureloc", args("uniqueName", region, "start", "2500", "end", "5000"))
		require.NoError(t, err)
		assert.Equal(t, []any{gene2}, sel(t, res, "$.response.features[*].uniquename"))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := r.Run(ctx, "regions/featureloc", args("uniqueName", "nope", "start", "1", "end", "5"))
		assert.Equal(t, CodeDataNotFound, CodeOf(err))
	})

	t.Run("bad int", func(t *testing.T) {
		_, err := r.Run(ctx, "regions/featureloc", args("uniqueName", region, "start", "one", "end", "5"))
		assert.Equal(t, CodeMisc, CodeOf(err))
		assert.ErrorContains(t, err, "not an integer")
	})
}

func TestTerms(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), "features/terms", args("features", gene, "features", gene2))
	require.NoError(t, err)

	assert.Equal(t, []any{gene, gene2}, sel(t, res, "$.response.features[*].feature"))
	assert.Equal(t, []any{"DNA replication"}, sel(t, res, "$.response.features[0].terms[*].cvterm"))
	assert.Equal(t, []any{"GO:0006260"}, sel(t, res, "$.response.features[0].terms[0].accession"))
	assert.Equal(t, []any{"IDA", "ISS"}, sel(t, res, "$.response.features[0].terms[0].props[*].prop"))
	assert.Equal(t, []any{"PMID:1"}, sel(t, res, "$.response.features[0].terms[0].pubs[*].pub"))
	assert.Equal(t, []any{"Q8IM15"}, sel(t, res, "$.response.features[0].terms[0].dbxrefs[*].accession"))

	rec := res.Value.([]*assemble.Record)[1].Collection("terms")[0]
	assert.Equal(t, []string{"cvterm", "cv", "is_not", "accession", "feature_cvterm_id", "props", "pubs", "dbxrefs"}, rec.Names())
	assert.Empty(t, rec.Collection("props"))
	assert.Empty(t, rec.Collection("pubs"))

	t.Run("vocabulary filter", func(t *testing.T) {
		res, err := r.Run(context.Background(), "features/terms",
			args("features", gene, "controlled_vocabularies", "molecular_function"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.Len())
	})
}

func TestSummary(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), "features/summary", args("features", gene))
	require.NoError(t, err)

	recs := res.Value.([]*assemble.Record)
	require.Len(t, recs, 1)
	assert.Equal(t,
		[]string{"feature", "properties", "terms", "coordinates", "pubs", "dbxrefs", "relationships"},
		recs[0].Names())
	assert.Equal(t, gene, recs[0].Value("feature"))
	assert.Len(t, recs[0].Collection("properties"), 2)
	assert.Len(t, recs[0].Collection("terms"), 1)
	assert.Equal(t, region, recs[0].Collection("coordinates")[0].Value("region"))
	assert.Len(t, recs[0].Collection("pubs"), 1)
	assert.Empty(t, recs[0].Collection("relationships"), "the gene is no relationship subject")

	_, err = r.Run(context.Background(), "features/summary", Args{})
	assert.Equal(t, CodeMissingParameter, CodeOf(err))
}

func TestRowsOperations(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	res, err := r.Run(ctx, "regions/inorganism", args("taxonID", "5833"))
	require.NoError(t, err)
	assert.Equal(t, "regions", res.Field)
	assert.Equal(t, []any{"5833"}, sel(t, res, "$.response.taxonID"))
	assert.Equal(t, []any{region}, sel(t, res, "$.response.regions[*].uniquename"))
	assert.Equal(t, []any{int64(640851)}, sel(t, res, "$.response.regions[0].length"))

	res, err = r.Run(ctx, "organisms/list", Args{})
	require.NoError(t, err)
	assert.Equal(t, []any{"Pfalciparum", "Pvivax"}, sel(t, res, "$.response.organisms[*].common_name"))

	res, err = r.Run(ctx, "features/relationships", args("features", "PF3D7_0100100.1:pep"))
	require.NoError(t, err)
	assert.Equal(t, []any{"PF3D7_0100100.1"}, sel(t, res, "$.response.results[0].relations[*].related"))

	t.Run("genes", func(t *testing.T) {
		res, err := r.Run(ctx, "genes/inorganism", args("taxonID", "5833"))
		require.NoError(t, err)
		assert.Equal(t, []any{gene, gene2}, sel(t, res, "$.response.genes[*].uniquename"))

		res, err = r.Run(ctx, "genes/changes", args("taxonomyID", "5833", "since", "2026-01-01"))
		require.NoError(t, err)
		assert.Equal(t, []any{"5833"}, sel(t, res, "$.response.taxonID"))
		assert.Equal(t, []any{"2026-01-01"}, sel(t, res, "$.response.since"))
		assert.Equal(t, []any{gene, "PF3D7_0100100.1"}, sel(t, res, "$.response.results[*].uniquename"))
	})

	t.Run("organism changes", func(t *testing.T) {
		res, err := r.Run(ctx, "organisms/changes", args("since", "2026-01-01"))
		require.NoError(t, err)
		assert.Equal(t, []any{"5833", "5855"}, sel(t, res, "$.response.results[*].taxonID"))
		assert.Equal(t, []any{int64(2), int64(1)}, sel(t, res, "$.response.results[*].count"))

		res, err = r.Run(ctx, "organisms/changes", args("since", "2027-01-01"))
		require.NoError(t, err)
		assert.Equal(t, []any{int64(0), int64(0)}, sel(t, res, "$.response.results[*].count"))
	})

	t.Run("names and lengths", func(t *testing.T) {
		res, err := r.Run(ctx, "features/withnamelike", args("term", "pep"))
		require.NoError(t, err)
		assert.Equal(t, []any{"PF3D7_0100100.1:pep"}, sel(t, res, "$.response.features[*].uniquename"))

		res, err = r.Run(ctx, "features/length", args("uniquename", region))
		require.NoError(t, err)
		assert.Equal(t, []any{int64(640851)}, sel(t, res, "$.response.length[*].length"))

		res, err = r.Run(ctx, "features/length", args("uniquename", gene))
		require.NoError(t, err)
		assert.Equal(t, []any{gene}, sel(t, res, "$.response.uniquename"))
		assert.Equal(t, []any{int64(1900)}, sel(t, res, "$.response.length[*].length"))
		assert.Equal(t, []any{region}, sel(t, res, "$.response.length[*].region"))

		_, err = r.Run(ctx, "features/length", args("uniquename", "nope"))
		assert.Equal(t, CodeDataNotFound, CodeOf(err))
	})

	t.Run("orthologues in organism", func(t *testing.T) {
		res, err := r.Run(ctx, "features/orthologuesinorganism", args("taxonID", "5833"))
		require.NoError(t, err)
		assert.Equal(t, []any{gene}, sel(t, res, "$.response.orthologues[*].feature"))
		assert.Equal(t, []any{"PVX_000100"}, sel(t, res, "$.response.orthologues[*].orthologue"))
		assert.Equal(t, []any{"Pvivax"}, sel(t, res, "$.response.orthologues[*].organism"))

		res, err = r.Run(ctx, "features/orthologues", args("features", gene))
		require.NoError(t, err)
		assert.Equal(t, []any{"PVX_000100"}, sel(t, res, "$.response.features[0].orthologues[*].orthologue"))
	})
}

type fakeQuerier struct {
	rows []assemble.Row
	err  error
	got  []map[string]any
}

func (f *fakeQuerier) Query(_ context.Context, _ string, args map[string]any) ([]assemble.Row, error) {
	f.got = append(f.got, args)
	return f.rows, f.err
}

func fakeCatalog() *api.Catalog {
	return &api.Catalog{Operations: []api.Operation{{
		Name: "features/pubs",
		SQL:  "SELECT 1",
		Arguments: []api.Argument{
			{Name: "features", Type: "list", Required: true},
			{Name: "verbose", Type: "bool"},
		},
		Shape: &api.Shape{Kind: api.ShapeGroup, Key: "feature", Collection: "pubs"},
	}}}
}

func TestRunnerClassifiesFailures(t *testing.T) {
	m := metrics.New()
	core, logs := observer.New(zap.WarnLevel)
	fq := &fakeQuerier{rows: []assemble.Row{assemble.RowOf("feature", nil, "pub", "P1")}}
	r := NewRunner(fakeCatalog(), fq, WithMetrics(m), WithLogger(zap.New(core)))

	_, err := r.Run(context.Background(), "features/pubs", args("features", "F1"))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeDataParsing, ce.Code)
	assert.Equal(t, assemble.KindMalformedRow, ce.Kind)
	assert.ErrorIs(t, err, assemble.ErrMalformedRow)
	assert.Equal(t, 5, ce.Code.ExitStatus())

	fq.rows, fq.err = nil, errors.New("connection refused")
	_, err = r.Run(context.Background(), "features/pubs", args("features", "F1"))
	assert.Equal(t, CodeMisc, CodeOf(err))

	sum, err := m.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2.0, sum["crawl_failures_total"])
	assert.Equal(t, 2, logs.FilterMessage("operation failed").Len())
}

func TestRunnerRecordsMetrics(t *testing.T) {
	m := metrics.New()
	fq := &fakeQuerier{rows: []assemble.Row{
		assemble.RowOf("feature", "F1", "pub", "P1"),
		assemble.RowOf("feature", "F1", "pub", "P2"),
	}}
	r := NewRunner(fakeCatalog(), fq, WithMetrics(m))

	res, err := r.Run(context.Background(), "features/pubs", args("features", "F1", "verbose", "yes"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
	assert.Equal(t, true, fq.got[0]["verbose"])
	assert.Equal(t, []string{"F1"}, fq.got[0]["features"])
	assert.Equal(t, true, fq.got[0]["has_features"])

	sum, err := m.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2.0, sum["crawl_rows_total"])
	assert.Equal(t, 1.0, sum["crawl_entities_total"])
}

func TestSummaryUnknownPart(t *testing.T) {
	c := fakeCatalog()
	c.Operations = append(c.Operations, api.Operation{
		Name:      "features/summary",
		Arguments: c.Operations[0].Arguments,
		Parts: []api.Part{
			{Name: "pubs", Operation: "features/pubs"},
			{Name: "gone", Operation: "features/gone"},
		},
	})
	fq := &fakeQuerier{rows: []assemble.Row{assemble.RowOf("feature", "F1", "pub", "P1")}}
	r := NewRunner(c, fq)

	_, err := r.Run(context.Background(), "features/summary", args("features", "F1"))
	assert.ErrorContains(t, err, `unknown operation "features/gone"`)
	assert.Empty(t, fq.got, "no part runs before every part resolves")
}

func TestReshape(t *testing.T) {
	c, err := config.DefaultCatalog()
	require.NoError(t, err)
	r := NewRunner(c, nil)
	ctx := context.Background()

	rows := []assemble.Row{
		assemble.RowOf("feature", gene, "pub", "PMID:1", "title", "A"),
		assemble.RowOf("feature", gene, "pub", "PMID:2", "title", "B"),
	}
	res, err := r.Reshape(ctx, "features/pubs", rows, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"PMID:1", "PMID:2"}, sel(t, res, "$.response.features[0].pubs[*].pub"))

	_, err = r.Reshape(ctx, "features/terms", []assemble.Row{
		assemble.RowOf("feature", gene, "cvterm", "x", "feature_cvterm_id", int64(1)),
	}, nil)
	assert.ErrorContains(t, err, "attachments need a database")

	_, err = r.Reshape(ctx, "nope", rows, nil)
	assert.Equal(t, CodeUnknownQuery, CodeOf(err))

	t.Run("summaries are rejected", func(t *testing.T) {
		_, err := r.Reshape(ctx, "features/summary", []assemble.Row{
			assemble.RowOf("feature", "F1", "prop", "a"),
			assemble.RowOf("feature", "F1", "prop", "b"),
		}, nil)
		assert.Equal(t, CodeMisc, CodeOf(err))
		assert.ErrorContains(t, err, "cannot reshape rows")
	})

	t.Run("tree mode argument", func(t *testing.T) {
		loc := []assemble.Row{
			assemble.RowOf("l1_uniquename", "chr1", "l2_uniquename", "geneA", "l3_uniquename", nil),
			assemble.RowOf("l1_uniquename", "chr1", "l2_uniquename", "geneB", "l3_uniquename", nil),
		}
		res, err := r.Reshape(ctx, "regions/featureloc", loc, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Len())
		assert.Equal(t, []any{""}, sel(t, res, "$.response.features[0].relationship_type"))
		assert.Equal(t, []any{"geneA", "geneB"}, sel(t, res, "$.response.features[0].features[*].uniquename"))

		res, err = r.Reshape(ctx, "regions/featureloc", loc, Args{"flattened": {"true"}})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Len())
		assert.Equal(t, []any{"", "chr1", "chr1"}, sel(t, res, "$.response.features[*].parent"))

		_, err = r.Reshape(ctx, "regions/featureloc", loc, Args{"colour": {"red"}})
		assert.ErrorContains(t, err, "unexpected arguments: colour")
	})
}

func TestParseArgs(t *testing.T) {
	a, err := ParseArgs([]string{"features=F1", "features=F2", "region=chr=1"})
	require.NoError(t, err)
	assert.Equal(t, Args{"features": {"F1", "F2"}, "region": {"chr=1"}}, a)

	_, err = ParseArgs([]string{"features"})
	assert.Error(t, err)
}

func TestBindArgs(t *testing.T) {
	op := &api.Operation{Arguments: []api.Argument{
		{Name: "features", Type: "list", Aliases: []string{"u"}, Delimited: []string{"us"}},
		{Name: "relationships", Type: "list", Default: "part_of,derives_from"},
		{Name: "region"},
		{Name: "flat", Type: "bool", Default: "false"},
	}}

	bound, err := bindArgs(op, Args{"u": {"A"}, "us": {"B; C"}, "delimiter": {";"}}, bindRequest)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, bound["features"])
	assert.Equal(t, true, bound["has_features"])
	assert.Equal(t, []string{"part_of", "derives_from"}, bound["relationships"])
	assert.Nil(t, bound["region"])
	assert.Contains(t, bound, "region")
	assert.Equal(t, false, bound["flat"])

	bound, err = bindArgs(op, Args{}, bindRequest)
	require.NoError(t, err)
	assert.Equal(t, []string{}, bound["features"])
	assert.Equal(t, false, bound["has_features"])

	_, err = bindArgs(op, Args{"flat": {"maybe"}}, bindRequest)
	assert.ErrorContains(t, err, "not a boolean")

	_, err = bindArgs(op, Args{"other": {"x"}}, bindRequired)
	assert.NoError(t, err)

	required := &api.Operation{Arguments: []api.Argument{{Name: "uniqueName", Required: true}}}
	_, err = bindArgs(required, Args{}, bindRequest)
	assert.Equal(t, CodeMissingParameter, CodeOf(err))
	bound, err = bindArgs(required, Args{}, bindStrict)
	require.NoError(t, err)
	assert.Nil(t, bound["uniqueName"])
	_, err = bindArgs(required, Args{"other": {"x"}}, bindStrict)
	assert.ErrorContains(t, err, "unexpected arguments: other")
}
