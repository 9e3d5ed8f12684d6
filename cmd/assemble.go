package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/crawl/api"
	"github.com/agentic-research/crawl/internal/assemble"
	"github.com/agentic-research/crawl/internal/crawl"
	"github.com/agentic-research/crawl/internal/ingest"
)

var (
	inputPath   string
	sqlitePath  string
	sqliteQuery string
	groupKey    string
	collection  string
	treeKeys    []string
	flattened   bool
	shapeOf     string
	nullTokens  []string
	keepKey     bool
	dedupLeaves bool
	parentField string
	childField  string
	shapeArgs   []string
)

func init() {
	f := assembleCmd.Flags()
	f.StringVarP(&inputPath, "input", "i", "", "JSON rows to read; stdin when empty and --sqlite is not set")
	f.StringVar(&sqlitePath, "sqlite", "", "Read rows from this SQLite database")
	f.StringVar(&sqliteQuery, "sql", "", "Query to run against --sqlite")
	f.StringVar(&groupKey, "group", "", "Group rows by this column")
	f.StringVar(&collection, "collection", "features", "Collection name for --group")
	f.StringSliceVar(&treeKeys, "tree", nil, "Build a tree from these level key columns, root first")
	f.BoolVar(&flattened, "flattened", false, "Emit the tree as a flat list, with --tree or a tree --operation")
	f.StringVar(&parentField, "parent-field", "", "Name of the parent reference field of tree nodes")
	f.StringVar(&childField, "children-field", "", "Name of the children field of nested tree nodes")
	f.StringVar(&shapeOf, "operation", "", "Assemble with the shape of this catalog operation")
	f.StringArrayVarP(&shapeArgs, "arg", "a", nil, "Argument of --operation as name=value, e.g. flattened=true")
	f.StringSliceVar(&nullTokens, "null-token", nil, "Text values read as NULL, e.g. None")
	f.BoolVar(&keepKey, "keep-key", false, "Keep the group key column in each leaf")
	f.BoolVar(&dedupLeaves, "dedup-leaves", false, "Drop leaves equal to an earlier leaf of the same parent")
	rootCmd.AddCommand(assembleCmd)
}

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble rows from a JSON document or a SQLite query",
	Long: `Reads flat rows and assembles them by group, tree or the shape of a
catalog operation. JSON input is either an array of objects or an object
with "columns" and "rows".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		rows, err := readRows(cmd)
		if err != nil {
			return err
		}

		catalog, name, err := assemblyCatalog()
		if err != nil {
			return err
		}
		opArgs, err := operationArgs(catalog, name)
		if err != nil {
			return err
		}
		runner := crawl.NewRunner(catalog, nil, crawl.WithLogger(log))
		res, err := runner.Reshape(cmd.Context(), name, rows, opArgs)
		if err != nil {
			return err
		}
		if !res.Report.OK() {
			log.Warn("rows skipped", zap.Int("count", len(res.Report.Warnings)))
		}
		return writeResult(cmd.OutOrStdout(), res.Value)
	},
}

func readRows(cmd *cobra.Command) ([]assemble.Row, error) {
	opts := []ingest.Option{ingest.WithNullTokens(nullTokens...)}
	if sqlitePath != "" {
		if sqliteQuery == "" {
			return nil, errors.New("--sqlite needs --sql")
		}
		return ingest.LoadSQLite(cmd.Context(), sqlitePath, sqliteQuery, opts...)
	}

	var r io.Reader = cmd.InOrStdin()
	if inputPath != "" && inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return ingest.DecodeJSON(r, opts...)
}

// assemblyCatalog returns the catalog and operation to reshape with: the
// named catalog operation, or a one-operation catalog built from the flags.
func assemblyCatalog() (*api.Catalog, string, error) {
	if shapeOf != "" {
		c, err := loadCatalog()
		return c, shapeOf, err
	}

	shape := &api.Shape{Kind: api.ShapeRows, KeepKey: keepKey, DedupLeaves: dedupLeaves}
	switch {
	case groupKey != "" && len(treeKeys) > 0:
		return nil, "", errors.New("--group and --tree are mutually exclusive")
	case groupKey != "":
		shape.Kind = api.ShapeGroup
		shape.Key = groupKey
		shape.Collection = collection
	case len(treeKeys) > 0:
		shape.Kind = api.ShapeTree
		shape.Mode = assemble.Nested.String()
		if flattened {
			shape.Mode = assemble.Flattened.String()
		}
		shape.Parent = parentField
		shape.Children = childField
		for _, k := range treeKeys {
			shape.Levels = append(shape.Levels, api.Level{Key: []string{k}})
		}
	}
	return &api.Catalog{Operations: []api.Operation{{Name: "assemble", Shape: shape}}}, "assemble", nil
}

// operationArgs collects the --arg values for a catalog operation. With
// --flattened it also sets the operation's tree mode argument.
func operationArgs(c *api.Catalog, name string) (crawl.Args, error) {
	if shapeOf == "" {
		if len(shapeArgs) > 0 {
			return nil, errors.New("--arg needs --operation")
		}
		return nil, nil
	}
	args, err := crawl.ParseArgs(shapeArgs)
	if err != nil {
		return nil, err
	}
	if !flattened {
		return args, nil
	}
	op, ok := c.Operation(name)
	if !ok {
		// Reshape reports the unknown operation.
		return args, nil
	}
	if op.Shape == nil || op.Shape.Kind != api.ShapeTree || op.Shape.ModeArg == "" {
		return nil, fmt.Errorf("--flattened: %s does not build a tree with a mode argument", name)
	}
	args.Add(op.Shape.ModeArg, "true")
	return args, nil
}
