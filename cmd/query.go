package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/crawl/internal/config"
	"github.com/agentic-research/crawl/internal/crawl"
	"github.com/agentic-research/crawl/internal/metrics"
	"github.com/agentic-research/crawl/internal/query"
)

var (
	settings    config.Settings
	queryArgs   []string
	timeout     time.Duration
	showMetrics bool
	jsonErrors  bool
)

func init() {
	f := queryCmd.Flags()
	f.StringVar(&settings.Driver, "driver", "", "Database driver: pgx, postgres, mysql or sqlite (env "+config.EnvDriver+")")
	f.StringVar(&settings.DSN, "dsn", "", "Driver data source name (env "+config.EnvDSN+")")
	f.StringVar(&settings.Database, "database", "", "Legacy host:port/database?user URI, used without --dsn (env "+config.EnvDatabase+")")
	f.StringArrayVarP(&queryArgs, "arg", "a", nil, "Operation argument as name=value; repeat for lists")
	f.DurationVar(&timeout, "timeout", query.DefaultTimeout, "Timeout of each database query")
	f.BoolVar(&showMetrics, "metrics", false, "Write Prometheus metrics to stderr when done")
	f.BoolVar(&jsonErrors, "json-errors", false, "Write failures as a JSON error response on stdout")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <operation>",
	Short: "Run a catalog operation against the database",
	Example: `  crawl query features/properties --dsn "host=localhost dbname=pathogens" -a features=PF3D7_0100100
  crawl query regions/featureloc --driver sqlite --dsn chado.db -a uniqueName=Pf3D7_01 -a start=1 -a end=5000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings.ApplyEnv()
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		driver, dsn, err := settings.Connection()
		if err != nil {
			return err
		}
		db, err := query.Open(driver, dsn, query.WithTimeout(timeout))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		log.Debug("database", zap.String("driver", driver), zap.String("dsn", query.Redact(dsn)))

		var m *metrics.Collector
		if showMetrics {
			m = metrics.New()
			defer func() { _ = m.WriteText(os.Stderr) }()
		}

		opArgs, err := crawl.ParseArgs(queryArgs)
		if err != nil {
			return err
		}
		runner := crawl.NewRunner(catalog, db, crawl.WithLogger(log), crawl.WithMetrics(m))
		res, err := runner.Run(cmd.Context(), args[0], opArgs)
		if err != nil {
			var ce *crawl.Error
			if jsonErrors && errors.As(err, &ce) {
				_ = writeResult(cmd.OutOrStdout(), ce.Record())
			}
			return err
		}
		return writeResult(cmd.OutOrStdout(), res.Envelope())
	},
}
