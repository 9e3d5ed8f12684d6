package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/crawl/api"
	"github.com/agentic-research/crawl/internal/config"
	"github.com/agentic-research/crawl/internal/crawl"
	"github.com/agentic-research/crawl/internal/encode"
	"github.com/agentic-research/crawl/internal/logging"
)

var (
	catalogPath string
	logMode     string
	formatName  string
	selectPath  string
	pretty      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "", "Path to an operation catalog (.yaml, .json or .hcl); defaults to the built-in Chado catalog")
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "", "Log mode: development, production or quiet (env "+config.EnvLog+")")
	rootCmd.PersistentFlags().StringVarP(&formatName, "format", "f", "json", "Output format: json, msgpack or yaml")
	rootCmd.PersistentFlags().StringVar(&selectPath, "select", "", "JSONPath applied to the response before it is written")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
}

var rootCmd = &cobra.Command{
	Use:           "crawl",
	Short:         "crawl: assemble denormalized query rows into records and trees",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the status of its error code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStatus(err))
	}
}

func exitStatus(err error) int {
	var ce *crawl.Error
	if errors.As(err, &ce) {
		return ce.Code.ExitStatus()
	}
	return 1
}

func newLogger() (*zap.Logger, error) {
	mode := logMode
	if mode == "" {
		mode = os.Getenv(config.EnvLog)
	}
	if mode == "" {
		mode = "quiet"
	}
	return logging.New(mode)
}

func loadCatalog() (*api.Catalog, error) {
	if catalogPath == "" {
		return config.DefaultCatalog()
	}
	return config.LoadCatalog(catalogPath)
}

// writeResult encodes v, or the values --select picks out of it, to w.
func writeResult(w io.Writer, v any) error {
	f, err := encode.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if selectPath != "" {
		picked, err := encode.Select(v, selectPath)
		if err != nil {
			return err
		}
		v = picked
	}
	return encode.Write(w, v, f, pretty)
}
