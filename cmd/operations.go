package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/crawl/internal/crawl"
)

var operationsCmd = &cobra.Command{
	Use:   "operations [operation]",
	Short: "List the catalog's operations, or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			_, err = fmt.Fprintln(out, crawl.OperationList(catalog))
			return err
		}
		op, ok := catalog.Operation(args[0])
		if !ok {
			return &crawl.Error{
				Operation:   args[0],
				Code:        crawl.CodeUnknownQuery,
				Message:     fmt.Sprintf("unknown query %q", args[0]),
				Remediation: crawl.OperationList(catalog),
			}
		}
		if op.Description != "" {
			if _, err := fmt.Fprintf(out, "%s\n\n", op.Description); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintln(out, crawl.Usage(op))
		return err
	},
}

func init() {
	rootCmd.AddCommand(operationsCmd)
}
