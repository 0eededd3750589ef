// Package cli implements the uniquery command line interface: it loads a
// YAML model, assembles the decorator stack over the declared database and
// runs queries against the decorated surface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modelPath string
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "uniquery",
	Short: "Query heterogeneous datasources through a uniform surface",
	Long: `uniquery wraps a declared datasource in a capability-emulation
pipeline: filters, search, relations, segments and sorting work the same
everywhere, whether the backend supports them natively or not.

Examples:

  uniquery schema --model model.yaml
  uniquery list books --model model.yaml --search dune --limit 10
  uniquery aggregate books --model model.yaml --op Count --group ownerId
`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "model.yaml", "Path to the YAML model file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(aggregateCmd)
}
