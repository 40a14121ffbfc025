// Package cmd contains all Cobra commands for paiask.
//
// Running `paiask` with no arguments starts the interactive UI with a
// connection picker. `ask`, `batch` and `schema` are the scriptable
// entry points; they take the database from --dsn, --connection or PG_URI.
package cmd

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DachengChen/paiask/applog"
	"github.com/DachengChen/paiask/tui"
)

var (
	flagVerbose    bool
	flagConnection string
	flagDSN        string
)

var rootCmd = &cobra.Command{
	Use:   "paiask",
	Short: "Ask questions of a PostgreSQL database in plain language",
	Long: `paiask turns a natural-language analytics question into a validated,
read-only SQL query, runs it, and explains the result.

  paiask                      interactive UI
  paiask ask "<question>"     answer one question
  paiask batch questions.yaml answer many questions concurrently
  paiask schema               print what the pipeline sees of the database`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if it exists
		_ = godotenv.Load()
	},
	// Running with no subcommand launches the TUI.
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog := applog.NewFile(flagVerbose)
		defer closeLog()

		s, err := newSession(cmd.Context(), log)
		if err != nil {
			return err
		}
		defer s.Close()

		return tui.Start(cmd.Context(), tui.Options{
			Logger:         log,
			Provider:       s.llm.Name(),
			NewCoordinator: s.coordinator,
		})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.StringVarP(&flagConnection, "connection", "c", "", "saved connection name from ~/.paiask/connections.json")
	pf.StringVar(&flagDSN, "dsn", "", "postgres connection URI (overrides --connection and PG_URI)")

	rootCmd.AddCommand(askCmd, batchCmd, schemaCmd)
}

// Execute runs the root command. Cancelling ctx stops in-flight questions.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
