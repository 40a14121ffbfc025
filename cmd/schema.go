package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/applog"
	"github.com/DachengChen/paiask/db"
)

var (
	schemaJSON    bool
	schemaSamples int
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema overview the pipeline works from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := applog.New(os.Stderr, flagVerbose)

		d, err := connect(ctx, log)
		if err != nil {
			return err
		}
		defer d.Close()

		overview, err := d.Scan(ctx, schemaSamples)
		if err != nil {
			return fmt.Errorf("scan schema: %w", err)
		}

		if schemaJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(overview)
		}
		renderSchema(cmd.OutOrStdout(), overview)
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "print as JSON, including sample rows")
	schemaCmd.Flags().IntVar(&schemaSamples, "samples", 3, "sample rows fetched per table")
}

func renderSchema(w io.Writer, overview *agent.SchemaOverview) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Rows", "Columns"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	for _, t := range overview.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name + " " + c.Type
		}
		table.Append([]string{t.Name, db.FormatRowCount(t.RowCount), strings.Join(cols, ", ")})
	}
	table.Render()
	fmt.Fprintf(w, "%d tables\n", len(overview.Tables))
}
