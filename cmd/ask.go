package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DachengChen/paiask/applog"
)

var (
	askJSON        bool
	askMetricsAddr string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question and print the report",
	Example: `  paiask ask "How many logins per VIP level in Taiwan during October 2024?"
  paiask ask --json -c prod "Top 10 countries by new players last month"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := applog.New(os.Stderr, flagVerbose)
		question := strings.Join(args, " ")

		if askMetricsAddr != "" {
			serveMetrics(ctx, log, askMetricsAddr)
		}

		s, err := newSession(ctx, log)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := connect(ctx, log)
		if err != nil {
			return err
		}
		defer d.Close()

		c, err := s.coordinator(d)
		if err != nil {
			return err
		}
		report := c.Ask(ctx, question)

		out := cmd.OutOrStdout()
		if askJSON {
			b, err := report.JSON()
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		fmt.Fprint(out, report.String())
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the report as JSON")
	askCmd.Flags().StringVar(&askMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
}
