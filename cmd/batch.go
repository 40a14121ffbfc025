package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/DachengChen/paiask/agent"
	"github.com/DachengChen/paiask/applog"
)

var (
	batchParallel    int
	batchJSON        bool
	batchMetricsAddr string
)

// batchQuestion is one entry of a batch file.
type batchQuestion struct {
	ID       string `yaml:"id" json:"id"`
	Question string `yaml:"question" json:"question"`
}

type batchFile struct {
	Questions []batchQuestion `yaml:"questions"`
}

type batchResult struct {
	ID     string        `json:"id"`
	Report *agent.Report `json:"report"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <questions.yaml>",
	Short: "Answer every question in a YAML file concurrently",
	Long: `Answer every question in a YAML file. Each question runs through its
own pipeline; up to --parallel run at the same time. Reports are printed in
file order.

  questions:
    - id: vip-october
      question: How many logins per VIP level in Taiwan during October 2024?
    - question: Which countries registered the most players this year?`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := applog.New(os.Stderr, flagVerbose)

		questions, err := loadBatch(args[0])
		if err != nil {
			return err
		}
		if batchMetricsAddr != "" {
			serveMetrics(ctx, log, batchMetricsAddr)
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

		results := make([]batchResult, len(questions))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(batchParallel, 1))
		for i, q := range questions {
			g.Go(func() error {
				c, err := s.coordinator(d)
				if err != nil {
					return err
				}
				log.Info("question started", "id", q.ID)
				report := c.Ask(gctx, q.Question)
				log.Info("question finished", "id", q.ID, "state", report.Summary.FinalState, "rows", report.TotalRows)
				results[i] = batchResult{ID: q.ID, Report: report}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if batchJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "######## %s ########\n", r.ID)
			fmt.Fprint(out, r.Report.String())
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchParallel, "parallel", "p", 4, "questions answered at the same time")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print the reports as a JSON array")
	batchCmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

// loadBatch reads a batch file. Entries without an id are numbered q1, q2...
func loadBatch(path string) ([]batchQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var f batchFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}

	seen := make(map[string]bool)
	var questions []batchQuestion
	for i, q := range f.Questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			return nil, fmt.Errorf("batch entry %d has no question", i+1)
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate batch id %q", q.ID)
		}
		seen[q.ID] = true
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, errors.New("batch file has no questions")
	}
	return questions, nil
}
