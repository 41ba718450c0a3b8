package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gmatflow/gmatflow/pkg/stores"
)

// runDetail is everything recorded about one run.
type runDetail struct {
	Run       *stores.Run        `json:"run" yaml:"run"`
	Stages    []*stores.Stage    `json:"stages" yaml:"stages"`
	Events    []*stores.Event    `json:"events" yaml:"events"`
	Artifacts []*stores.Artifact `json:"artifacts" yaml:"artifacts"`
}

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recorded pipeline runs",
		Long: `List recent runs, or show the stages, events and artifacts of one run.`,
		Example: `  # Last 20 runs
  gmatflow history

  # One run as YAML
  gmatflow history 3f0c9f4e-1d2b-4c55-9a51-0b6f1e0f2a7d --output yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if jsonOutput {
				output = "json"
			}
			switch output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unsupported output format %q (use table, json or yaml)", output)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				return render(output, runs, func() { printRuns(runs) })
			}

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load run %s: %w", args[0], err)
			}
			detail := runDetail{Run: run}
			if detail.Stages, err = store.ListStagesByRun(ctx, run.ID); err != nil {
				return err
			}
			if detail.Events, err = store.GetEvents(ctx, &run.ID, nil, 500, 0); err != nil {
				return err
			}
			if detail.Artifacts, err = store.ListArtifactsByRun(ctx, run.ID); err != nil {
				return err
			}
			return render(output, detail, func() { printRunDetail(detail) })
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")

	return cmd
}

func render(format string, v interface{}, table func()) error {
	switch format {
	case "json":
		return printJSON(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		table()
		return nil
	}
}

func printRuns(runs []*stores.Run) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTATUS\tSTARTED\tDURATION\tSCENARIO")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), runDuration(r), r.ScenarioPath)
	}
	_ = w.Flush()
}

func runDuration(r *stores.Run) string {
	if r.CompletedAt == nil {
		return "-"
	}
	return r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

func shortHash(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func printRunDetail(d runDetail) {
	r := d.Run
	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Status:   %s\n", r.Status)
	fmt.Printf("Scenario: %s\n", r.ScenarioPath)
	fmt.Printf("Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Printf("Duration: %s\n", runDuration(r))
	if r.Error != nil {
		fmt.Printf("Error:    %s\n", *r.Error)
	}

	fmt.Println("\nStages:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, s := range d.Stages {
		line := fmt.Sprintf("  %d\t%s\t%s\t%dms", s.Seq, s.Name, s.Status, s.DurationMs)
		if s.Error != nil {
			line += "\t" + *s.Error
		}
		fmt.Fprintln(w, line)
	}
	_ = w.Flush()

	if len(d.Artifacts) > 0 {
		fmt.Println("\nArtifacts:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, a := range d.Artifacts {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", a.Kind, shortHash(a.SHA256), a.Size, a.Path)
		}
		_ = w.Flush()
	}

	if len(d.Events) > 0 {
		fmt.Println("\nEvents:")
		for _, e := range d.Events {
			stage := ""
			if e.Stage != nil {
				stage = *e.Stage
			}
			fmt.Printf("  %s %-7s %-9s %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Level, stage, e.Message)
		}
	}
}
