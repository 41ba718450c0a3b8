package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/plot"
	"github.com/gmatflow/gmatflow/pkg/report"
	"github.com/gmatflow/gmatflow/pkg/scenario"
)

func newPlotCommand() *cobra.Command {
	var (
		reportPath   string
		scenarioPath string
		theme        string
		outDir       string
		width        int
		height       int
	)

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Chart an existing GMAT report",
		Long: `Render the trajectory, ground-plane orbit, velocity, speed and radius
charts from a report. Burn times are read from the scenario and marked on
the time-based charts.`,
		Example: `  # Chart the last engine report
  gmatflow plot

  # Light theme into another directory
  gmatflow plot --report run1/DefaultReportFile.txt --theme light --out-dir run1/plots`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if reportPath == "" {
				reportPath = filepath.Join(cfg.Workspace.OutputDir, gmat.ReportFileName)
			}
			if scenarioPath == "" {
				scenarioPath = cfg.Workspace.Scenario
			}
			if outDir == "" {
				outDir = cfg.Workspace.PlotDir
			}
			if theme == "" {
				theme = cfg.Plot.Theme
			}
			if width == 0 {
				width = cfg.Plot.Width
			}
			if height == 0 {
				height = cfg.Plot.Height
			}

			table, err := report.Load(reportPath)
			if err != nil {
				return err
			}
			if table.Dropped > 0 {
				log.Warn().Int("rows", table.Dropped).Msg("Skipped malformed report rows")
			}

			var burnTimes []float64
			if _, err := os.Stat(scenarioPath); err == nil {
				burnTimes = scenario.ScanBurnTimesFile(scenarioPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			renderer, err := plot.New(plot.Config{
				Dir:    outDir,
				Theme:  plot.Theme(theme),
				Width:  width,
				Height: height,
			}, log.Logger)
			if err != nil {
				return err
			}

			files, err := renderer.RenderAll(cmd.Context(), table, burnTimes)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"report":  reportPath,
					"summary": table.Summarize(),
					"plots":   files,
				})
			}
			fmt.Printf("✓ Rendered %d charts from %d rows into %s\n", len(files), table.Len(), outDir)
			for _, f := range files {
				fmt.Printf("  %s\n", filepath.Base(f))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportPath, "report", "r", "", "report file (default: the engine output)")
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario supplying burn times (default from config)")
	cmd.Flags().StringVar(&theme, "theme", "", "chart theme: dark or light")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "chart directory (default from config)")
	cmd.Flags().IntVar(&width, "width", 0, "chart width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "chart height in pixels")

	return cmd
}
