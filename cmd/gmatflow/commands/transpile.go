package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gmatflow/gmatflow/pkg/scenario"
	"github.com/gmatflow/gmatflow/pkg/transpiler"
)

func newTranspileCommand() *cobra.Command {
	var (
		scenarioPath  string
		outPath       string
		toStdout      bool
		overridesPath string
		extended      bool
	)

	cmd := &cobra.Command{
		Use:   "transpile",
		Short: "Generate a GMAT script from a scenario",
		Long: `Read a scenario, apply optional Starlark overrides and write the GMAT
script. The engine is not run.`,
		Example: `  # Write the workspace script
  gmatflow transpile

  # Print a script for another scenario
  gmatflow transpile --scenario leo.txt --stdout

  # Sweep a parameter with an override script
  gmatflow transpile --overrides raise_orbit.star --out raised.script`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if scenarioPath == "" {
				scenarioPath = cfg.Workspace.Scenario
			}
			if outPath == "" {
				outPath = cfg.Workspace.Script
			}
			opts := transpiler.Options{Extended: extended || cfg.Transpile.Extended}

			sc, err := scenario.ParseFile(scenarioPath)
			if err != nil {
				return err
			}
			if overridesPath != "" {
				sc, err = scenario.NewOverrides(cfg.Transpile.OverridesTimeout.Std()).ApplyFile(cmd.Context(), overridesPath, sc)
				if err != nil {
					return err
				}
			}

			if toStdout {
				fmt.Print(transpiler.Build(sc, opts))
				return nil
			}

			mission, err := transpiler.WriteScript(outPath, sc, opts)
			if err != nil {
				return err
			}
			log.Info().
				Str("scenario", scenarioPath).
				Str("script", outPath).
				Bool("extended", opts.Extended).
				Msg("Script written")

			if jsonOutput {
				return printJSON(mission)
			}
			fmt.Printf("✓ Wrote %s\n", outPath)
			fmt.Printf("  %s\n", mission.Summary())
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "script output path (default from config)")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "print the script instead of writing it")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "Starlark script applied to the scenario")
	cmd.Flags().BoolVar(&extended, "extended", false, "write the supplementary script statements")

	return cmd
}
