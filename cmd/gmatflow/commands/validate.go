package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gmatflow/gmatflow/pkg/policy"
	"github.com/gmatflow/gmatflow/pkg/scenario"
	"github.com/gmatflow/gmatflow/pkg/transpiler"
)

func newValidateCommand() *cobra.Command {
	var (
		scenarioPath  string
		overridesPath string
		policyDirs    []string
		strict        bool
		extended      bool
		listPolicies  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint a scenario against the schema and policies",
		Long: `Validate a scenario without generating a script.

This command checks:
  - Scenario values against the CUE schema
  - Mission timing and burn plans
  - Propagator step settings
  - The initial orbit and force model

Custom Rego policies are loaded from the configured policy directories and
from --policies.`,
		Example: `  # Lint the workspace scenario
  gmatflow validate

  # Fail on error-severity findings, with extra policies
  gmatflow validate --strict --policies ./policies

  # Show the loaded policies
  gmatflow validate --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if scenarioPath == "" {
				scenarioPath = cfg.Workspace.Scenario
			}
			strict = strict || cfg.Policy.Strict

			engine, err := newPolicyEngine(ctx, cfg, policyDirs, log.Logger)
			if err != nil {
				return err
			}

			if listPolicies {
				return printPolicies(engine.ListPolicies())
			}

			log.Info().
				Str("scenario", scenarioPath).
				Bool("strict", strict).
				Msg("Validating scenario")

			sc, err := scenario.ParseFile(scenarioPath)
			if err != nil {
				return err
			}
			if overridesPath != "" {
				sc, err = scenario.NewOverrides(30*time.Second).ApplyFile(ctx, overridesPath, sc)
				if err != nil {
					return err
				}
			}

			schema, err := scenario.NewSchema()
			if err != nil {
				return err
			}
			mission := transpiler.Resolve(sc, transpiler.Options{Extended: extended || cfg.Transpile.Extended})

			result, err := engine.Evaluate(ctx, policy.NewInput(sc, mission, schema.Validate(sc)))
			if err != nil {
				return err
			}
			for _, w := range result.Warnings {
				log.Warn().Msg(w)
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				fmt.Printf("Scenario: %s\n", scenarioPath)
				fmt.Printf("Mission:  %s\n\n", mission.Summary())
				printViolations(os.Stdout, result.Violations)
			}

			if strict && result.HasErrors() {
				return fmt.Errorf("%w: %d error(s)", errViolations,
					result.Count(policy.SeverityError)+result.Count(policy.SeverityCritical))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (default from config)")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "Starlark script applied before linting")
	cmd.Flags().StringSliceVar(&policyDirs, "policies", nil, "extra policy directories")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero on error-severity violations")
	cmd.Flags().BoolVar(&extended, "extended", false, "lint the extended force model")
	cmd.Flags().BoolVar(&listPolicies, "list", false, "list the loaded policies and exit")

	return cmd
}

func printPolicies(policies []policy.Policy) error {
	if jsonOutput {
		return printJSON(policies)
	}
	for _, p := range policies {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		origin := "custom"
		if p.Builtin {
			origin = "builtin"
		}
		fmt.Printf("%-20s %-8s %-8s %s\n", p.Name, p.Severity, origin, state)
		if p.Description != "" {
			fmt.Printf("  %s\n", p.Description)
		}
	}
	return nil
}
