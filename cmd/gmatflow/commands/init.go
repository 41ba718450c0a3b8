package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gmatflow/gmatflow/pkg/config"
	"github.com/gmatflow/gmatflow/pkg/scenario"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a gmatflow workspace",
		Long: `Initialize a workspace: create the data directories, migrate the run
history database, and write gmatflow.yaml and a template scenario.

Existing files are kept unless --force is given.`,
		Example: `  # Initialize in the current directory
  gmatflow init

  # Initialize with a custom config path
  gmatflow init --config ./missions/gmatflow.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path := configPath
			if path == "" {
				path = config.FileName
			}

			cfg := config.Default()
			if _, err := os.Stat(path); err == nil && !force {
				loaded, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			log.Info().Str("config", path).Str("data_dir", cfg.Workspace.DataDir).Msg("Initializing workspace")

			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			fmt.Printf("✓ Created directories under %s\n", cfg.Workspace.DataDir)

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("✓ Initialized SQLite database: %s\n", cfg.Store.Path)

			written, err := config.Write(path, cfg, force)
			if err != nil {
				return err
			}
			if written {
				fmt.Printf("✓ Created config file: %s\n", path)
			} else {
				fmt.Printf("✓ Config file already exists: %s\n", path)
			}

			if _, err := os.Stat(cfg.Workspace.Scenario); err == nil && !force {
				fmt.Printf("✓ Scenario already exists: %s\n", cfg.Workspace.Scenario)
			} else {
				if err := scenario.WriteFile(cfg.Workspace.Scenario, scenario.Template()); err != nil {
					return fmt.Errorf("failed to write template scenario: %w", err)
				}
				fmt.Printf("✓ Created template scenario: %s\n", cfg.Workspace.Scenario)
			}

			fmt.Println("\nWorkspace ready. Next steps:")
			fmt.Printf("  1. Edit %s\n", cfg.Workspace.Scenario)
			fmt.Println("  2. Run 'gmatflow validate' to lint it")
			fmt.Println("  3. Run 'gmatflow run' to propagate and plot")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite the config file and scenario")

	return cmd
}
