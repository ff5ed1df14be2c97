// Package cli implements the raidcalc command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rsned/raid-optimizer-server/internal/raid/app"
	"github.com/rsned/raid-optimizer-server/internal/raid/config"
)

// env is shared by every subcommand of one invocation.
type env struct {
	configPath string
	verbose    bool
	app        *app.App
}

// RootCmd builds the raidcalc command tree.
func RootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "raidcalc",
		Short: "Rust raid calculator",
		Long: `Calculates crafting resources and explosive damage, and finds the
cheapest way in sulfur to destroy a set of structures.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || (cmd.HasParent() && cmd.Parent().Name() == "completion") {
				return nil
			}
			return e.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.app == nil {
				return nil
			}
			return e.app.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "path to YAML config file")
	flags.String("db", "", "path to SQLite database")
	flags.String("explosives", "", "explosives table to import (JSON or YAML)")
	flags.String("structures", "", "structures table to import (JSON or YAML)")
	flags.BoolVarP(&e.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(resourcesCmd(e))
	root.AddCommand(damageCmd(e))
	root.AddCommand(optimizeCmd(e))
	root.AddCommand(catalogCmd(e))
	root.AddCommand(plansCmd(e))
	root.AddCommand(interactiveCmd(e))

	return root
}

func (e *env) open(cmd *cobra.Command) error {
	v, err := config.NewViper(e.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Root().PersistentFlags()
	for key, name := range map[string]string{
		"db.path":            "db",
		"catalog.explosives": "explosives",
		"catalog.structures": "structures",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	// The CLI is quiet unless asked otherwise.
	level := slog.LevelWarn
	if e.verbose {
		level = slog.LevelDebug
	}
	logger := app.NewLogger(cmd.ErrOrStderr(), level)

	a, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	e.app = a
	return nil
}
