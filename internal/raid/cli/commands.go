package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

func resourcesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "resources <explosive> <quantity> [<explosive> <quantity>...]",
		Short: "Calculate the raw materials needed to craft explosives",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected explosive/quantity pairs, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := make([]raid.ResourcesArgs, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				q, err := strconv.ParseFloat(args[i+1], 64)
				if err != nil {
					return raid.InvalidQuantity(args[i], args[i+1])
				}
				lines = append(lines, raid.ResourcesArgs{Explosive: args[i], Quantity: q})
			}

			w := cmd.OutOrStdout()
			resp, err := e.app.Service.Batch(cmd.Context(), lines)
			if err != nil {
				return err
			}

			title(w, "Explosives crafted:")
			table := newTable(w, "Explosive", "Quantity")
			for _, id := range e.app.Catalog.ExplosiveIDs() {
				if n := resp.Counts[id]; n > 0 {
					if err := table.Append([]string{id, count(n)}); err != nil {
						return err
					}
				}
			}
			if err := table.Render(); err != nil {
				return err
			}

			title(w, "Resources required:")
			return renderMaterials(w, resp.Materials)
		},
	}
}

func damageCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "damage <structure> <explosive>...",
		Short: "Show how much damage explosives deal to a structure",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := e.app.Service.Damage(cmd.Context(), raid.DamageRequest{
				Structure:  args[0],
				Explosives: args[1:],
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			title(w, "%s (%s HP):", resp.Structure, amount(resp.HitPoints))
			table := newTable(w, "Explosive", "Damage", "Hits")
			for _, d := range resp.Damages {
				hits := count(d.HitsNeeded)
				if d.Damage == 0 {
					hits = warnColor.Sprint("no effect")
				}
				if err := table.Append([]string{d.Explosive, amount(d.Damage), hits}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func optimizeCmd(e *env) *cobra.Command {
	var (
		structures []string
		explosives []string
		legacy     bool
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Find the cheapest explosives in sulfur to destroy structures",
		Example: `  raidcalc optimize --structure "Stone Wall=2" --explosive Rocket=3 --explosive "Satchel Charge"
  raidcalc optimize --structure "Armored Door" --explosive "Timed Explosive Charge" --legacy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := raid.OptimizeArgs{
				Structures: make(map[string]float64, len(structures)),
				Explosives: make(map[string]float64, len(explosives)),
				Mode:       raid.ModeStandard,
				Save:       save,
			}
			if legacy {
				req.Mode = raid.ModeLegacy
			}
			for _, s := range structures {
				name, n, err := parsePair(s, 1)
				if err != nil {
					return fmt.Errorf("--structure: %w", err)
				}
				req.Structures[name] += n
			}
			for _, s := range explosives {
				name, n, err := parsePair(s, 0)
				if err != nil {
					return fmt.Errorf("--explosive: %w", err)
				}
				req.Explosives[name] += n
			}

			res, err := e.app.Service.Optimize(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringArrayVarP(&structures, "structure", "s", nil, "structure to destroy as name[=count]")
	cmd.Flags().StringArrayVarP(&explosives, "explosive", "e", nil, "candidate explosive as name[=owned]")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "use the legacy model (all crafted, HP+1, no overkill cap)")
	cmd.Flags().BoolVar(&save, "save", false, "save the plan to the database")
	return cmd
}

func catalogCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List explosives and structures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listing := e.app.Service.Catalog()
			w := cmd.OutOrStdout()

			title(w, "Explosives:")
			table := newTable(w, "Explosive", "Sulfur", "Materials")
			for _, exp := range listing.Explosives {
				if err := table.Append([]string{exp.ID, amount(exp.SulfurCost()), count(len(exp.RawMaterials))}); err != nil {
					return err
				}
			}
			if err := table.Render(); err != nil {
				return err
			}

			title(w, "Structures:")
			table = newTable(w, "Structure", "HP")
			for _, s := range listing.Structures {
				if err := table.Append([]string{s.ID, amount(s.HitPoints)}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func plansCmd(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "plans [id]",
		Short: "List saved raid plans or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				plan, err := e.app.Service.Plan(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Plan %s, created %s\n", plan.ID, plan.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				return renderResult(w, plan.Result)
			}

			plans, err := e.app.Service.Plans(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				fmt.Fprintln(w, "No saved plans.")
				return nil
			}
			table := newTable(w, "ID", "Created", "Mode", "Sulfur")
			for _, p := range plans {
				row := []string{p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04"), string(p.Mode), count(p.SulfurCost)}
				if err := table.Append(row); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum plans to list")
	return cmd
}
