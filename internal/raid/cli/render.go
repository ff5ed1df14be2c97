package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

func title(w io.Writer, format string, a ...any) {
	titleColor.Fprintf(w, "\n"+format+"\n", a...)
}

// amount formats a material or damage amount with thousands separators,
// dropping the fraction when it is zero.
func amount(v float64) string {
	if v == float64(int64(v)) {
		return humanize.Comma(int64(v))
	}
	return humanize.Commaf(v)
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithHeader(header))
}

func renderMaterials(w io.Writer, materials []raid.MaterialAmount) error {
	table := newTable(w, "Material", "Amount")
	for _, m := range materials {
		if err := table.Append([]string{m.Material, amount(m.Amount)}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderResult(w io.Writer, res *raid.OptimizationResult) error {
	title(w, "Structures (%s mode):", res.Mode)
	table := newTable(w, "Structure", "Count", "Explosive", "Units")
	for _, s := range res.Structures {
		ids := make([]string, 0, len(s.Usage))
		for id := range s.Usage {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i, id := range ids {
			name, n := s.Structure, count(s.Count)
			if i > 0 {
				name, n = "", ""
			}
			if err := table.Append([]string{name, n, id, count(s.Usage[id])}); err != nil {
				return err
			}
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	title(w, "Explosives:")
	table = newTable(w, "Explosive", "Owned", "Crafted", "Total")
	ids := make([]string, 0, len(res.ExplosiveTotals))
	for id, u := range res.ExplosiveTotals {
		if u.Total > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		u := res.ExplosiveTotals[id]
		if err := table.Append([]string{id, count(u.Owned), count(u.Crafted), count(u.Total)}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(res.CraftedResources) > 0 {
		title(w, "Resources to craft:")
		if err := renderMaterials(w, res.CraftedResources); err != nil {
			return err
		}
	}

	successColor.Fprintf(w, "\nSulfur cost: %s\n", count(res.SulfurCost))
	fmt.Fprintf(w, "Solved in %s (%s nodes)\n", res.Stats.Duration, count(res.Stats.Nodes))
	if res.PlanID != "" {
		fmt.Fprintf(w, "Saved plan %s\n", res.PlanID)
	}
	return nil
}

// parsePair splits "name=value". A missing value yields def.
func parsePair(s string, def float64) (string, float64, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, fmt.Errorf("missing name in %q", s)
	}
	if !ok {
		return name, def, nil
	}
	value = strings.TrimSpace(value)
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", 0, raid.InvalidQuantity(name, value)
	}
	return name, v, nil
}
