package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

const menu = `Select an option:
 1. Calculate resources for explosives
 0. Exit`

func interactiveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Menu-driven resource calculator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &session{
				env: e,
				in:  bufio.NewScanner(cmd.InOrStdin()),
				out: cmd.OutOrStdout(),
			}
			return s.run(cmd.Context())
		},
	}
}

type session struct {
	env *env
	in  *bufio.Scanner
	out io.Writer
}

// prompt prints msg and returns the next trimmed input line. ok is false at
// end of input.
func (s *session) prompt(msg string) (line string, ok bool) {
	fmt.Fprintln(s.out, msg)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *session) run(ctx context.Context) error {
	titleColor.Fprintln(s.out, "Welcome to the Rust Raid Calculator!")
	for {
		choice, ok := s.prompt(menu)
		if !ok {
			return s.in.Err()
		}
		switch choice {
		case "0":
			return nil
		case "1":
			done, err := s.calculate(ctx)
			if err != nil {
				return err
			}
			if done {
				return s.in.Err()
			}
		default:
			warnColor.Fprintln(s.out, "Invalid selection. Please try again.")
		}
	}
}

// calculate collects explosive/quantity pairs until "done" and prints the
// totals. eof reports that input ended mid-selection.
func (s *session) calculate(ctx context.Context) (eof bool, err error) {
	svc := s.env.app.Service
	counts := make(map[string]int)
	var order []string

	fmt.Fprintln(s.out, "Available explosives:")
	for _, id := range s.env.app.Catalog.ExplosiveIDs() {
		fmt.Fprintf(s.out, "- %s\n", id)
	}

	for {
		name, ok := s.prompt("Enter the explosive type (or 'done' to finish):")
		if !ok {
			return true, nil
		}
		if strings.EqualFold(name, "done") {
			break
		}

		res, err := svc.Resolve(raid.ResolveRequest{Kind: catalog.KindExplosive, Name: name})
		if err != nil {
			return false, err
		}
		if res.ID == "" {
			msg := fmt.Sprintf("Explosive type '%s' not found. Please try again.", name)
			if len(res.Suggestions) > 0 {
				msg += " Did you mean: " + strings.Join(res.Suggestions, ", ") + "?"
			}
			warnColor.Fprintln(s.out, msg)
			continue
		}

		qty, ok, eof := s.quantity(res.ID)
		if eof {
			return true, nil
		}
		if !ok {
			continue
		}
		if counts[res.ID] == 0 {
			order = append(order, res.ID)
		}
		counts[res.ID] += qty

		fmt.Fprintln(s.out, "Current explosive count:")
		for _, id := range order {
			fmt.Fprintf(s.out, "%s: %s\n", id, count(counts[id]))
		}
	}

	if len(order) == 0 {
		fmt.Fprintln(s.out, "No explosives selected.")
		return false, nil
	}

	lines := make([]raid.ResourcesArgs, 0, len(order))
	for _, id := range order {
		lines = append(lines, raid.ResourcesArgs{Explosive: id, Quantity: float64(counts[id])})
	}
	resp, err := svc.Batch(ctx, lines)
	if err != nil {
		return false, err
	}

	title(s.out, "Total explosives crafted:")
	for _, id := range order {
		fmt.Fprintf(s.out, "%s: %s\n", id, count(resp.Counts[id]))
	}
	title(s.out, "Total resources required:")
	return false, renderMaterials(s.out, resp.Materials)
}

func (s *session) quantity(id string) (qty int, ok, eof bool) {
	line, more := s.prompt(fmt.Sprintf("Enter the quantity of %s:", id))
	if !more {
		return 0, false, true
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		warnColor.Fprintln(s.out, "Quantity must be an integer. Please try again.")
		return 0, false, false
	}
	if n <= 0 {
		warnColor.Fprintln(s.out, "Quantity must be a positive integer. Please try again.")
		return 0, false, false
	}
	return n, true, false
}
