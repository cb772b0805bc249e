package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/database"
	"jordanella.com/agent-scan/internal/export"
	"jordanella.com/agent-scan/internal/printer"
)

func newSessionsCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.ListSessions(limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				printer.Info("No sessions recorded yet\n")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				status := "incomplete"
				if s.Completed {
					status = "complete"
				}
				rows = append(rows, []string{
					shortID(s.ID),
					s.StartedAt.Local().Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%.1fs", s.Duration().Seconds()),
					status,
					picks(s.Picks),
				})
			}
			printer.Table(cmd.OutOrStdout(), []string{"ID", "Started", "Duration", "Status", "Agents"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of sessions to list")
	cmd.AddCommand(newSessionShowCmd(g))
	return cmd
}

// sessionLookback is how many recent sessions an ID prefix is matched against
const sessionLookback = 200

func newSessionShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the picks of one session",
		Long:  "Show the picks of one session. ID may be the 8 character prefix printed by `sessions`.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			session, err := findSession(db, args[0])
			if err != nil {
				return printer.Error("session not found", err.Error(), []string{"Run `agentscan sessions` to list session IDs"})
			}

			status := "incomplete"
			if session.Completed {
				status = "complete"
			}
			printer.Info("Session %s, %s, %.1fs, %s\n", session.ID,
				session.StartedAt.Local().Format("2006-01-02 15:04:05"), session.Duration().Seconds(), status)

			rows := make([][]string, 0, len(session.Picks))
			for _, p := range session.Picks {
				rows = append(rows, []string{
					fmt.Sprintf("Player %d", p.Slot),
					p.Agent,
					p.Role,
					fmt.Sprintf("%.2f", p.Score),
					offsetText(p.Selected, export.NotSelected),
					offsetText(p.Confirmed, export.NotConfirmed),
				})
			}
			printer.Table(cmd.OutOrStdout(), []string{"Player", "Agent", "Role", "Score", "Selected", "Confirmed"}, rows)
			return nil
		},
	}
}

// findSession resolves a full session ID or a unique prefix of a recent one
func findSession(db *database.DB, id string) (*database.SessionRecord, error) {
	session, err := db.GetSession(id)
	if err == nil || !errors.Is(err, database.ErrSessionNotFound) {
		return session, err
	}

	recent, listErr := db.ListSessions(sessionLookback)
	if listErr != nil {
		return nil, listErr
	}
	var match *database.SessionRecord
	for _, s := range recent {
		if !strings.HasPrefix(s.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("session prefix %q is ambiguous", id)
		}
		match = s
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}

func offsetText(d *time.Duration, missing string) string {
	if d == nil {
		return missing
	}
	return fmt.Sprintf("%.2f sec", d.Seconds())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func picks(ps []database.SlotPick) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Agent
	}
	return strings.Join(names, ", ")
}
