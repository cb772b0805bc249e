package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/database"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/internal/printer"
)

// recentErrorWindow bounds the per-category counts shown by `db info`
const recentErrorWindow = 7 * 24 * time.Hour

// openDB opens the configured session database with all migrations applied
func (g *globals) openDB() (*database.DB, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.OpenAndMigrate(cfg.DBPath, logging.Discard("Database"))
	if err != nil {
		return nil, printer.Error("failed to open session database", err.Error(), nil)
	}
	return db, nil
}

func newDBCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the session database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newDBInfoCmd(g),
		newDBBackupCmd(g),
		newDBMigrateCmd(g),
		newDBPruneCmd(g),
	)
	return cmd
}

func newDBInfoCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show schema version, row counts and recent scan errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			out := cmd.OutOrStdout()

			version, err := db.GetVersion()
			if err != nil {
				return err
			}
			counts, err := db.GetStats()
			if err != nil {
				return err
			}

			printer.Info("Database %s (schema v%d of v%d)\n", db.Path(), version, database.LatestVersion())
			pairs := make(map[string]string, len(counts))
			for table, n := range counts {
				pairs[table] = strconv.FormatInt(n, 10)
			}
			printer.KeyValues(out, pairs)

			now := time.Now()
			byCategory, err := db.GetScanErrorStats(now.Add(-recentErrorWindow), now)
			if err != nil {
				return err
			}
			if len(byCategory) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			printer.Warning("Scan errors in the last 7 days\n")
			pairs = make(map[string]string, len(byCategory))
			for category, n := range byCategory {
				pairs[category] = strconv.Itoa(n)
			}
			printer.KeyValues(out, pairs)

			recent, err := db.GetRecentScanErrors(5)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(recent))
			for _, e := range recent {
				rows = append(rows, []string{
					e.OccurredAt.Local().Format("2006-01-02 15:04:05"),
					e.Category,
					e.Source,
					e.Message,
				})
			}
			fmt.Fprintln(out)
			printer.Table(out, []string{"Time", "Category", "Source", "Message"}, rows)
			return nil
		},
	}
}

func newDBBackupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backup PATH",
		Short: "Write a consistent copy of the database to PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Backup(args[0]); err != nil {
				return printer.Error("backup failed", err.Error(),
					[]string{"VACUUM INTO refuses to overwrite, choose a path that does not exist"})
			}
			printer.Success("Backed up %s to %s\n", db.Path(), args[0])
			return nil
		},
	}
}

func newDBMigrateCmd(g *globals) *cobra.Command {
	var downTo int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations, or revert to an older schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if downTo > database.LatestVersion() {
				return printer.Error("invalid schema version",
					fmt.Sprintf("--down-to %d is newer than the latest schema v%d", downTo, database.LatestVersion()), nil)
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return printer.Error("failed to open session database", err.Error(), nil)
			}
			defer db.Close()
			db.SetLogger(logging.NewLogger("Database").SetOutput(cmd.ErrOrStderr()))

			if downTo < 0 {
				if err := db.RunMigrations(); err != nil {
					return err
				}
				printer.Success("Schema is at v%d\n", database.LatestVersion())
				return nil
			}

			if err := db.MigrateDown(downTo); err != nil {
				return err
			}
			printer.Success("Schema reverted to v%d\n", downTo)
			return nil
		},
	}

	cmd.Flags().IntVar(&downTo, "down-to", -1, "Revert migrations newer than this version")
	return cmd
}

func newDBPruneCmd(g *globals) *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions and scan errors older than a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := time.ParseInLocation("2006-01-02", before, time.Local)
			if err != nil {
				return printer.Error("invalid --before date", err.Error(), []string{"Use YYYY-MM-DD, e.g. --before 2026-01-31"})
			}

			db, err := g.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.DeleteSessionsBefore(cutoff)
			if err != nil {
				return err
			}
			scanErrors, err := db.DeleteOldScanErrors(cutoff)
			if err != nil {
				return err
			}
			if err := db.Vacuum(); err != nil {
				return err
			}

			printer.Success("Removed %d sessions and %d scan errors before %s\n", sessions, scanErrors, before)
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "Cutoff date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("before")
	return cmd
}
