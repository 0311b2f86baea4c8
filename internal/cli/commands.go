package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanizio/sportcrm/internal/acl"
	"github.com/yanizio/sportcrm/internal/app"
	"github.com/yanizio/sportcrm/internal/archive"
	"github.com/yanizio/sportcrm/internal/funnel"
)

func newMigrateCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			x, err := a.open(cmd.Context(), app.Options{Migrate: true})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			return writeOut(cmd, a, map[string]any{"migrated": true, "driver": x.Config.Database.Driver})
		},
	}
}

func newCandidatesCmd(a *App) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List REFUSED and SIGNED requests older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			rows, err := x.Funnel.Candidates(cmd.Context(), days)
			if err != nil {
				return writeErr(cmd, err)
			}
			cards := make([]funnel.Card, len(rows))
			for i, r := range rows {
				cards[i] = funnel.NewCard(r)
			}
			return writeOut(cmd, a, map[string]any{"data": cards, "count": len(cards)})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in whole days (default: funnel.archive_threshold_days)")
	return cmd
}

func newArchiveOldCmd(a *App) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "archive-old",
		Short: "Archive every candidate older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			sum, err := x.Funnel.ArchiveOld(cmd.Context(), days)
			if err != nil {
				return writeErr(cmd, err)
			}
			return summary(cmd, a, sum)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in whole days (default: funnel.archive_threshold_days)")
	return cmd
}

func newArchiveCmd(a *App) *cobra.Command {
	var successful bool
	cmd := &cobra.Command{
		Use:   "archive ID...",
		Short: "Archive requests by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return writeErr(cmd, err)
			}
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			run := x.Funnel.ArchiveBatch
			if successful {
				run = x.Funnel.ArchiveSuccessfulBatch
			}
			return summary(cmd, a, run(cmd.Context(), ids))
		},
	}
	cmd.Flags().BoolVar(&successful, "successful", false, "Flag SIGNED requests as successful enrollments")
	return cmd
}

func newRestoreCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID...",
		Short: "Restore archived requests by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return writeErr(cmd, err)
			}
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			return summary(cmd, a, x.Funnel.RestoreBatch(cmd.Context(), ids))
		},
	}
}

func newStatsCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count requests per status and archive state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			st, err := x.Funnel.Stats(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, st)
		},
	}
}

func newTokenCmd(a *App) *cobra.Command {
	var user int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user <= 0 {
				return writeErr(cmd, fmt.Errorf("--user is required"))
			}
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			tok, err := x.Tokens.Issue(user)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, map[string]any{"user": user, "token": tok, "ttl": x.Config.Auth.TokenTTL.String()})
		},
	}
	cmd.Flags().Int64Var(&user, "user", 0, "User id")
	return cmd
}

func newGrantRoleCmd(a *App) *cobra.Command {
	var (
		user int64
		role string
	)
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Bind --role to --user, creating the role if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user <= 0 || role == "" {
				return writeErr(cmd, fmt.Errorf("--user and --role are required"))
			}
			x, err := a.open(cmd.Context(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer x.Close()
			if x.Config.Database.Driver == "pgx" {
				return writeErr(cmd, fmt.Errorf("grant-role supports mysql and sqlite only"))
			}
			if err := acl.GrantRole(cmd.Context(), x.DB.DB, user, role); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, map[string]any{"user": user, "role": role})
		},
	}
	cmd.Flags().Int64Var(&user, "user", 0, "User id")
	cmd.Flags().StringVar(&role, "role", "staff", "Role name")
	return cmd
}

func summary(cmd *cobra.Command, a *App, sum archive.Summary) error {
	if err := writeOut(cmd, a, sum); err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d requests failed", sum.Failed, sum.Total)
	}
	return nil
}
