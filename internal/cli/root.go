// Package cli implements crmctl, the operator command line.
//
// Every command that touches data goes through app.Build, so the CLI runs
// the same repository, list cache, and archive processor as the server.
// Output is JSON on stdout; errors go to stderr and set a non-zero exit.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/app"
	"github.com/yanizio/sportcrm/internal/config"

	_ "github.com/yanizio/sportcrm/components/funnel"
)

// App carries persistent flags and the config loader.
type App struct {
	Root    string
	Pretty  bool
	Verbose bool

	load func(root string) (*config.Config, error)
}

func defaultLoad(root string) (*config.Config, error) {
	return config.LoadWith(config.Options{Root: root})
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{load: defaultLoad})
}

func newRootCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "crmctl",
		Short:        "Sports-school CRM operator tools",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Create or update tables
  crmctl migrate

  # Show REFUSED/SIGNED requests untouched for 45+ days, then archive them
  crmctl candidates --days 45
  crmctl archive-old --days 45

  # Bring two requests back onto the board
  crmctl restore 12 19

  # Give user 3 board access and mint a token
  crmctl grant-role --user 3 --role staff
  crmctl token --user 3
`),
	}
	cmd.PersistentFlags().StringVar(&a.Root, "root", "", "Install root containing conf/global.yaml (default: CRM_ROOT or discovery)")
	cmd.PersistentFlags().BoolVar(&a.Pretty, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVarP(&a.Verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(
		newMigrateCmd(a),
		newCandidatesCmd(a),
		newArchiveOldCmd(a),
		newArchiveCmd(a),
		newRestoreCmd(a),
		newStatsCmd(a),
		newTokenCmd(a),
		newGrantRoleCmd(a),
	)
	return cmd
}

// open loads config and builds the object graph.
func (a *App) open(ctx context.Context, o app.Options) (*app.App, error) {
	cfg, err := a.load(a.Root)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop().Sugar()
	if a.Verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			log = l.Sugar()
		}
	}
	return app.Build(ctx, cfg, log, o)
}

func writeOut(cmd *cobra.Command, a *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if a.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid request id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
