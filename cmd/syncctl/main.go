// cmd/syncctl/main.go
//
// Operator CLI for the card-sync subsystem.
//
// Context
// -------
// Cron runs `syncctl sweep` every few minutes; that is the retry
// sweeper's only scheduler.  The other commands are for operators:
//
//	syncctl sweep [--batch N] [--every 5m]
//	syncctl sync <request-id> [--comment TEXT]
//	syncctl reconcile <request-id>
//	syncctl provision <client-id> [--reset] [--member EMAIL]...
//	syncctl check
//
// Every command runs as the system actor, so activity rows carry a NULL
// user_id.  Output is indented JSON on stdout; logs go to the log file
// (and stderr with --verbose).
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keefcreative/designworks/internal/app"
	"github.com/keefcreative/designworks/internal/auth"
	"github.com/keefcreative/designworks/internal/board"
	"github.com/keefcreative/designworks/internal/cardsync"
	"github.com/keefcreative/designworks/internal/synclog"
	"github.com/keefcreative/designworks/internal/trello"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "syncctl",
	Short:         "DesignWorks card-sync operator tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also log to the console")
	rootCmd.AddCommand(sweepCmd(), syncCmd(), reconcileCmd(), provisionCmd(), checkCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp bootstraps the process, runs fn as the system actor, and closes.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(ctx, verbose)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(auth.WithActor(ctx, auth.System), a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", what, s)
	}
	return id, nil
}

/*──────────────────────────── sweep ───────────────────────────────────────*/

func sweepCmd() *cobra.Command {
	var (
		batch int
		every time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retry failed card syncs that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if batch <= 0 {
					batch = a.Config.Sync.BatchSize
				}
				for {
					res, err := a.Sweeper.ProcessFailedSyncs(ctx, batch)
					if res != nil {
						if perr := printJSON(sweepSummary(res)); perr != nil {
							return perr
						}
					}
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					if every <= 0 {
						return nil
					}
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(every):
					}
				}
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "entries per pass (default sync.batch_size)")
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the pass at this interval until interrupted")
	return cmd
}

func sweepSummary(res *cardsync.SweepResult) map[string]any {
	errs := make([]map[string]any, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, map[string]any{
			"sync_log_id": e.EntryID,
			"request_id":  e.RequestID,
			"error":       e.Err.Error(),
		})
	}
	return map[string]any{
		"selected":    res.Selected,
		"succeeded":   res.Succeeded,
		"failed":      res.Failed,
		"permanent":   res.Permanent,
		"skipped":     res.Skipped,
		"rescheduled": res.Rescheduled,
		"errors":      errs,
	}
}

/*──────────────────────────── sync / reconcile ────────────────────────────*/

func syncCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "sync <request-id>",
		Short: "Create the card for a design request, or add a comment to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "request id")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				op, in := synclog.OpCreate, (*cardsync.Input)(nil)
				if comment != "" {
					op, in = synclog.OpComment, &cardsync.Input{Comment: comment}
				}
				res, err := a.Orchestrator.SyncCard(ctx, id, op, in)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "add this comment instead of creating the card")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <request-id>",
		Short: "Recompute a request's sync_status from its latest ledger row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "request id")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Orchestrator.RecomputeStatus(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"request_id": id, "sync_status": st})
			})
		},
	}
}

/*──────────────────────────── provision ───────────────────────────────────*/

func provisionCmd() *cobra.Command {
	var (
		reset bool
		opts  board.Options
	)
	cmd := &cobra.Command{
		Use:   "provision <client-id>",
		Short: "Create (or with --reset replace) a client's Trello board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "client id")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var res *board.Result
				if reset {
					res, err = a.Boards.ResetClientBoard(ctx, id, opts)
				} else {
					opts.SetupTrello = true
					res, err = a.Boards.SetupClientBoard(ctx, id, opts)
				}
				if err != nil {
					return err
				}
				out := map[string]any{
					"status":    res.Status,
					"board_id":  res.BoardID,
					"board_url": res.BoardURL,
					"list_id":   res.ListID,
				}
				var failed []string
				for _, in := range res.FailedInvites() {
					failed = append(failed, in.Email+": "+in.Err.Error())
				}
				if len(failed) > 0 {
					out["failed_invites"] = failed
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "replace the existing board reference")
	cmd.Flags().StringVar(&opts.BoardName, "board-name", "", "board name (default \"<client> Design Requests\")")
	cmd.Flags().StringVar(&opts.OwnerEmail, "owner", "", "owner email (default clients.owner_email)")
	cmd.Flags().StringArrayVar(&opts.Members, "member", nil, "extra member email, repeatable (default trello_config.default_members)")
	cmd.Flags().StringVar(&opts.MemberRole, "role", trello.RoleNormal, "role for extra members: admin, normal, or observer")
	return cmd
}

/*──────────────────────────── check ───────────────────────────────────────*/

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify database and agency Trello credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out := map[string]any{"database": "ok"}
				if err := a.DB.PingContext(ctx); err != nil {
					out["database"] = err.Error()
				}

				cr, err := agencyCredentials(ctx, a)
				if err != nil {
					out["trello"] = err.Error()
					return printJSON(out)
				}
				m, err := a.Trello.Ping(ctx, cr)
				if err != nil {
					out["trello"] = err.Error()
					return printJSON(out)
				}
				out["trello"] = "ok"
				out["trello_member"] = m.Username
				if boards, err := a.Trello.ListBoards(ctx, cr, a.Config.Trello.OrganizationID); err == nil {
					out["trello_boards"] = len(boards)
				}
				return printJSON(out)
			})
		},
	}
}

// agencyCredentials resolves the config.Trello key and token.
func agencyCredentials(ctx context.Context, a *app.App) (trello.Credentials, error) {
	tc := a.Config.Trello
	if tc.APIKey == "" || tc.Token == "" {
		return trello.Credentials{}, fmt.Errorf("no agency credentials configured")
	}
	key, err := a.Secrets.Resolve(ctx, tc.APIKey)
	if err != nil {
		return trello.Credentials{}, fmt.Errorf("api_key: %w", err)
	}
	token, err := a.Secrets.Resolve(ctx, tc.Token)
	if err != nil {
		return trello.Credentials{}, fmt.Errorf("token: %w", err)
	}
	return trello.Credentials{Key: key, Token: token}, nil
}
