package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/scheduler"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and rotate the secret admin access path",
	}

	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenRotateCmd())
	cmd.AddCommand(newTokenRenewCmd())

	return cmd
}

// ---------- token show ----------

func newTokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active access token (the key is never stored and cannot be shown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenShow(cmd.OutOrStdout())
		},
	}
}

func runTokenShow(out io.Writer) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	tok, err := a.access.ActiveToken(context.Background())
	if errors.Is(err, config.ErrNotFound) {
		fmt.Fprintln(out, "No active access token. Run 'gatekeeper token rotate' to issue one.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "id:         %d\n", tok.ID)
	fmt.Fprintf(out, "url:        %s\n", a.links.Access(tok.URLPath))
	fmt.Fprintf(out, "expires_at: %s\n", tok.ExpiresAt.Format(time.RFC3339))
	if tok.CreatedBy != nil {
		fmt.Fprintf(out, "created_by: %d\n", *tok.CreatedBy)
	}
	return nil
}

// ---------- token rotate ----------

func newTokenRotateCmd() *cobra.Command {
	var actorID int64

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Issue a new access token now and email it to every active admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRotate(cmd.OutOrStdout(), actorID)
		},
	}

	cmd.Flags().Int64Var(&actorID, "admin-id", 0, "Admin recorded as the token's creator (default: the oldest active super-admin)")

	return cmd
}

func runTokenRotate(out io.Writer, actorID int64) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if actorID == 0 {
		owner, err := a.store.FindActiveSuperAdmin(ctx)
		if errors.Is(err, config.ErrNotFound) {
			return errors.New("no active super-admin to own the token; pass --admin-id")
		}
		if err != nil {
			return err
		}
		actorID = owner.ID
	}

	result, err := a.sched.RotateNow(ctx, actorID)
	if result != nil {
		printRenewal(out, result)
	}
	return err
}

// ---------- token renew ----------

func newTokenRenewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Run the scheduled renewal check once",
		Long:  "Rotate the access token only if it expires within the renewal lookahead, exactly as the scheduler would.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRenew(cmd.OutOrStdout())
		},
	}
}

func runTokenRenew(out io.Writer) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.sched.CheckAndRenewAdminAccessTokens(context.Background())
	if result != nil {
		printRenewal(out, result)
	}
	return err
}

func printRenewal(out io.Writer, r *scheduler.RenewalResult) {
	fmt.Fprintf(out, "outcome:    %s\n", r.Outcome)
	if r.Frequency != "" {
		fmt.Fprintf(out, "frequency:  %s\n", r.Frequency)
	}
	if r.Rotation == nil {
		return
	}
	fmt.Fprintf(out, "token_id:   %d\n", r.Rotation.TokenID)
	fmt.Fprintf(out, "path:       %s\n", r.Rotation.Path)
	fmt.Fprintf(out, "expires_at: %s\n", r.Rotation.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(out, "emailed:    %d (%d failed)\n", r.Recipients, r.Failed)
}
