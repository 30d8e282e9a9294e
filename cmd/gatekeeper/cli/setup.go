package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Bootstrap the first admin",
		Long: `Run the first-admin bootstrap by hand. The server also runs it at startup, so
these commands are mostly useful for re-sending a lost setup email.`,
	}

	cmd.AddCommand(newSetupRunCmd())
	cmd.AddCommand(newSetupCompleteCmd())
	cmd.AddCommand(newSetupStatusCmd())

	return cmd
}

// ---------- setup run ----------

func newSetupRunCmd() *cobra.Command {
	var resend bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create the admin named by the admin_email setting and email its credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupRun(cmd.OutOrStdout(), resend)
		},
	}

	cmd.Flags().BoolVar(&resend, "resend", false, "Replace the outstanding setup email while setup is in progress")

	return cmd
}

func runSetupRun(out io.Writer, resend bool) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	var result service.SetupResult
	if resend {
		result, err = a.setup.ResendSetup(ctx)
	} else {
		result, err = a.sched.CheckAndSetupAdmin(ctx)
	}
	if err != nil {
		return err
	}

	switch result {
	case service.SetupCreated:
		fmt.Fprintln(out, "Setup email sent.")
	case service.SetupAlreadyCompleted:
		fmt.Fprintln(out, "Setup is already completed.")
	case service.SetupAlreadyInProgress:
		fmt.Fprintln(out, "Setup is in progress; use --resend to send a new setup email.")
	case service.SetupMisconfigured:
		return fmt.Errorf("the %s setting is not configured (gatekeeper settings set %s <email>)",
			model.SettingAdminEmail, model.SettingAdminEmail)
	}
	return nil
}

// ---------- setup complete ----------

func newSetupCompleteCmd() *cobra.Command {
	var (
		token    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Redeem a setup token and choose a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupComplete(cmd.OutOrStdout(), token, password)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Setup token from the email link (required)")
	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")
	cmd.MarkFlagRequired("token")

	return cmd
}

func runSetupComplete(out io.Writer, token, password string) error {
	if password == "" {
		var err error
		if password, err = promptPassword(true); err != nil {
			return err
		}
	}

	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	admin, err := a.tokens.CompleteSetup(context.Background(), token, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Password set for %s. Sign in through the secret access URL from the setup email.\n", admin.Email)
	return nil
}

// ---------- setup status ----------

func newSetupStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the admin setup state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupStatus(cmd.OutOrStdout())
		},
	}
}

func runSetupStatus(out io.Writer) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	state, err := a.settings.SetupState(ctx)
	if err != nil {
		return err
	}
	email, err := a.settings.AdminEmail(ctx)
	if err != nil {
		email = "(not set)"
	}

	fmt.Fprintf(out, "state:       %s\n", state.Label())
	fmt.Fprintf(out, "admin_email: %s\n", email)
	return nil
}
