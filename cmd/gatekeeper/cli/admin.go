package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin users",
		Long:  "Create and list the platform admins who can sign in to the admin console.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

type adminCreateOptions struct {
	email    string
	password string
	name     string
	super    bool
	invite   bool
}

func newAdminCreateCmd() *cobra.Command {
	var opts adminCreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin user",
		Example: `  gatekeeper admin create --email ops@example.com --super   # prompts for password
  gatekeeper admin create --email dev@example.com --invite  # emails a setup link`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Admin display name")
	cmd.Flags().BoolVar(&opts.super, "super", false, "Grant super-admin rights")
	cmd.Flags().BoolVar(&opts.invite, "invite", false, "Email a setup link instead of setting a password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password", "invite")

	return cmd
}

func runAdminCreate(out io.Writer, opts adminCreateOptions) error {
	email, err := service.NormalizeEmail(opts.email)
	if err != nil {
		return err
	}

	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if opts.invite {
		admin, err := a.admins.Invite(ctx, service.InviteRequest{
			Name:         opts.name,
			Email:        email,
			IsSuperAdmin: opts.super,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Invited admin %q (id %d); a setup link was emailed.\n", admin.Email, admin.ID)
		return nil
	}

	password := opts.password
	if password == "" {
		if password, err = promptPassword(true); err != nil {
			return err
		}
	}
	if err := service.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &model.Admin{
		Email:        email,
		Name:         opts.name,
		PasswordHash: hash,
		IsActive:     true,
		IsSuperAdmin: opts.super,
	}
	if err := a.store.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, config.ErrConflict) {
			return fmt.Errorf("an admin with email %q already exists", email)
		}
		return err
	}

	fmt.Fprintf(out, "Created admin user %q (id %d)\n", admin.Email, admin.ID)
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(out io.Writer, jsonOutput bool) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	admins, err := a.admins.List(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(admins)
	}

	if len(admins) == 0 {
		fmt.Fprintln(out, "No admin users configured. Set admin_email and run 'gatekeeper setup run'.")
		return nil
	}

	fmt.Fprintf(out, "%-5s %-30s %-24s %-7s %-6s %-8s\n", "ID", "EMAIL", "NAME", "ACTIVE", "SUPER", "PASSWORD")
	for _, ad := range admins {
		fmt.Fprintf(out, "%-5d %-30s %-24s %-7s %-6s %-8s\n",
			ad.ID, ad.Email, ad.Name, yesNo(ad.IsActive), yesNo(ad.IsSuperAdmin), yesNo(ad.HasPassword()))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
