package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/assistly/gatekeeper/internal/config"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write admin settings",
		Long: `Read and write the persisted admin settings, such as admin_email and
access_token_renewal_frequency (weekly or monthly).`,
	}

	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsListCmd())

	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsGet(cmd.OutOrStdout(), args[0])
		},
	}
}

func runSettingsGet(out io.Writer, key string) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.settings.Get(context.Background(), key)
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("setting %q is not set", key)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, v)
	return nil
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Store a setting value",
		Example: "  gatekeeper settings set admin_email ops@example.com\n  gatekeeper settings set access_token_renewal_frequency monthly",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSet(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runSettingsSet(out io.Writer, key, value string) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.settings.Set(context.Background(), key, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s updated\n", key)
	return nil
}

func newSettingsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSettingsList(out io.Writer, jsonOutput bool) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.settings.List(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	}

	if len(settings) == 0 {
		fmt.Fprintln(out, "No settings stored.")
		return nil
	}
	for _, s := range settings {
		fmt.Fprintf(out, "%-34s %s\n", s.Key, s.Value)
	}
	return nil
}
