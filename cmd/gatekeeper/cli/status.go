package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check if the Gatekeeper server is running",
		Long: `Report whether the server process is alive and ready, the admin setup state and
when the current secret access path expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
}

func runStatus(out io.Writer) error {
	reportProcess(out)
	fmt.Fprintln(out)
	return reportLifecycle(out)
}

func reportProcess(out io.Writer) {
	pid, err := readPID()
	if err != nil {
		fmt.Fprintln(out, "Server is not running (no PID file found).")
		return
	}
	if !isProcessRunning(pid) {
		removePID()
		fmt.Fprintln(out, "Server is not running (stale PID file removed).")
		return
	}

	host := viper.GetString("server.host")
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	readyAddr := fmt.Sprintf("http://%s:%d/readyz", host, viper.GetInt("server.port"))

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(readyAddr)
	if err != nil {
		fmt.Fprintf(out, "Server process is running (PID %d) but not responding to HTTP.\n", pid)
		fmt.Fprintf(out, "  Logs: %s\n", logFilePath())
		return
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	fmt.Fprintf(out, "Server is running (PID %d)\n", pid)
	fmt.Fprintf(out, "  Ready:   %s (%d %s)\n", readyAddr, resp.StatusCode, body.Status)
	fmt.Fprintf(out, "  Logs:    %s\n", logFilePath())
}

// reportLifecycle reads setup and access token state straight from the store,
// so it works whether or not the server is up.
func reportLifecycle(out io.Writer) error {
	a, err := newApp(commandLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := a.settings.SetupState(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Admin setup:   %s\n", state.Label())

	tok, err := a.access.ActiveToken(ctx)
	if err != nil {
		fmt.Fprintln(out, "Access token:  none active")
		return nil
	}
	left := time.Until(tok.ExpiresAt).Round(time.Minute)
	fmt.Fprintf(out, "Access token:  expires %s (in %s)\n", tok.ExpiresAt.Format(time.RFC3339), left)
	return nil
}
