package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/assistly/gatekeeper/internal/server"
	"github.com/assistly/gatekeeper/internal/service"
)

const banner = `
  ____       _       _
 / ___| __ _| |_ ___| | _____  ___ _ __   ___ _ __
| |  _ / _' | __/ _ \ |/ / _ \/ _ \ '_ \ / _ \ '__|
| |_| | (_| | ||  __/   <  __/  __/ |_) |  __/ |
 \____|\__,_|\__\___|_|\_\___|\___| .__/ \___|_|
                                  |_|
`

const devJWTSecret = "gatekeeper-dev-secret-change-me"

func newServeCmd() *cobra.Command {
	var (
		port   int
		host   string
		dev    bool
		daemon bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gatekeeper server",
		Long: `Start the HTTP server for the admin API together with the background jobs that
bootstrap the first admin and renew the secret access path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemon {
				return startDaemon(os.Args[1:])
			}
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, CORS *, dev JWT secret)")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Run in the background, logging to the data directory")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	if pid, err := readPID(); err == nil && pid != os.Getpid() && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	fmt.Print(banner)
	fmt.Println()

	level := viper.GetString("log.level")
	if dev {
		level = "debug"
	}
	logger := newLogger(os.Stderr, level, viper.GetString("log.format"))

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		if !dev {
			return errors.New("auth.jwt_secret is required (set GATEKEEPER_AUTH_JWT_SECRET or use --dev)")
		}
		jwtSecret = devJWTSecret
		logger.Warn("using the development JWT secret; set auth.jwt_secret in production")
	}

	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("store initialized", "driver", a.store.Driver())

	authSvc := service.NewAuthService(a.store, jwtSecret, nil)
	authSvc.SetTTLs(viper.GetDuration("auth.session_ttl"), viper.GetDuration("auth.gate_ttl"))

	// Bootstraps the first admin and renews an expiring token before the
	// first request is served.
	if err := a.sched.Start(context.Background()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer a.sched.Stop()

	srvCfg := server.DefaultConfig()
	srvCfg.Host = viper.GetString("server.host")
	srvCfg.Port = viper.GetInt("server.port")
	if d := viper.GetDuration("server.shutdown_timeout"); d > 0 {
		srvCfg.ShutdownTimeout = d
	}
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 && !dev {
		srvCfg.CORSOrigins = origins
	}

	srv := server.New(srvCfg, server.Deps{
		Store:    a.store,
		Auth:     authSvc,
		Settings: a.settings,
		Access:   a.access,
		Tokens:   a.tokens,
		Admins:   a.admins,
		Rotator:  a.sched,
		Links:    a.links,
	}, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "path", pidFilePath(), "error", err)
	}
	defer removePID()

	fmt.Printf("→ Gatekeeper %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Admin API:  %s/api/admin\n", a.links.Access(""))
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Mail:       %s\n", viper.GetString("mail.transport"))
	fmt.Println()

	return srv.ListenAndServe()
}

// startDaemon re-executes the current command line without the daemon flag
// as a detached child whose output goes to the log file.
func startDaemon(args []string) error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, withoutDaemonFlag(args)...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.Env = os.Environ()
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	fmt.Printf("Gatekeeper started in the background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Println("  Stop with: gatekeeper stop")
	return child.Process.Release()
}

func withoutDaemonFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "--daemon", "-d", "--daemon=true":
			continue
		}
		out = append(out, a)
	}
	return out
}
