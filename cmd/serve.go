package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanelvakker/qwtimers/internal/config"
	"github.com/tanelvakker/qwtimers/internal/errors"
	"github.com/tanelvakker/qwtimers/internal/logging"
	"github.com/tanelvakker/qwtimers/internal/proxy"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy server",
	Long: `Run the local proxy server.

Routes:
  POST /api/user/login   relayed over a fresh HTTP/2 session; the
                         session cookies it returns are remembered
  /api/*                 forwarded with the Authorization header
  /devices*              forwarded without the Authorization header
  everything else        served from the static client directory

Cookies are shared by every client of this proxy. Run it for a single
user only.`,
	RunE: runServe,
}

var (
	serveListen        string
	serveTarget        string
	serveStaticDir     string
	serveLoginTimeout  time.Duration
	serveDiagnosticLog string
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", config.DefaultListenAddr, "Address to listen on")
	serveCmd.Flags().StringVar(&serveTarget, "target", config.DefaultTargetURL, "Upstream API URL")
	serveCmd.Flags().StringVar(&serveStaticDir, "static-dir", ".", "Directory with the browser client (empty = off)")
	serveCmd.Flags().DurationVar(&serveLoginTimeout, "login-timeout", config.DefaultLoginTimeout, "Timeout for the whole login exchange")
	serveCmd.Flags().StringVar(&serveDiagnosticLog, "diagnostic-log", "", "Path to the diagnostic log (empty = off)")
	rootCmd.AddCommand(serveCmd)
}

// serveOverrides maps the serve flags onto the configuration file.
func serveOverrides() []flagOverride {
	return []flagOverride{
		{"listen", func(c *config.Config) { c.Listen = serveListen }},
		{"target", func(c *config.Config) { c.Upstream.Target = serveTarget }},
		{"static-dir", func(c *config.Config) { c.StaticDir = serveStaticDir }},
		{"login-timeout", func(c *config.Config) { c.Upstream.LoginTimeout = config.Duration{Duration: serveLoginTimeout} }},
		{"diagnostic-log", func(c *config.Config) { c.Diagnostics.LogPath = serveDiagnosticLog }},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig(cmd.Flags(), serveOverrides()...)
	if err != nil {
		return err
	}

	cfg := proxy.FromFile(fileCfg, logging.Component("proxy"))
	server, err := proxy.NewServer(cfg)
	if err != nil {
		return errors.ConfigError("failed to create proxy", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		logging.Info("shutting down proxy server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logging.Warn("shutdown incomplete", "error", err)
		}
	}()

	logInfo("Starting qwtimers proxy on %s", cfg.ListenAddr)
	logInfo("Target: %s", cfg.TargetURL)
	if cfg.StaticDir != "" {
		logInfo("Client: %s", cfg.StaticDir)
	}
	if cfg.DiagnosticLogPath != "" {
		logInfo("Diagnostic log: %s", cfg.DiagnosticLogPath)
	}
	logWarning("Session cookies are shared by every client of this proxy")

	if err := server.Start(); err != nil {
		logging.Error("proxy server failed", "addr", cfg.ListenAddr, "error", err)
		_ = server.Proxy().Close()
		return errors.ListenError(cfg.ListenAddr, err)
	}
	logSuccess("Proxy stopped")
	return nil
}
