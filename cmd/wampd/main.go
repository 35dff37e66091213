package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tenzoki/wampcore/internal/config"
	"github.com/tenzoki/wampcore/internal/logging"
	"github.com/tenzoki/wampcore/public/router"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "wampd",
	Short:   "wampd - an embeddable WAMP routing core",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wampd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(demoCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load a realm configuration and serve its metrics endpoint",
	Long: `Serve loads one or more realms from a YAML config file and keeps
them running in-process, exposing their Prometheus metrics over HTTP.

wampd has no built-in network listener: the router is meant to be
embedded by a host process that owns its own transport (TCP, TLS, a
WebSocket upgrade, whatever the deployment needs) and calls
public/router.Router.Connect per accepted connection. serve exists to
exercise a realm's lifecycle and metrics without writing that host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		r, err := router.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to start router: %w", err)
		}
		defer r.Close()

		for _, rc := range cfg.Realms {
			logging.Info(fmt.Sprintf("realm %q ready", rc.Name))
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("metrics server stopped", err)
			}
		}()
		logging.Info(fmt.Sprintf("metrics listening on %s/metrics", metricsAddr))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down")
		return server.Close()
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted publish/subscribe exchange over an in-process realm",
	Long: `Demo wires four in-process clients (subscriber, publisher, callee,
caller) into a single realm using transport.DirectTransport, runs a
HELLO/SUBSCRIBE/PUBLISH/EVENT exchange and a HELLO/REGISTER/CALL/YIELD
exchange, and logs a line for each step. It
exists to prove the routing core end to end without a network listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		logging.Init(logging.Config{Level: logging.Level(level)})
		return runDemo()
	},
}

func init() {
	serveCmd.Flags().String("config", "config/wampd.yaml", "Path to the realm configuration file")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9100", "Address to serve /metrics on")
	demoCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
