package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskgrid/taskgrid/pkg/config"
	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/metrics"
	"github.com/taskgrid/taskgrid/pkg/server"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tgserver",
	Short:   "taskgrid control-plane bootstrap server",
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("tgserver version %s (%s)\n", Version, Commit))

	rootCmd.Flags().String("config", "", "path to a YAML config file")
	rootCmd.Flags().String("listen", "0.0.0.0:7100", "address the bootstrap gate listens on")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for /metrics, /health, /ready, /live")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit logs as JSON")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	fileCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}

	listen := flagOrConfig(cmd, "listen", fileCfg.ListenAddress)
	metricsAddr := flagOrConfig(cmd, "metrics-addr", fileCfg.MetricsAddr)
	logLevel := flagOrConfig(cmd, "log-level", fileCfg.LogLevel)
	logJSON, _ := cmd.Flags().GetBool("log-json")
	if fileCfg.LogJSON && !cmd.Flags().Changed("log-json") {
		logJSON = true
	}

	config.InitLogging(logLevel, logJSON)
	metrics.SetVersion(Version)

	srv := server.NewServer()
	addr, err := srv.Start(listen)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	metrics.RegisterComponent("server", true, "")
	metrics.RegisterComponent("graph", true, "")
	log.Info(fmt.Sprintf("bootstrap gate listening on %s", addr))

	collector := metrics.NewCollector(srv.Registry())
	collector.Start()
	defer collector.Stop()

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Errorf("metrics server error: %v", err)
		}
	}()
	log.Info(fmt.Sprintf("metrics endpoint: http://%s/metrics", metricsAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return srv.Stop()
}

// flagOrConfig prefers an explicitly set command-line flag over the
// value loaded from a config file, falling back to the flag's default
// when neither supplies one.
func flagOrConfig(cmd *cobra.Command, name, fromFile string) string {
	if cmd.Flags().Changed(name) || fromFile == "" {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fromFile
}
