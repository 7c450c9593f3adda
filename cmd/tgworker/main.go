package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskgrid/taskgrid/pkg/config"
	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/metrics"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
	"github.com/taskgrid/taskgrid/pkg/worker"
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
	Use:     "tgworker",
	Short:   "taskgrid worker process",
	Version: Version,
	RunE:    runWorker,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("tgworker version %s (%s)\n", Version, Commit))

	rootCmd.Flags().String("config", "", "path to a YAML config file")
	rootCmd.Flags().String("server", "", "server bootstrap address to dial, e.g. 127.0.0.1:7100")
	rootCmd.Flags().String("listen-addr", "0.0.0.0", "address this worker advertises to peers")
	rootCmd.Flags().Int("listen-port", 0, "worker-to-worker listen port (0 picks an ephemeral port)")
	rootCmd.Flags().String("work-dir", "", "working directory root for this worker's tasks and data objects")
	rootCmd.Flags().Uint32("n-cpus", 1, "CPUs this worker advertises")
	rootCmd.Flags().String("ready-file", "", "file to create once registration completes")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "address for /metrics, /health, /ready, /live")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit logs as JSON")
}

func runWorker(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	fileCfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		return err
	}

	serverAddr := stringFlagOrConfig(cmd, "server", fileCfg.ServerAddress)
	workDir := stringFlagOrConfig(cmd, "work-dir", fileCfg.WorkDir)
	readyFile := stringFlagOrConfig(cmd, "ready-file", fileCfg.ReadyFile)
	metricsAddr := stringFlagOrConfig(cmd, "metrics-addr", fileCfg.MetricsAddr)
	logLevel := stringFlagOrConfig(cmd, "log-level", fileCfg.LogLevel)
	logJSON, _ := cmd.Flags().GetBool("log-json")
	if fileCfg.LogJSON && !cmd.Flags().Changed("log-json") {
		logJSON = true
	}

	nCpus, _ := cmd.Flags().GetUint32("n-cpus")
	if fileCfg.NCpus != 0 && !cmd.Flags().Changed("n-cpus") {
		nCpus = fileCfg.NCpus
	}

	listenAddr, listenPort, err := resolveListenAddress(cmd, fileCfg.ListenAddress)
	if err != nil {
		return err
	}

	if serverAddr == "" || workDir == "" {
		return fmt.Errorf("--server and --work-dir are required")
	}

	config.InitLogging(logLevel, logJSON)
	metrics.SetVersion(Version)

	state := worker.New(workDir, types.Resources{NCpus: nCpus})
	startCfg := worker.Config{
		ServerAddress: serverAddr,
		ListenAddress: wire.NetworkEndpoint{Address: listenAddr, Port: listenPort},
		ReadyFile:     readyFile,
	}
	if err := state.Start(startCfg); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	log.WithWorkerID(state.WorkerID().String()).Info().Msg("worker registered and running")

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Errorf("metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	state.Stop()
	return nil
}

func stringFlagOrConfig(cmd *cobra.Command, name, fromFile string) string {
	if cmd.Flags().Changed(name) || fromFile == "" {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fromFile
}

// resolveListenAddress derives the advertised address:port from the
// --listen-addr/--listen-port flags, falling back to a "host:port"
// value from a config file when no flag was changed.
func resolveListenAddress(cmd *cobra.Command, fromFile string) (string, uint16, error) {
	if !cmd.Flags().Changed("listen-addr") && !cmd.Flags().Changed("listen-port") && fromFile != "" {
		host, portStr, err := splitHostPort(fromFile)
		if err != nil {
			return "", 0, err
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listenAddress port in config: %w", err)
		}
		return host, uint16(port), nil
	}

	addr, _ := cmd.Flags().GetString("listen-addr")
	port, _ := cmd.Flags().GetInt("listen-port")
	return addr, uint16(port), nil
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected host:port, got %q", addr)
}
