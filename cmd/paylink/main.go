package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/paylink/internal/controlplane"
	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/internal/server"
	"github.com/marmos91/paylink/pkg/channel/local"
	"github.com/marmos91/paylink/pkg/config"
	"github.com/marmos91/paylink/pkg/metrics"
	"github.com/marmos91/paylink/pkg/metrics/prometheus"
	"github.com/marmos91/paylink/pkg/registry"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `paylink - Payment channel session daemon

Usage:
  paylink <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the paylink daemon
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/paylink/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  paylink init

  # Start daemon with default config location
  paylink start

  # Start daemon with custom config
  paylink start --config /etc/paylink/config.yaml

  # Use environment variables to override config
  PAYLINK_LOGGING_LEVEL=DEBUG paylink start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: PAYLINK_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    PAYLINK_LOGGING_LEVEL=DEBUG
    PAYLINK_IPC_ADDRESS=127.0.0.1:7500
    PAYLINK_BALANCE_PATH=/var/lib/paylink/balances
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("paylink %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/paylink/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	var configPath string
	var err error

	if *configFile != "" {
		configPath, err = config.InitConfigToPath(*configFile, *force)
	} else {
		configPath, err = config.InitConfig(*force)
	}

	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the daemon with: paylink start")
	fmt.Printf("  3. Or specify custom config: paylink start --config %s\n", configPath)
}

// runStart handles the start subcommand
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/paylink/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.MustLoad(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Initialize the structured logger
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(*configFile))

	// Initialize metrics FIRST so the constructors below see the registry
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the persistent caller quota store
	balances, err := config.CreateBalanceStore(cfg.Balance)
	if err != nil {
		log.Fatalf("Failed to create balance store: %v", err)
	}
	defer func() {
		if err := balances.Close(); err != nil {
			logger.Error("Balance store close error", "error", err)
		}
	}()
	logger.Info("Balance store ready", "type", cfg.Balance.Type, "path", cfg.Balance.Path)

	// Session registry with the in-process channel protocol
	reg := registry.New(balances, local.Factory(), prometheus.NewRegistryMetrics())

	// IPC listener for channel callers
	ipcSrv := server.New(server.Config{
		Network: cfg.IPC.Network,
		Addr:    cfg.IPC.Address,
	}, reg)

	// Control plane API server
	apiSrv := controlplane.NewServer(cfg.ControlPlane.Addr(), reg)

	serverDone := make(chan error, 2)
	go func() { serverDone <- ipcSrv.Serve(ctx) }()
	go func() { serverDone <- apiSrv.Serve(ctx) }()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Daemon is running. Press Ctrl+C to stop.")

	exitCode := 0
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			exitCode = 1
		}
		serverDone <- nil // account for the server that already returned
	}

	cancel()
	ipcSrv.Stop()

	// Disconnect every live session before the stores go away
	reg.CloseAll()

	for i := 0; i < 2; i++ {
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			exitCode = 1
		}
	}

	if exitCode != 0 {
		logger.Error("Daemon stopped with errors")
		os.Exit(exitCode)
	}
	logger.Info("Daemon stopped gracefully")
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
