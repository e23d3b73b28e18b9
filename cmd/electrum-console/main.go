// Command electrum-console is an interactive console for talking to
// Electrum servers.
//
// It maintains one connection with trust-on-first-use certificate
// pinning, lets you send raw protocol methods, and prints incoming
// notifications as they arrive.
//
// Usage:
//
//	electrum-console [flags]
//
// Flags:
//
//	-config string     Configuration file path (default: platform config dir)
//	-server string     Server endpoint host:port:scheme, overrides the config
//	-data-dir string   State directory for pins and logs, overrides the config
//	-debug             Write protocol events to the event log
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Connect to the configured server
//	electrum-console
//
//	# Connect to a specific TLS server with protocol logging
//	electrum-console -server node.example:50002:s -debug
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/justinvforvendetta/electrum-xmc/pkg/cert"
	"github.com/justinvforvendetta/electrum-xmc/pkg/config"
	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
	"github.com/justinvforvendetta/electrum-xmc/pkg/network"
	"github.com/justinvforvendetta/electrum-xmc/pkg/transport"
	"github.com/justinvforvendetta/electrum-xmc/pkg/version"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		server     = flag.String("server", "", "Server endpoint host:port:scheme")
		dataDir    = flag.String("data-dir", "", "State directory for pins and logs")
		debug      = flag.Bool("debug", false, "Write protocol events to the event log")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if err := run(*configPath, *server, *dataDir, *debug, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, server, dataDir string, debug bool, logLevel string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if server != "" {
		cfg.Server = server
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if debug {
		cfg.Debug = true
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	endpoint, err := transport.ParseEndpoint(cfg.Server)
	if err != nil {
		return err
	}

	events := log.Logger(log.NoopLogger{})
	if cfg.Debug {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		fileLog, err := log.NewFileLogger(cfg.EventLogPath())
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer fileLog.Close()
		events = log.NewMultiLogger(fileLog, log.NewSlogAdapter(logger))
		logger.Info("protocol events logged", "path", cfg.EventLogPath())
	}

	store := cert.NewStore(cfg.CertsDir())
	trust := cert.NewManager(store, logger)
	dialer := &transport.Dialer{Trust: trust, Log: logger}

	console, err := newConsole(store)
	if err != nil {
		return err
	}
	defer console.close()

	net, err := network.New(network.Config{
		Server:  endpoint,
		Dialer:  dialer,
		Handler: console.handleEvent,
		Log:     logger,
		Events:  events,
	})
	if err != nil {
		return err
	}
	console.net = net

	fmt.Printf("electrum-xmc console %s (protocol %s)\n", version.Client, version.Protocol)
	net.Start()
	defer net.Stop()

	console.run()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return config.Load(filepath.Join(dir, config.FileName))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
