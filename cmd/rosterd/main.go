package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/etamarw/roster/pkg/datastore"
	"github.com/etamarw/roster/pkg/logging"
	"github.com/etamarw/roster/pkg/server"
	"github.com/etamarw/roster/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path (optional)")
	listenAddr := flag.String("listen", "", "TCP/TLS control plane bind address")
	metricsAddr := flag.String("metrics", "", "HTTP bind address for Prometheus /metrics (empty to keep config value)")
	dbPath := flag.String("db", "", "SQLite database file path")
	certFile := flag.String("cert", "", "TLS certificate file (auto-generated if empty)")
	keyFile := flag.String("key", "", "TLS private key file (auto-generated if empty)")
	dataDir := flag.String("data", "", "Data directory for generated files")
	idleTimeout := flag.Duration("idle-timeout", 0, "Session idle timeout before forced logout")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rosterd", version.String())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *listenAddr
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "db":
			cfg.DBPath = *dbPath
		case "cert":
			cfg.CertFile = *certFile
		case "key":
			cfg.KeyFile = *keyFile
		case "data":
			cfg.DataDir = *dataDir
		case "idle-timeout":
			cfg.IdleTimeout = server.Duration(*idleTimeout)
		}
	})

	provider, err := datastore.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	srv := server.New(cfg, server.Dependencies{Provider: provider})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
