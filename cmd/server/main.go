package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/gohall/pkg/logging"
	"github.com/NicolasHaas/gohall/pkg/server"
	"github.com/NicolasHaas/gohall/pkg/store"
	"github.com/NicolasHaas/gohall/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP bind address")
	flag.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Maximum simultaneous connections")
	flag.IntVar(&cfg.GameCadence, "cadence", cfg.GameCadence, "Minutes between 21game rounds")
	flag.IntVar(&cfg.RoundDuration, "round", cfg.RoundDuration, "Seconds a 21game round stays open")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Scheduler tick interval")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Deadline for each write to a client")
	flag.StringVar(&cfg.StoreLocation, "store", cfg.StoreLocation, "User store: SQLite path, redis:// URL or :memory:")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all users as YAML and exit")

	configFile := flag.String("config", "", "YAML config file; flags given explicitly override it")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Banner("gohall-server"))
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

	if *configFile != "" {
		if err := applyConfigFile(*configFile, &cfg); err != nil {
			slog.Error("load config", "file", *configFile, "err", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.StoreLocation)
	if err != nil {
		slog.Error("open user store", "store", cfg.StoreLocation, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Handle export command (run and exit)
	if cfg.ExportUsers {
		data, err := server.ExportUsersYAML(st)
		if err != nil {
			slog.Error("export users", "err", err)
			_ = st.Close()
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting gohall", "version", version.String(), "store", cfg.StoreLocation)
	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// applyConfigFile loads path into cfg, then re-applies the flags that were
// set explicitly on the command line so they take precedence over the file.
func applyConfigFile(path string, cfg *server.Config) error {
	explicit := map[string]string{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

	if err := server.LoadConfigFile(path, cfg); err != nil {
		return err
	}
	for name, value := range explicit {
		if err := flag.Set(name, value); err != nil {
			return fmt.Errorf("re-apply -%s: %w", name, err)
		}
	}
	return nil
}
