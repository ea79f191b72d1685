package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lxi0707/Typecho-play/internal/config"
	"github.com/Lxi0707/Typecho-play/internal/engine"
)

func main() {
	cfgPath := flag.String("config", "", "path to configuration file (built-in defaults apply when omitted)")
	normal := flag.Int("n", -1, "normal visit budget (overrides config)")
	required := flag.Int("r", -1, "visits per required URL (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *normal >= 0 {
		cfg.Visits.Normal = *normal
	}
	if *required >= 0 {
		cfg.Visits.RequiredPerURL = *required
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.NewEngine(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := eng.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "visit run failed: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}
