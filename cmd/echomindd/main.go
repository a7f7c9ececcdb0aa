// Command echomindd runs the assistant as a long-lived daemon with
// auto-learning enabled, researching its topic schedule until stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/echomind-ai/echomind/pkg/assistant"
	"github.com/echomind-ai/echomind/pkg/config"
	"github.com/echomind-ai/echomind/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	log.Setup(cfg.Logging)
	log.Info("Starting echomindd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := assistant.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize assistant", "error", err)
		os.Exit(1)
	}

	client.EnableAutoLearning(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Shutting down", "signal", sig.String())

	cancel()
	if err := client.Close(); err != nil {
		log.Error("Shutdown error", "error", err)
		os.Exit(1)
	}
	log.Info("Stopped echomindd")
}
