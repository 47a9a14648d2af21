package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	bridge, profiling, err := parseBridge(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to start bridge")
	}

	if profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	// Run until interrupted. In-flight conversations still reach a terminal
	// status; bridge.Close drains the components in reverse startup order.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("Shutting down..")

	bridge.Close()
}
