// Package main implements the fleetgate gate-runner binary: the
// self-contained runtime unpacked on each target host. It serves the
// length-prefixed JSON protocol over stdio and executes built-in
// actions locally until the controller sends a shutdown verb or closes
// the stream.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/actions/builtin"
	"github.com/fleetgate/fleetgate/pkg/gate"
)

const version = "1.0.0"

// ttl bounds an idle or runaway session; the controller re-uploads and
// relaunches cheaply, so a stuck gate is better killed than waited on.
const ttl = 30 * time.Minute

func main() {
	// Stdout carries protocol frames only; diagnostics go to stderr,
	// where the controller collects them for error context.
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	registry := actions.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		log.Error().Err(err).Msg("action registration failed")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gate.Serve(ctx, os.Stdin, os.Stdout, registry, version, log); err != nil {
		log.Error().Err(err).Msg("session ended abnormally")
		os.Exit(1)
	}
}
