package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"code.byted.org/khicago/kvmirror/config"
	"code.byted.org/khicago/kvmirror/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("load config: %v", err)
	}
	store, shutdown, err := config.Open(ctx, cfg)
	if err != nil {
		config.Exitf("open store: %v", err)
	}

	runErr := cli.Run(ctx, store, os.Args[1:], os.Stdout)
	if err := shutdown(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	if errors.Is(runErr, cli.ErrUsage) {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(2)
	}
	if runErr != nil {
		config.Exitf("kvmirror: %v", runErr)
	}
}
