package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/oosawy/iomux"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 on a clean end or an interrupt,
// 1 when the relay cannot start or fails, 2 on bad usage.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "iomux: %v\n", err)
		return 2
	}
	if cfg.showVersion {
		fmt.Fprintf(stdout, "iomux %s\n", version)
		return 0
	}

	iomux.SetLogger(cfg.logger(stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay, err := iomux.Listen(cfg.Listen, cfg.options())
	if err != nil {
		fmt.Fprintf(stderr, "iomux: %v\n", err)
		return 1
	}

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "iomux: %v\n", err)
		return 1
	}
	return 0
}
