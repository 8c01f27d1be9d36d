package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pixopt/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	return 0
}
