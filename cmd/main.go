package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(runCtx); err != nil {
		stop()
		os.Exit(1)
	}
}
