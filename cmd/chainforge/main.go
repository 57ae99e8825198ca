package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chainforge/internal/app"
	"chainforge/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.NewAppRunner()
	if err := runner.Run(ctx, os.Args[1:]); err != nil {
		log.Printf("[ERROR] Application execution failed: %v", err)
		if err == app.ErrUsage || err == app.ErrConfigNotFound || err == app.ErrMissingArgs {
			fmt.Fprintln(os.Stderr, "")
			runner.Usage(os.Stderr)
		}
		if logging.GetLevel() < logging.Error {
			logging.SetLevel(logging.Error)
		}
		os.Exit(1)
	}
}
