// paiask – natural-language questions over PostgreSQL.
//
// Entry point: initializes the Cobra root command. With no subcommand it
// launches the Bubble Tea TUI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DachengChen/paiask/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
