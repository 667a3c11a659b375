package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"healthd-ng/internal/charging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "healthd-ng",
		Short:         "Battery charging-enable control service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newGetCmd(), newSetCmd(), newNodesCmd())
	return root
}

// exitCode lets scripts tell a device without the node (2) apart from a node
// that failed (3).
func exitCode(err error) int {
	switch charging.KindOf(err) {
	case charging.KindUnsupportedOperation:
		return 2
	case charging.KindIllegalState:
		return 3
	}
	if errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		code := exitCode(err)
		if code != 0 {
			fmt.Fprintf(os.Stderr, "healthd-ng: %v\n", err)
		}
		cancel()
		os.Exit(code)
	}
}
