package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-vault/internal/logging"
	"photo-vault/internal/startup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if current != nil {
		if interrupted {
			startup.LogShutdownInitiated("signal received")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		current.shutdown(shutdownCtx)
		cancel()
	}

	if err != nil && !interrupted {
		logging.Error("%v", err)
		_ = logging.Close()
		os.Exit(1)
	}
	_ = logging.Close()
	if interrupted {
		os.Exit(130)
	}
}
