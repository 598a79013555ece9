package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"taskschedd/internal/app"
	"taskschedd/pkg/systemd"
)

func run(_ *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	_, _ = systemd.Ready()
	_, _ = systemd.Status(fmt.Sprintf("%d tasks scheduled", a.Dispatcher().TaskCount()))
	go func() {
		_ = systemd.Watchdog(ctx, a.Dispatcher().Healthy)
	}()

	<-ctx.Done()

	_, _ = systemd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, app.StopSignal); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return a.Err()
}
