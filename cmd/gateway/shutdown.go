package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// run starts the listeners and blocks until ctx is done, then shuts down
// within the configured shutdown timeout.
func run(ctx context.Context, app *application) error {
	if err := app.gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if app.metricsListener != nil {
		if err := app.metricsListener.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("failed to start metrics listener: %w", err), app.shutdown())
		}
	}

	<-ctx.Done()
	app.logger.Info("shutdown requested")

	return app.shutdown()
}

// shutdown stops the metrics listener, drains the gateway and flushes
// pending spans. Every step runs even if an earlier one fails.
func (app *application) shutdown() error {
	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if app.metricsListener != nil && app.metricsListener.IsRunning() {
		if err := app.metricsListener.Stop(ctx); err != nil {
			app.logger.Error("failed to stop metrics listener gracefully", observability.Error(err))
			errs = append(errs, err)
		}
	}

	if app.gateway.IsRunning() {
		if err := app.gateway.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
		errs = append(errs, err)
	}

	app.logger.Info("svcgw stopped")
	return errors.Join(errs...)
}
