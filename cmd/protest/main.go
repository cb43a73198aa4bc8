package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	protest "github.com/ska-telescope/ska-pss-protest"
	"github.com/ska-telescope/ska-pss-protest/exitcodes"
	"github.com/ska-telescope/ska-pss-protest/flags"
	"github.com/ska-telescope/ska-pss-protest/service"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "protest"
	app.Usage = "PSS pipeline product-test harness"
	app.Description = "protest runs the cheetah pipelines against known test vectors and validates the recovered candidates"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		if protest.IsRuntimeError(err) {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			return
		}
		// Scenario failures and anything unspecified exit with code 1.
		cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		clog.FatalContextf(context.Background(), "Failed to set up open telemetry: %v", err)
	}
	defer otelShutdown()

	if err := app.Run(os.Args); err != nil {
		clog.FatalContextf(context.Background(), "Application failed: %v", err)
	}
}

func run(c *cli.Context) error {
	logger := newLogger(c.String(flags.LogLevel.Name))
	ctx := clog.WithLogger(c.Context, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := protest.NewConfig(c, logger)
	if err != nil {
		return protest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	svc := service.New(cfg.HealthzAddr, cfg.MetricsAddr)
	svc.Start(ctx)
	defer svc.Shutdown(ctx)

	appCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	pt, err := protest.New(appCtx, cfg, Version, func(err error) { cancel(err) })
	if err != nil {
		return protest.NewRuntimeError(fmt.Errorf("failed to create protest: %w", err))
	}

	if err := pt.Start(appCtx); err != nil {
		return err
	}

	<-appCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = pt.Stop(stopCtx)
	_ = pt.WaitForShutdown(stopCtx)

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func newLogger(level string) *clog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
