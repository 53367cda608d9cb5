package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/eringen/agencycms"
	"github.com/eringen/agencycms/importer"
	"github.com/eringen/agencycms/logging"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = run(ctx, serve)
	case "import":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: agencycms import <dir>")
			os.Exit(1)
		}
		dir := os.Args[2]
		err = run(ctx, func(ctx context.Context, app *agencycms.App) error {
			return importPosts(ctx, app, dir)
		})
	case "version":
		fmt.Printf("agencycms %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`agencycms - Content backend for an agency site, built with Go, Echo, and SQLite

Usage:
  agencycms [command] [arguments]

Commands:
  serve         Run the HTTP server (default)
  import <dir>  Import markdown posts with front matter from dir
  version       Print the agencycms version
  help          Show this help message`)
}

// run loads configuration and logging, builds the App and hands it to fn.
func run(ctx context.Context, fn func(context.Context, *agencycms.App) error) error {
	cfg, err := agencycms.LoadConfig(".")
	if err != nil {
		return eris.Wrap(err, "failure loading configuration")
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising logger")
	}
	defer closeLog()

	flush, err := logging.InitSentry(logger, logging.SentrySettings{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Env,
		Release:     "agencycms@" + version,
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising sentry")
	}
	defer flush()

	app := agencycms.New(cfg, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.WithError(err).Error("closing database")
		}
	}()
	return fn(ctx, app)
}

func serve(ctx context.Context, app *agencycms.App) error {
	if err := app.Config.Validate(); err != nil {
		return err
	}
	// A database that is down at boot is retried on the first request.
	if err := app.Open(ctx); err != nil {
		app.Log.WithError(err).Warn("database not available at startup")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- app.Start()
	}()

	select {
	case <-ctx.Done():
		app.Log.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.ShutdownGrace)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "graceful shutdown")
	}
	app.Log.Info("server stopped")
	return nil
}

func importPosts(ctx context.Context, app *agencycms.App, dir string) error {
	if err := app.Open(ctx); err != nil {
		return err
	}
	report, err := importer.New(app.Posts, app.Tags, app.Log).ImportDir(ctx, dir)
	if err != nil {
		return eris.Wrapf(err, "importing %s", dir)
	}

	app.Log.WithFields(logrus.Fields{
		"imported": len(report.Imported),
		"skipped":  len(report.Skipped),
		"failed":   len(report.Failed),
	}).Info("import finished")

	for _, name := range report.Imported {
		fmt.Printf("imported  %s\n", name)
	}
	for _, name := range report.Skipped {
		fmt.Printf("skipped   %s (already exists)\n", name)
	}
	names := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("failed    %s: %s\n", name, report.Failed[name])
	}
	if len(report.Failed) > 0 {
		return eris.Errorf("%d file(s) failed to import", len(report.Failed))
	}
	return nil
}
