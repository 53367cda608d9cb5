// Package logging builds the process logger: logrus with optional file
// rotation and Sentry forwarding of error-level entries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug, info, warn, error (default info)
	Format string // "json" or "text" (default json)
	File   string // optional path; rotated by size
	Out    io.Writer
}

// New returns a configured logger and a function that closes the log file,
// if one was opened.
func New(opts Options) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text", "console":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, nil, eris.Errorf("invalid log format: %s", opts.Format)
	}

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		parsed, err := logrus.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return nil, nil, eris.Wrapf(err, "invalid log level: %s", lvl)
		}
		logger.SetLevel(parsed)
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }
	if file := strings.TrimSpace(opts.File); file != "" {
		w := &lj.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		out = io.MultiWriter(out, w)
		closer = w.Close
	}
	logger.SetOutput(out)
	return logger, closer, nil
}

// SentrySettings is what InitSentry needs to reach a project.
type SentrySettings struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry forwards error, fatal and panic entries of logger to Sentry.
// An empty DSN is a no-op. The returned flush should run before exit.
func InitSentry(logger *logrus.Logger, settings SentrySettings) (func(), error) {
	if settings.DSN == "" {
		return func() {}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		Release:     settings.Release,
	})
	if err != nil {
		return nil, eris.Wrap(err, "error initializing sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hook := sentrylogrus.NewLogHookFromClient([]logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}, client)
	logger.AddHook(hook)

	return func() { hub.Flush(2 * time.Second) }, nil
}
