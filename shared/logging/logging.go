package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"reservation-platform/shared/config"
)

type ctxKey struct{}

// Setup configures the standard logrus logger for a service process.
func Setup(cfg *config.Config, service string) *logrus.Entry {
	if cfg.Logging.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	return logrus.WithField("service", service)
}

// WithLogger stores entry in ctx so downstream calls log with the same fields.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
