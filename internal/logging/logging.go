// Package logging configures the process-wide logrus logger used by every
// activex component.
package logging

import (
	"fmt"
	"io"
	"log"

	"github.com/sirupsen/logrus"
)

// SetOutput configures logging output for standard loggers.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
	logrus.SetOutput(w)
}

// SetLevel parses and applies a logrus level name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// SetFormat selects "text" or "json" output.
func SetFormat(format string) error {
	switch format {
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// Configure applies level and format in one call.
func Configure(level, format string) error {
	if err := SetLevel(level); err != nil {
		return err
	}
	return SetFormat(format)
}
