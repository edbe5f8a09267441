// internal/logging/logging.go

package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Every package logs through an entry
// derived from it so one level switch controls the whole simulator.
var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.Out = os.Stdout
	Logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	Logger.Level = logrus.InfoLevel
}

// SetLevel parses a level name ("debug", "info", ...) and applies it.
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return errors.Wrapf(err, "log level %q", name)
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects all log output, mostly for tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
