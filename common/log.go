package common

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Log is the logger used by every package of the module.
// It discards everything until its output is changed.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.Level = logrus.InfoLevel
	return l
}

// Warning is a non-fatal anomaly met while parsing.
type Warning struct {
	Source  string
	Message string
}

func (w Warning) String() string {
	return w.Source + ": " + w.Message
}

// Diagnostics collects warnings. The zero value is ready to use,
// and a nil *Diagnostics only logs.
type Diagnostics struct {
	mu       sync.Mutex
	warnings []Warning
}

// Warnf records and logs a warning about source.
func (d *Diagnostics) Warnf(source, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	Log.WithField("source", source).Warn(msg)
	if d == nil {
		return
	}
	d.mu.Lock()
	d.warnings = append(d.warnings, Warning{Source: source, Message: msg})
	d.mu.Unlock()
}

// Warnings returns a copy of the recorded warnings in order.
func (d *Diagnostics) Warnings() []Warning {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Warning(nil), d.warnings...)
}

// Len returns the number of recorded warnings.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.warnings)
}
