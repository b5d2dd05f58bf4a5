// Package logging is a thin bridge to logrus, so the rest of pressboard
// depends on an interface rather than a concrete logging backend.
package logging

import "github.com/sirupsen/logrus"

// Logger is the logging surface every component accepts at construction
// time. Nothing depends on the package-level logrus default logger.
type Logger interface {
	logrus.FieldLogger
}

// New returns a logrus-backed Logger writing text-formatted lines to its
// default output (stderr).
func New() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}
