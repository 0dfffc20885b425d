// Package logs provides the named-logger convention the rest of
// ropforge builds on, modeled on sliver's server/generate call sites
// (e.g. wigLog = log.NamedLogger("generate", "wig")): every package
// gets a *logrus.Entry tagged with its package and component, so log
// lines can be filtered by either axis.
package logs

import "github.com/sirupsen/logrus"

var root = logrus.StandardLogger()

func init() {
	root.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// NamedLogger returns a logger entry tagged with pkg and component.
func NamedLogger(pkg, component string) *logrus.Entry {
	return root.WithFields(logrus.Fields{
		"pkg":       pkg,
		"component": component,
	})
}

// SetLevel adjusts the root logger's verbosity. Used by cmd/ropgen's
// --debug flag.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}
