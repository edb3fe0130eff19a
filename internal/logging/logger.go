// Package logging builds the gommon loggers shared by echo and the
// session services. Every line is a single JSON object.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = `{"time":"${time_rfc3339}","level":"${level}","component":"${prefix}"}`

// ParseLevel maps LOG_LEVEL values onto gommon levels. Unknown values mean
// INFO.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

// New returns a logger for component writing to stdout.
func New(component, level string) *log.Logger {
	return NewWithOutput(component, level, os.Stdout)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(component, level string, w io.Writer) *log.Logger {
	l := log.New(component)
	l.SetHeader(header)
	l.SetLevel(ParseLevel(level))
	l.SetOutput(w)
	return l
}
