package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("DATAFLOW_DEBUG"))
	if err != nil {
		debug = false
	}
}

// Get returns a new logger instance. Debug level is enabled with the
// DATAFLOW_DEBUG environment variable.
func Get() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}
