package dataflow

// Logger is a global interface for dataflow loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

var defaultLogger silentLogger
