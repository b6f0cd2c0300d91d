package models

import (
	"io"
	"os"
)

// Config controls optional machine behavior. The zero value runs a binary
// with no tracing, wiring the guest's output to the host's stdout/stderr.
type Config struct {
	Color     bool
	TraceExec bool
	TraceReg  bool
	Verbose   bool

	// Output receives tracing and diagnostics. Defaults to os.Stderr.
	Output io.Writer

	// Stdout and Stderr back the guest's file descriptors 1 and 2.
	Stdout io.Writer
	Stderr io.Writer
}

// Init fills defaults and allows a nil *Config to mean "all defaults".
func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	return c
}
