package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/uvm-emu/uvm"
	"github.com/uvm-emu/uvm/models"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// print an error, and a stacktrace if available
func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if st, ok := err.(stackTracer); ok {
		for _, f := range st.StackTrace() {
			fmt.Fprintf(os.Stderr, "  %v\n", f)
		}
	}
}

func main() {
	fs := flag.NewFlagSet("uvm", flag.ExitOnError)
	etrace := fs.Bool("etrace", false, "trace execution")
	rtrace := fs.Bool("rtrace", false, "trace register modification")
	verbose := fs.Bool("v", false, "verbose output")
	color := fs.Bool("color", isatty.IsTerminal(os.Stderr.Fd()), "color trace output")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <exe>\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	args := fs.Args()
	if len(args) < 1 {
		fs.Usage()
		os.Exit(1)
	}

	config := &models.Config{
		Color:     *color,
		TraceExec: *etrace,
		TraceReg:  *rtrace,
		Verbose:   *verbose,
	}
	m, err := uvm.NewMachineFromFile(args[0], config)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	err = m.Run()
	if e, ok := errors.Cause(err).(models.ExitStatus); ok {
		os.Exit(int(e))
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}
