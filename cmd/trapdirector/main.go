// Command trapdirector processes SNMP traps and maintains the MIB cache of
// the trap database.
//
// Usage:
//
//	trapdirector [-config file] <command> [flags]
//
// Commands:
//
//	process    read one trap from stdin (snmptrapd traphandle)
//	listen     receive traps on UDP
//	mib-sync   synchronize the MIB cache with snmptranslate
//	erase      delete old traps
//	reset      set expired services back to OK
//	eval       evaluate a rule expression
//
// Exit codes follow the monitoring plugin convention: 0 OK, 1 WARNING,
// 2 CRITICAL, 3 UNKNOWN.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitOK = iota
	exitWarning
	exitCritical
	exitUnknown
)

// exitError carries the exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCritical
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, g *globals, args []string) error
}

var commands = []command{
	{"process", "read one trap from stdin", runProcess},
	{"listen", "receive traps on UDP", runListen},
	{"mib-sync", "synchronize the MIB cache", runMibSync},
	{"erase", "delete old traps", runErase},
	{"reset", "set expired services back to OK", runReset},
	{"eval", "evaluate a rule expression", runEval},
}

// globals holds the options shared by every command.
type globals struct {
	configPath string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	g := &globals{stdin: stdin, stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("trapdirector", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", os.Getenv("TRAPDIRECTOR_CONFIG"), "configuration file (YAML or JSON)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: trapdirector [-config file] <command> [flags]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-10s %s\n", c.name, c.usage)
		}
		fmt.Fprintf(stderr, "\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUnknown
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUnknown
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(ctx, g, fs.Args()[1:])
		if err != nil && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "trapdirector %s: %v\n", name, err)
		}
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitCode(err)
	}

	fmt.Fprintf(stderr, "trapdirector: unknown command %q\n", name)
	fs.Usage()
	return exitUnknown
}

// newFlagSet returns the flag set of a command. Parse errors are usage
// errors.
func newFlagSet(g *globals, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("trapdirector "+name, flag.ContinueOnError)
	fs.SetOutput(g.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return withCode(exitUnknown, err)
	}
	return nil
}
