package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/geekxflood/trapdirector/config"
	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/mibcache"
	"github.com/geekxflood/trapdirector/ruler"
	"github.com/geekxflood/trapdirector/trapprocessor"
)

// runProcess handles one trap written on stdin by snmptrapd. A trap that
// cannot be parsed is recorded and reported as WARNING.
func runProcess(ctx context.Context, g *globals, args []string) error {
	fs := newFlagSet(g, "process")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := setup(ctx, g, setupOptions{ido: true})
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	if _, err := p.Process(ctx, g.stdin); err != nil {
		var perr *trapprocessor.ParseError
		if errors.As(err, &perr) {
			return withCode(exitWarning, err)
		}
		return err
	}
	return nil
}

// runListen receives traps until interrupted. The logging level follows
// the configuration file when it changes.
func runListen(ctx context.Context, g *globals, args []string) error {
	fs := newFlagSet(g, "listen")
	address := fs.String("address", "", "UDP listen address (overrides listener.address)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := setup(ctx, g, setupOptions{migrate: true, ido: true})
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	ls := a.settings.Listener
	if *address != "" {
		ls.Address = *address
	}
	receiver, err := trapprocessor.NewReceiver(trapprocessor.ReceiverConfig{
		Address:     ls.Address,
		Community:   ls.Community,
		Workers:     ls.Workers,
		BufferSize:  ls.BufferSize,
		ReadTimeout: ls.ReadTimeout,
	}, p, nil)
	if err != nil {
		return withCode(exitUnknown, err)
	}

	if g.configPath != "" {
		if err := a.manager.StartHotReload(ctx); err != nil {
			return withCode(exitUnknown, err)
		}
		defer a.manager.StopHotReload()
		a.manager.OnConfigChange(func(err error) {
			if err != nil {
				a.log.Warn("configuration reload failed, keeping previous settings", "error", err)
				return
			}
			settings, err := config.Load(a.manager)
			if err != nil {
				a.log.Warn("configuration reload failed, keeping previous settings", "error", err)
				return
			}
			a.settings = settings
			if err := logging.SetLevel(settings.Logging.Level); err != nil {
				a.log.Warn("cannot apply log level", "error", err)
				return
			}
			if err := a.applyDBLogging(ctx); err != nil {
				a.log.Warn("cannot apply logging settings of the trap database", "error", err)
			}
			a.log.Info("configuration reloaded", "level", settings.Logging.Level)
		})
	}

	if err := receiver.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutting down trap receiver")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return receiver.Stop(stopCtx)
}

// runMibSync synchronizes the MIB cache with the MIB corpus.
func runMibSync(ctx context.Context, g *globals, args []string) error {
	fs := newFlagSet(g, "mib-sync")
	progress := fs.Bool("progress", false, "print progress marks")
	report := fs.String("report", "text", "report format: text, yaml or none")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *report != "text" && *report != "yaml" && *report != "none" {
		return withCode(exitUnknown, fmt.Errorf("unknown report format %q", *report))
	}

	a, err := setup(ctx, g, setupOptions{migrate: true})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := mibcache.Options{
		OnlyTraps:   a.settings.MIB.OnlyTraps,
		CheckChange: a.settings.MIB.CheckChange,
		Sweep:       a.settings.MIB.SweepObjects,
	}
	if *progress {
		opts.Progress = g.stdout
	}

	r, err := mibcache.NewSyncer(a.store, a.translator(true), nil).Run(ctx, opts)
	if err != nil {
		return err
	}
	return writeReport(g.stdout, r, *report, *progress)
}

func writeReport(w io.Writer, r *mibcache.Report, format string, progress bool) error {
	switch format {
	case "yaml":
		return r.WriteYAML(w)
	case "text":
		// Run already printed it after the progress marks.
		if progress {
			return nil
		}
		return r.WriteText(w)
	default:
		return nil
	}
}

// runErase deletes traps older than -days days, or db_remove_days.
func runErase(ctx context.Context, g *globals, args []string) error {
	fs := newFlagSet(g, "erase")
	days := fs.Int("days", 0, "age in days of the traps to delete, 0 reads db_remove_days")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *days < 0 {
		return withCode(exitUnknown, fmt.Errorf("invalid number of days %d", *days))
	}

	a, err := setup(ctx, g, setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.EraseOldTraps(ctx, *days)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "%d trap(s) erased\n", n)
	return nil
}

// runReset sends OK to the services whose revert delay has expired.
func runReset(ctx context.Context, g *globals, args []string) error {
	fs := newFlagSet(g, "reset")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := setup(ctx, g, setupOptions{requireIDO: true})
	if err != nil {
		return err
	}
	defer a.Close()

	sub, err := a.submitter()
	if err != nil {
		return err
	}
	n, err := trapprocessor.NewReverter(a.store, a.ido, sub, nil).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "%d service(s) reset to OK\n", n)
	return nil
}

// bindFlags collects repeated -bind oid=value flags.
type bindFlags []ruler.Binding

func (b *bindFlags) String() string {
	parts := make([]string, len(*b))
	for i, bd := range *b {
		parts[i] = bd.OID + "=" + bd.Value
	}
	return strings.Join(parts, ",")
}

func (b *bindFlags) Set(s string) error {
	oid, value, ok := strings.Cut(s, "=")
	if !ok || oid == "" {
		return fmt.Errorf("binding %q is not oid=value", s)
	}
	*b = append(*b, ruler.Binding{OID: oid, Value: value})
	return nil
}

// runEval evaluates a rule against command line bindings. It exits OK when
// the rule matches, WARNING when it does not and CRITICAL when it cannot be
// evaluated.
func runEval(_ context.Context, g *globals, args []string) error {
	fs := newFlagSet(g, "eval")
	var binds bindFlags
	fs.Var(&binds, "bind", "trap binding oid=value, repeatable")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return withCode(exitUnknown, errors.New("expected exactly one rule argument"))
	}
	rule := fs.Arg(0)

	expr, err := ruler.Substitute(rule, binds)
	if err != nil {
		return withCode(exitCritical, err)
	}
	matched, err := ruler.Evaluate(expr)
	if err != nil {
		return withCode(exitCritical, err)
	}
	fmt.Fprintf(g.stdout, "%s : %t\n", expr, matched)
	if !matched {
		return withCode(exitWarning, errors.New("rule does not match"))
	}
	return nil
}
