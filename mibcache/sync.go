package mibcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/snmptranslate"
)

// Options control a sync pass.
type Options struct {
	// OnlyTraps restricts the pass to trap definitions.
	OnlyTraps bool
	// CheckChange re-associates objects of traps that did not change.
	CheckChange bool
	// Sweep removes links to objects a trap no longer lists.
	Sweep bool
	// Progress, when set, receives progress marks.
	Progress io.Writer
}

// Syncer runs sync passes.
type Syncer struct {
	repo       Repository
	translator snmptranslate.Translator
	log        logging.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(repo Repository, translator snmptranslate.Translator, log logging.Logger) *Syncer {
	if log == nil {
		log = logging.NewComponentLogger("mibcache", "sync")
	}
	return &Syncer{repo: repo, translator: translator, log: log}
}

// Run performs one full pass. A failing dump or database error aborts the
// pass; snmptranslate failures on single entries only skip them.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	lines, err := s.translator.DumpAll(ctx)
	if err != nil {
		s.log.Error("error executing snmptranslate", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDump, err)
	}
	s.log.Info("snmp objects returned by snmptranslate", "count", len(lines))

	session, err := NewSyncSession(ctx, s.repo, s.translator, s.log)
	if err != nil {
		return nil, err
	}

	prog := newProgress(opts.Progress, len(lines))
	for i := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prog.tick(i)

		trap, ok, err := session.detectTrap(ctx, lines, i, opts.OnlyTraps)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		session.timers.NumTraps++
		s.log.Info("found trap", "name", trap.Name, "oid", trap.OID)
		prog.mark('#')

		if err := session.syncTrap(ctx, trap, opts, prog); err != nil {
			return nil, err
		}
	}

	report := &Report{
		Elements: len(lines),
		Traps:    session.timers.NumTraps,
		Timers:   session.timers,
		Changes:  session.counts,
		Duration: time.Since(start),
	}
	if opts.Progress != nil {
		fmt.Fprintln(opts.Progress)
		if err := report.WriteText(opts.Progress); err != nil {
			return report, err
		}
	}
	return report, nil
}

// detectTrap classifies lines[i]. It returns ok when the line starts a
// definition to synchronize.
func (s *SyncSession) detectTrap(ctx context.Context, lines []string, i int, onlyTraps bool) (dumpEntry, bool, error) {
	start := time.Now()

	if !oidLine.MatchString(lines[i]) {
		s.timers.Parse.add(start)
		return dumpEntry{}, false, nil
	}
	e := dumpEntry{OID: lines[i]}

	var ok bool
	if i+1 < len(lines) {
		e.Name, e.Type, e.TC, e.Hint, ok = parseDumpDescriptor(lines[i+1])
	}
	if !ok {
		s.timers.Check.add(start)
		return dumpEntry{}, false, nil
	}

	if e.Type == typeUnknown {
		// A following sub-OID means a node, not a v1 trap.
		if i+2 < len(lines) && strings.HasPrefix(lines[i+2], e.OID+".") {
			s.timers.Type0.add(start)
			return dumpEntry{}, false, nil
		}
		objects, err := s.translator.HasObjects(ctx, e.OID)
		if err != nil {
			return dumpEntry{}, false, err
		}
		if !objects {
			s.timers.Type0.add(start)
			return dumpEntry{}, false, nil
		}
		e.Type = TypeTrap
	}

	if onlyTraps && e.Type != TypeTrap {
		s.timers.NotTrap.add(start)
		return dumpEntry{}, false, nil
	}
	return e, true, nil
}

func (s *SyncSession) syncTrap(ctx context.Context, trap dumpEntry, opts Options, prog *progress) error {
	start := time.Now()

	lines, err := s.translator.Describe(ctx, trap.OID)
	if errors.Is(err, snmptranslate.ErrNotFound) {
		s.log.Error("error executing snmptranslate", "oid", trap.OID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	mib, description, ok := parseTrapDescriptor(lines)
	if !ok {
		s.log.Error("error getting mib from trap", "oid", trap.OID, "output", strings.Join(lines, "\n"))
		return nil
	}

	change, err := s.UpdateOrCreate(ctx, Entry{
		OID:         trap.OID,
		Name:        trap.Name,
		MIB:         mib,
		Type:        trap.Type,
		Description: description,
	})
	if err != nil {
		return err
	}
	s.timers.Update.add(start)

	start = time.Now()
	if change == Unchanged && !opts.CheckChange {
		s.timers.Objects.Elapsed += time.Since(start)
		prog.mark('C')
		return nil
	}

	objects := parseObjects(lines)
	if len(objects) == 0 {
		s.log.Debug("no objects", "oid", trap.OID)
		s.timers.Objects.Elapsed += time.Since(start)
		return nil
	}
	if err := s.AssociateObjects(ctx, trap.OID, mib, objects, opts.Sweep); err != nil {
		return err
	}
	s.timers.Objects.add(start)
	return nil
}

// progress prints a '.' every two seconds and the percentage done at every
// tenth of the dump.
type progress struct {
	w     io.Writer
	base  float64
	step  float64
	done  int
	last  time.Time
	every time.Duration
}

func newProgress(w io.Writer, total int) *progress {
	base := float64(total) / 10
	return &progress{w: w, base: base, step: base, last: time.Now(), every: 2 * time.Second}
}

func (p *progress) tick(i int) {
	if p == nil || p.w == nil {
		return
	}
	if time.Since(p.last) > p.every {
		fmt.Fprint(p.w, ".")
		p.last = time.Now()
	}
	if float64(i) > p.step {
		p.done++
		p.step += p.base
		fmt.Fprintf(p.w, "\n%d%% : ", p.done*10)
	}
}

func (p *progress) mark(c byte) {
	if p == nil || p.w == nil {
		return
	}
	fmt.Fprintf(p.w, "%c", c)
}
