package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/geekxflood/trapdirector/inventory"
	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/store"
)

// TrapStore persists processed traps.
type TrapStore interface {
	InsertTrap(ctx context.Context, trap *store.Received, data []store.ReceivedData) (int64, error)
	WriteTrapError(ctx context.Context, message, sourceIP, trapOID string) error
	FinalizeTrap(ctx context.Context, id int64, processTime float64, detail string) error
}

// Pipeline processes one trap stream at a time: parse, resolve names,
// apply rules, store. A Pipeline is safe for concurrent use when its
// collaborators are.
type Pipeline struct {
	store    TrapStore
	parser   *Parser
	resolver *Resolver
	matcher  *Matcher
	namer    inventory.Namer
	log      logging.Logger
	now      func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithNamer names the source of traps no rule attributed to a host.
func WithNamer(namer inventory.Namer) PipelineOption {
	return func(p *Pipeline) { p.namer = namer }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline assembles a pipeline.
func NewPipeline(st TrapStore, resolver *Resolver, matcher *Matcher, log logging.Logger, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = logging.NewComponentLogger("trapprocessor", "pipeline")
	}
	p := &Pipeline{
		store:    st,
		parser:   NewParser(log),
		resolver: resolver,
		matcher:  matcher,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process reads a trap from r and handles it. A stream that cannot be
// parsed is recorded with status error and its *ParseError returned.
// Storage failures abort processing and are returned.
//
// The returned record has ID 0 when the trap was not stored, because the
// rules asked to ignore it.
func (p *Pipeline) Process(ctx context.Context, r io.Reader) (*TrapRecord, error) {
	start := p.now()

	rec, err := p.parser.Parse(r)
	rec.ReceivedAt = start
	ctx = logging.WithTrap(ctx, "", rec.SourceIP)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			if werr := p.store.WriteTrapError(ctx, perr.Detail(), rec.SourceIP, rec.TrapOID); werr != nil {
				return rec, errors.Join(err, werr)
			}
		}
		rec.Status = store.StatusError
		return rec, err
	}
	ctx = logging.WithValue(ctx, logging.KeyTrapOID, rec.TrapOID)

	if err := p.resolver.Enrich(ctx, rec); err != nil {
		return rec, fmt.Errorf("resolving trap names: %w", err)
	}

	outcome, err := p.matcher.Apply(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("applying rules: %w", err)
	}

	if rec.SourceName == "" && p.namer != nil {
		if name, err := p.namer.Name(ctx, rec.SourceIP); err == nil {
			rec.SourceName = name
		} else {
			p.log.DebugContext(ctx, "source not named", "error", err)
		}
	}

	if !outcome.Persist {
		p.log.InfoContext(ctx, "trap not stored, ignored by rule", "summary", outcome.Summary)
		return rec, nil
	}

	id, err := p.store.InsertTrap(ctx, rec.received(), rec.data())
	if err != nil {
		return rec, err
	}
	rec.ID = id
	ctx = logging.WithTrap(ctx, strconv.FormatInt(id, 10), "")

	elapsed := p.now().Sub(start).Seconds()
	if err := p.store.FinalizeTrap(ctx, id, elapsed, outcome.Summary); err != nil {
		return rec, err
	}
	if outcome.Summary == "" {
		rec.Detail = "No action"
	}
	p.log.InfoContext(ctx, "trap processed", "status", rec.Status, "summary", rec.Detail, "process_time", elapsed)
	return rec, nil
}
