package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/geekxflood/trapdirector/config"
	"github.com/geekxflood/trapdirector/dispatch"
	"github.com/geekxflood/trapdirector/inventory"
	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/snmptranslate"
	"github.com/geekxflood/trapdirector/store"
	"github.com/geekxflood/trapdirector/trapprocessor"
)

// app holds the resources of one command run.
type app struct {
	manager  config.Manager
	settings *config.Settings
	store    *store.Store
	ido      *inventory.IDO
	log      logging.Logger
	closers  []func() error
}

type setupOptions struct {
	migrate bool
	ido     bool
	// requireIDO fails when no IDO database is configured.
	requireIDO bool
}

// setup loads the configuration, initializes logging and opens the trap
// database. Failures are UNKNOWN.
func setup(ctx context.Context, g *globals, opts setupOptions) (*app, error) {
	manager, err := config.NewManager(config.Options{ConfigPath: g.configPath})
	if err != nil {
		return nil, withCode(exitUnknown, err)
	}
	settings, err := config.Load(manager)
	if err != nil {
		_ = manager.Close()
		return nil, withCode(exitUnknown, err)
	}
	if err := logging.Init(logConfig(settings.Logging)); err != nil {
		_ = manager.Close()
		return nil, withCode(exitUnknown, err)
	}

	a := &app{
		manager:  manager,
		settings: settings,
		log:      logging.NewComponentLogger("trapdirector", "command"),
	}
	a.closers = append(a.closers, manager.Close, logging.Shutdown)

	db := settings.Database
	a.store, err = store.Open(store.Config{Type: db.Traps.Type, DSN: db.Traps.DSN, Prefix: db.Prefix}, nil)
	if err != nil {
		a.Close()
		return nil, withCode(exitUnknown, err)
	}
	a.closers = append(a.closers, a.store.Close)

	if opts.migrate {
		if err := a.store.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if err := a.applyDBLogging(ctx); err != nil {
		a.log.Warn("cannot apply logging settings of the trap database", "error", err)
	}

	if opts.ido || opts.requireIDO {
		if db.IDO.DSN == "" {
			if opts.requireIDO {
				a.Close()
				return nil, withCode(exitUnknown, errors.New("database.ido.dsn is not configured"))
			}
			a.log.Info("no IDO database configured, host group rules disabled")
		} else {
			a.ido, err = inventory.OpenIDO(db.IDO.Type, db.IDO.DSN, nil)
			if err != nil {
				a.Close()
				return nil, withCode(exitUnknown, err)
			}
			a.closers = append(a.closers, a.ido.Close)
		}
	}
	return a, nil
}

// Close releases the resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func logConfig(s config.LoggingSettings) logging.Config {
	return logging.Config{Level: s.Level, Format: s.Format, Output: s.Output}
}

// applyDBLogging applies the log_level and log_destination settings of the
// trap database, which take precedence over the configuration file.
func (a *app) applyDBLogging(ctx context.Context) error {
	cfg := logConfig(a.settings.Logging)
	changed := false

	level, err := a.store.GetDBConfig(ctx, "log_level")
	switch {
	case err == nil:
		n, err := strconv.Atoi(level)
		if err != nil {
			return fmt.Errorf("log_level %q: %w", level, err)
		}
		if cfg.Level, err = logging.LevelFromTrapLevel(n); err != nil {
			return err
		}
		changed = true
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	dest, err := a.store.GetDBConfig(ctx, "log_destination")
	switch {
	case err == nil:
		cfg.Output = dest
		if dest == "file" {
			if cfg.Output, err = a.store.GetDBConfigValue(ctx, "log_file"); err != nil {
				return err
			}
		}
		changed = true
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if !changed {
		return nil
	}
	return logging.Init(cfg)
}

// translator builds the snmptranslate runner of the configuration. Only a
// batch run caches lookups, each trap sees the MIB corpus as it is now.
func (a *app) translator(batch bool) snmptranslate.Translator {
	t := a.settings.Translate
	config := snmptranslate.Config{
		Path:    t.Path,
		MIBDirs: t.Dirs,
		Timeout: t.Timeout,
	}
	if batch {
		config.MaxCacheSize = t.CacheSize
	}
	tr := snmptranslate.New(config)
	a.closers = append(a.closers, tr.Close)
	return tr
}

func (a *app) submitter() (dispatch.Submitter, error) {
	ic := a.settings.Icinga
	sub, err := dispatch.New(dispatch.Config{
		CommandFile: ic.CommandFile,
		APIHost:     ic.API.Host,
		APIPort:     ic.API.Port,
		APIUser:     ic.API.User,
		APIPassword: ic.API.Password,
		Insecure:    ic.API.Insecure,
		Timeout:     ic.API.Timeout,
	}, nil)
	if err != nil {
		return nil, withCode(exitUnknown, err)
	}
	return sub, nil
}

// pipeline assembles the trap pipeline on the trap database.
func (a *app) pipeline() (*trapprocessor.Pipeline, error) {
	sub, err := a.submitter()
	if err != nil {
		return nil, err
	}

	var groups inventory.Groups
	if a.ido != nil {
		groups = a.ido
	}

	var opts []trapprocessor.PipelineOption
	if dns := a.settings.DNS; dns.Enabled {
		namer, err := inventory.NewDNSNamer(dns.Server, dns.Timeout, nil)
		if err != nil {
			return nil, withCode(exitUnknown, err)
		}
		opts = append(opts, trapprocessor.WithNamer(namer))
	}

	return trapprocessor.NewPipeline(a.store,
		trapprocessor.NewResolver(a.store, a.translator(false), nil),
		trapprocessor.NewMatcher(a.store, groups, sub, nil),
		nil,
		opts...,
	), nil
}
