package config

import (
	"fmt"
	"time"
)

// Settings is the typed view of a trapdirector configuration.
type Settings struct {
	Translate TranslateSettings
	Database  DatabaseSettings
	Icinga    IcingaSettings
	Listener  ListenerSettings
	DNS       DNSSettings
	Logging   LoggingSettings
	MIB       MIBSettings
}

type TranslateSettings struct {
	Path      string
	Dirs      []string
	Timeout   time.Duration
	CacheSize int
}

type DBSettings struct {
	Type string
	DSN  string
}

type DatabaseSettings struct {
	Prefix string
	Traps  DBSettings
	IDO    DBSettings
}

type APISettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Insecure bool
	Timeout  time.Duration
}

type IcingaSettings struct {
	CommandFile string
	API         APISettings
}

type ListenerSettings struct {
	Address     string
	Community   string
	Workers     int
	BufferSize  int
	ReadTimeout time.Duration
}

type DNSSettings struct {
	Enabled bool
	Server  string
	Timeout time.Duration
}

type LoggingSettings struct {
	Level  string
	Format string
	Output string
}

type MIBSettings struct {
	OnlyTraps    bool
	CheckChange  bool
	SweepObjects bool
}

// Load reads every setting from p. The first missing or mistyped value
// aborts with an error naming its path.
func Load(p Provider) (*Settings, error) {
	r := &reader{p: p}
	s := &Settings{
		Translate: TranslateSettings{
			Path:      r.str("snmptranslate.path"),
			Dirs:      r.strs("snmptranslate.dirs"),
			Timeout:   r.dur("snmptranslate.timeout"),
			CacheSize: r.num("snmptranslate.cache_size"),
		},
		Database: DatabaseSettings{
			Prefix: r.str("database.prefix"),
			Traps:  DBSettings{Type: r.str("database.traps.type"), DSN: r.str("database.traps.dsn")},
			IDO:    DBSettings{Type: r.str("database.ido.type"), DSN: r.str("database.ido.dsn")},
		},
		Icinga: IcingaSettings{
			CommandFile: r.str("icinga.command_file"),
			API: APISettings{
				Host:     r.str("icinga.api.host"),
				Port:     r.num("icinga.api.port"),
				User:     r.str("icinga.api.user"),
				Password: r.str("icinga.api.password"),
				Insecure: r.flag("icinga.api.insecure"),
				Timeout:  r.dur("icinga.api.timeout"),
			},
		},
		Listener: ListenerSettings{
			Address:     r.str("listener.address"),
			Community:   r.str("listener.community"),
			Workers:     r.num("listener.workers"),
			BufferSize:  r.num("listener.buffer_size"),
			ReadTimeout: r.dur("listener.read_timeout"),
		},
		DNS: DNSSettings{
			Enabled: r.flag("dns.enabled"),
			Server:  r.str("dns.server"),
			Timeout: r.dur("dns.timeout"),
		},
		Logging: LoggingSettings{
			Level:  r.str("logging.level"),
			Format: r.str("logging.format"),
			Output: r.str("logging.output"),
		},
		MIB: MIBSettings{
			OnlyTraps:    r.flag("mib.only_traps"),
			CheckChange:  r.flag("mib.check_change"),
			SweepObjects: r.flag("mib.sweep_objects"),
		},
	}
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// reader keeps the first error of a series of Provider reads.
type reader struct {
	p   Provider
	err error
}

func (r *reader) keep(path string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("setting %s: %w", path, err)
	}
}

func (r *reader) str(path string) string {
	v, err := r.p.GetString(path)
	r.keep(path, err)
	return v
}

func (r *reader) strs(path string) []string {
	v, err := r.p.GetStringSlice(path)
	r.keep(path, err)
	return v
}

func (r *reader) num(path string) int {
	v, err := r.p.GetInt(path)
	r.keep(path, err)
	return v
}

func (r *reader) flag(path string) bool {
	v, err := r.p.GetBool(path)
	r.keep(path, err)
	return v
}

func (r *reader) dur(path string) time.Duration {
	v, err := r.p.GetDuration(path)
	r.keep(path, err)
	return v
}
