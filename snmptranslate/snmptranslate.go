// Package snmptranslate wraps the net-snmp snmptranslate tool.
//
// The trap pipeline and the MIB cache synchronization both rely on the
// installed MIB corpus as seen by snmptranslate. This package exposes the
// handful of invocations they need behind the Translator interface so the
// callers can be tested with a fake instead of shelling out:
//
//	snmptranslate -m ALL -M +<dirs> <oid>              Lookup
//	snmptranslate -m ALL -M +<dirs> -Td <ref>          Describe
//	snmptranslate -m ALL -M +<dirs> -On -Td <ref>      DescribeNumeric
//	snmptranslate -m ALL -M +<dirs> -On -Tto           DumpAll
//	snmptranslate -m ALL -M +<dirs> -IR <name>         ReverseLookup
//
// Basic Usage:
//
//	tr := snmptranslate.New(snmptranslate.DefaultConfig())
//	mib, name, err := tr.Lookup(ctx, ".1.3.6.1.6.3.1.1.5.1")
//	if errors.Is(err, snmptranslate.ErrNotFound) {
//		// unknown OID, not a failure
//	}
//
// A non-zero exit status of the tool is reported as ErrNotFound, except for
// DumpAll where it is a hard error.
package snmptranslate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when snmptranslate cannot resolve a reference.
var ErrNotFound = errors.New("not found by snmptranslate")

// Translator provides the snmptranslate invocations used by trapdirector.
type Translator interface {
	// Lookup converts a numeric OID to its MIB and object name.
	Lookup(ctx context.Context, oid string) (mib, name string, err error)

	// Describe returns the full descriptor of an OID or MIB::name reference.
	Describe(ctx context.Context, ref string) ([]string, error)

	// DescribeNumeric is Describe with the OID line printed numerically.
	DescribeNumeric(ctx context.Context, ref string) ([]string, error)

	// DumpAll lists the whole corpus as alternating OID and summary lines.
	DumpAll(ctx context.Context) ([]string, error)

	// HasObjects reports whether the descriptor of oid carries an OBJECTS clause.
	HasObjects(ctx context.Context, oid string) (bool, error)

	// ReverseLookup finds the MIB owning a bare object name.
	ReverseLookup(ctx context.Context, name string) (mib, object string, err error)

	// GetStats returns invocation statistics
	GetStats() Stats

	// Close releases resources and cleans up
	Close() error
}

// Stats provides statistics about the translator's invocations.
type Stats struct {
	Invocations    int64         `json:"invocations"`
	Failures       int64         `json:"failures"`
	CacheHits      int64         `json:"cache_hits"`
	CacheMisses    int64         `json:"cache_misses"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Config holds configuration options for the translator.
type Config struct {
	// Path of the snmptranslate binary.
	Path string `json:"path"`

	// MIBDirs are prepended to the default MIB search path.
	MIBDirs []string `json:"mib_dirs"`

	// MaxCacheSize bounds the Lookup cache; 0 disables caching. The cache
	// lives as long as the Translator, so it is only enabled for a single
	// batch run.
	MaxCacheSize int `json:"max_cache_size"`

	// Timeout bounds every invocation but DumpAll; 0 means none.
	Timeout time.Duration `json:"timeout"`

	// Runner executes the tool. Defaults to ExecRunner.
	Runner Runner `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Path:    "/usr/bin/snmptranslate",
		MIBDirs: []string{"/usr/share/icingaweb2/modules/trapdirector/mibs"},
	}
}

type translator struct {
	mu     sync.Mutex
	config Config
	runner Runner
	cache  *Cache
	stats  Stats
}

// New creates a translator backed by the snmptranslate binary.
func New(config Config) Translator {
	runner := config.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	t := &translator{
		config: config,
		runner: runner,
	}
	if config.MaxCacheSize > 0 {
		t.cache = NewCache(config.MaxCacheSize)
	}
	return t
}

// baseArgs loads every MIB, searching the configured directories first.
func (t *translator) baseArgs() []string {
	args := []string{"-m", "ALL"}
	if len(t.config.MIBDirs) > 0 {
		args = append(args, "-M", "+"+strings.Join(t.config.MIBDirs, ":"))
	}
	return args
}

func (t *translator) run(ctx context.Context, args ...string) ([]string, error) {
	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}
	return t.exec(ctx, args...)
}

// exec invokes the tool without a deadline of its own.
func (t *translator) exec(ctx context.Context, args ...string) ([]string, error) {
	start := time.Now()
	lines, err := t.runner.Run(ctx, t.config.Path, append(t.baseArgs(), args...)...)
	t.updateStats(time.Since(start), err != nil)
	return lines, err
}

func (t *translator) Lookup(ctx context.Context, oid string) (string, string, error) {
	oid = normalizeOID(oid)

	if t.cache != nil {
		if v, ok := t.cache.Get(oid); ok {
			t.countCache(true)
			mib, name, _ := splitRef(v)
			return mib, name, nil
		}
		t.countCache(false)
	}

	lines, err := t.run(ctx, oid)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrNotFound, oid, err)
	}
	mib, name, ok := splitRef(lastLine(lines))
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, oid)
	}
	if t.cache != nil {
		t.cache.Set(oid, mib+"::"+name)
	}
	return mib, name, nil
}

func (t *translator) Describe(ctx context.Context, ref string) ([]string, error) {
	return t.describe(ctx, ref, "-Td")
}

func (t *translator) DescribeNumeric(ctx context.Context, ref string) ([]string, error) {
	return t.describe(ctx, ref, "-On", "-Td")
}

func (t *translator) describe(ctx context.Context, ref string, flags ...string) ([]string, error) {
	lines, err := t.run(ctx, append(flags, ref)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, ref, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return lines, nil
}

func (t *translator) DumpAll(ctx context.Context) ([]string, error) {
	// Dumping a large corpus takes long, only ctx bounds it.
	lines, err := t.exec(ctx, "-On", "-Tto")
	if err != nil {
		return nil, fmt.Errorf("dumping MIB corpus: %w", err)
	}
	return lines, nil
}

func (t *translator) HasObjects(ctx context.Context, oid string) (bool, error) {
	lines, err := t.Describe(ctx, oid)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if strings.Contains(line, "OBJECTS") {
			return true, nil
		}
	}
	return false, nil
}

func (t *translator) ReverseLookup(ctx context.Context, name string) (string, string, error) {
	lines, err := t.run(ctx, "-IR", name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}
	mib, object, ok := splitRef(lastLine(lines))
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return mib, object, nil
}

func (t *translator) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *translator) Close() error {
	if t.cache != nil {
		t.cache.Clear()
	}
	return nil
}

// updateStats updates invocation statistics.
func (t *translator) updateStats(duration time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Invocations++
	if failed {
		t.stats.Failures++
	}

	// EMA with alpha = 0.1
	if t.stats.AverageLatency == 0 {
		t.stats.AverageLatency = duration
	} else {
		t.stats.AverageLatency = time.Duration(
			0.9*float64(t.stats.AverageLatency) + 0.1*float64(duration),
		)
	}
}

func (t *translator) countCache(hit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hit {
		t.stats.CacheHits++
	} else {
		t.stats.CacheMisses++
	}
}

// splitRef splits "MIB::name" on its last "::".
func splitRef(ref string) (mib, name string, ok bool) {
	i := strings.LastIndex(ref, "::")
	if i < 0 {
		return "", "", false
	}
	return ref[:i], ref[i+2:], true
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

// normalizeOID normalizes an OID string by ensuring it has a leading dot.
func normalizeOID(oid string) string {
	if oid == "" {
		return oid
	}
	if !strings.HasPrefix(oid, ".") {
		return "." + oid
	}
	return oid
}
