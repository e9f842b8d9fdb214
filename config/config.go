// Package config loads the trapdirector configuration file.
//
// The file (YAML or JSON) is validated against a CUE schema. Schema defaults
// fill in every value the file leaves out, so a missing or minimal file still
// yields a complete configuration. Values may reference environment variables
// as $VAR, ${VAR} or ${VAR:-default}.
//
//	manager, err := config.NewManager(config.Options{
//		ConfigPath: "/etc/trapdirector/trapdirector.yaml",
//	})
//	if err != nil {
//		return err
//	}
//	defer manager.Close()
//
//	settings, err := config.Load(manager)
//
// The embedded schema (Schema) is used unless Options names another one.
// With HotReload set the manager watches the file and reloads it on change;
// OnConfigChange callbacks receive the outcome of each reload.
package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Provider gives typed access to configuration values by dot path
// ("listener.workers"). The optional default is returned when the path is
// absent.
type Provider interface {
	GetString(path string, defaultValue ...string) (string, error)
	GetInt(path string, defaultValue ...int) (int, error)
	GetFloat(path string, defaultValue ...float64) (float64, error)
	GetBool(path string, defaultValue ...bool) (bool, error)
	// GetDuration parses a time.ParseDuration string.
	GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error)
	GetStringSlice(path string, defaultValue ...[]string) ([]string, error)
	GetMap(path string) (map[string]any, error)
	Exists(path string) bool
	Validate() error
}

// Manager is a Provider that can reload its file.
type Manager interface {
	Provider

	StartHotReload(ctx context.Context) error
	StopHotReload()
	// OnConfigChange registers a callback run after every automatic reload,
	// with the reload error or nil.
	OnConfigChange(callback func(error))
	Reload() error
	Close() error
}

// Options configures a Manager.
type Options struct {
	// SchemaPath is a CUE file or directory. SchemaContent is inline CUE.
	// When both are empty the embedded Schema is used.
	SchemaPath    string
	SchemaContent string

	// ConfigPath is the YAML or JSON file. Empty means schema defaults only.
	ConfigPath string

	// HotReload watches ConfigPath (and SchemaPath when set).
	HotReload        bool
	HotReloadContext context.Context
}

type manager struct {
	options Options
	schema  *schema
	data    *document
	watcher *watcher
	mu      sync.RWMutex
}

// NewManager loads the schema and the configuration file.
func NewManager(options Options) (Manager, error) {
	if options.SchemaPath != "" && options.SchemaContent != "" {
		return nil, errors.New("cannot specify both schema path and schema content")
	}

	m := &manager{options: options}
	if err := m.load(); err != nil {
		return nil, err
	}

	if options.HotReload {
		ctx := options.HotReloadContext
		if ctx == nil {
			ctx = context.Background()
		}
		if err := m.StartHotReload(ctx); err != nil {
			return nil, fmt.Errorf("failed to start hot reload: %w", err)
		}
	}
	return m, nil
}

// load reads schema and file and swaps them in. Caller holds the lock or
// has exclusive access.
func (m *manager) load() error {
	s, err := m.loadSchema()
	if err != nil {
		return err
	}
	doc, err := loadDocument(s, m.options.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	m.schema = s
	m.data = doc
	return nil
}

func (m *manager) loadSchema() (*schema, error) {
	switch {
	case m.options.SchemaPath != "":
		return loadSchemaPath(m.options.SchemaPath)
	case m.options.SchemaContent != "":
		return compileSchema(m.options.SchemaContent, "inline-schema")
	default:
		return compileSchema(Schema, "trapdirector.cue")
	}
}

func (m *manager) value(path string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.lookup(path)
}

func (m *manager) GetString(path string, defaultValue ...string) (string, error) {
	v, err := m.value(path)
	if err != nil {
		return orDefault(err, defaultValue)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("value at path %s is not a string: %T", path, v)
	}
	return s, nil
}

func (m *manager) GetInt(path string, defaultValue ...int) (int, error) {
	v, err := m.value(path)
	if err != nil {
		return orDefault(err, defaultValue)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("value at path %s is not an integer: %T", path, v)
}

func (m *manager) GetFloat(path string, defaultValue ...float64) (float64, error) {
	v, err := m.value(path)
	if err != nil {
		return orDefault(err, defaultValue)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("value at path %s is not a float: %T", path, v)
}

func (m *manager) GetBool(path string, defaultValue ...bool) (bool, error) {
	v, err := m.value(path)
	if err != nil {
		return orDefault(err, defaultValue)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("value at path %s is not a boolean: %T", path, v)
	}
	return b, nil
}

func (m *manager) GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error) {
	v, err := m.value(path)
	if err != nil {
		return orDefault(err, defaultValue)
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("value at path %s is not a duration string: %T", path, v)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration at path %s: %w", path, err)
	}
	return d, nil
}

func (m *manager) GetStringSlice(path string, defaultValue ...[]string) ([]string, error) {
	v, err := m.value(path)
	if err != nil {
		return orDefault(err, defaultValue)
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d at path %s is not a string: %T", i, path, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("value at path %s is not a string list: %T", path, v)
}

func (m *manager) GetMap(path string) (map[string]any, error) {
	v, err := m.value(path)
	if err != nil {
		return nil, err
	}
	mv, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value at path %s is not a map: %T", path, v)
	}
	return copyMap(mv), nil
}

func (m *manager) Exists(path string) bool {
	_, err := m.value(path)
	return err == nil
}

func (m *manager) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema.validate(m.data.merged)
}

func (m *manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *manager) StartHotReload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		return errors.New("hot reload already started")
	}
	paths := []string{}
	if m.options.ConfigPath != "" {
		paths = append(paths, m.options.ConfigPath)
	}
	if m.options.SchemaPath != "" {
		paths = append(paths, m.options.SchemaPath)
	}
	if len(paths) == 0 {
		return errors.New("no files to watch")
	}

	w, err := newWatcher(paths, m.Reload)
	if err != nil {
		return err
	}
	if err := w.start(ctx); err != nil {
		return err
	}
	m.watcher = w
	return nil
}

func (m *manager) StopHotReload() {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if w != nil {
		w.stop()
	}
}

func (m *manager) OnConfigChange(callback func(error)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.watcher != nil {
		m.watcher.onChange(callback)
	}
}

func (m *manager) Close() error {
	m.StopHotReload()
	return nil
}

func orDefault[T any](err error, defaults []T) (T, error) {
	var zero T
	if len(defaults) > 0 {
		return defaults[0], nil
	}
	return zero, err
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			out[k] = copyMap(sub)
			continue
		}
		out[k] = v
	}
	return out
}
