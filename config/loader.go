package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

const maxFileSize = 10 * 1024 * 1024

// document is a configuration file unified with its schema.
type document struct {
	path   string
	merged map[string]any
}

func loadDocument(s *schema, path string) (*document, error) {
	if path == "" {
		defaults, err := s.defaults()
		if err != nil {
			return nil, err
		}
		return &document{merged: defaults}, nil
	}

	user, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.validate(user); err != nil {
		return nil, err
	}

	unified := s.value.Unify(s.ctx.Encode(user))
	var merged map[string]any
	if err := unified.Decode(&merged); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &document{path: path, merged: merged}, nil
}

func (d *document) lookup(path string) (any, error) {
	if path == "" {
		return d.merged, nil
	}
	var current any = d.merged
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %s: cannot navigate through non-map value", path)
		}
		if current, ok = m[part]; !ok {
			return nil, fmt.Errorf("path %s not found", path)
		}
	}
	return current, nil
}

// readConfigFile reads a YAML or JSON file after environment expansion.
func readConfigFile(path string) (map[string]any, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}
	content, err := safeReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", abs, err)
	}
	content = expandEnv(content)
	if !hasContent(content) {
		return nil, fmt.Errorf("configuration file %s is empty", abs)
	}

	ctx := cuecontext.New()
	var v cue.Value
	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".yaml", ".yml":
		file, err := yaml.Extract(abs, content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		v = ctx.BuildFile(file)
	case ".json":
		v = ctx.CompileBytes(content, cue.Filename(abs))
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	var out map[string]any
	if err := v.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return out, nil
}

// hasContent reports whether content holds anything besides blank lines
// and # comments.
func hasContent(content []byte) bool {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

var defaultVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-([^}]*)\}`)

// expandEnv replaces ${VAR:-default}, ${VAR} and $VAR. An unset or empty VAR
// takes the default when one is given and expands to nothing otherwise.
func expandEnv(content []byte) []byte {
	withDefaults := defaultVarPattern.ReplaceAllStringFunc(string(content), func(expr string) string {
		m := defaultVarPattern.FindStringSubmatch(expr)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
	return []byte(os.ExpandEnv(withDefaults))
}

// safeReadFile reads a regular file of bounded size, refusing relative
// traversal and kernel or credential paths.
func safeReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("file path cannot be empty")
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return nil, errors.New("invalid file path: contains directory traversal")
	}
	for _, denied := range []string{"/etc/passwd", "/etc/shadow", "/proc/", "/sys/"} {
		if strings.HasPrefix(clean, denied) {
			return nil, fmt.Errorf("access to system path not allowed: %s", denied)
		}
	}

	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("file validation failed: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("path must be a regular file")
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	return os.ReadFile(clean)
}
