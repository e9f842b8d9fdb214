package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Schema is the CUE schema of the trapdirector configuration.
//
//go:embed trapdirector.cue
var Schema string

type schema struct {
	ctx   *cue.Context
	value cue.Value
}

func compileSchema(content, filename string) (*schema, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("schema content cannot be empty")
	}
	ctx := cuecontext.New()
	v := ctx.CompileString(content, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE schema: %w", err)
	}
	return &schema{ctx: ctx, value: v}, nil
}

// loadSchemaPath loads a schema file or a directory holding one CUE package.
func loadSchemaPath(path string) (*schema, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("schema path %s does not exist: %w", abs, err)
	}

	if !info.IsDir() {
		content, err := safeReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		return compileSchema(string(content), abs)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE files found in directory %s", abs)
	}
	if err := instances[0].Err; err != nil {
		return nil, fmt.Errorf("failed to load CUE files: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to build CUE schema: %w", err)
	}
	return &schema{ctx: ctx, value: v}, nil
}

// defaults returns the schema unified with an empty document.
func (s *schema) defaults() (map[string]any, error) {
	unified := s.value.Unify(s.ctx.Encode(map[string]any{}))
	if err := unified.Err(); err != nil {
		return nil, fmt.Errorf("failed to unify schema with empty config: %w", err)
	}
	var out map[string]any
	if err := unified.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	return out, nil
}

func (s *schema) validate(config map[string]any) error {
	v := s.ctx.Encode(config)
	if err := v.Err(); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	unified := s.value.Unify(v)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError turns "path: message" CUE errors into a readable form.
func formatValidationError(err error) error {
	path, msg, ok := strings.Cut(err.Error(), ":")
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return fmt.Errorf("validation error at '%s': %s", strings.TrimSpace(path), strings.TrimSpace(msg))
}
