package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// Defaults of db_config settings, written back on first read.
var configDefaults = map[string]string{
	"log_level":       "2",
	"log_destination": "display",
	"log_file":        "/tmp/trapdebug.txt",
	"db_remove_days":  "60",
}

// GetDBConfig returns a setting or ErrNotFound.
func (s *Store) GetDBConfig(ctx context.Context, name string) (string, error) {
	var row DBConfig
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if err != nil {
		return "", notFound(err)
	}
	return row.Value, nil
}

// GetDBConfigValue returns a setting, falling back to its default. A default
// that is used is stored so the next read finds it.
func (s *Store) GetDBConfigValue(ctx context.Context, name string) (string, error) {
	value, err := s.GetDBConfig(ctx, name)
	if err == nil {
		return value, nil
	}
	if err != ErrNotFound {
		return "", err
	}

	def, ok := configDefaults[name]
	if !ok {
		return "", fmt.Errorf("setting %s: %w", name, ErrNotFound)
	}
	if err := s.SetDBConfigValue(ctx, name, def); err != nil {
		s.log.Warn("cannot store default setting", "name", name, "error", err)
	}
	return def, nil
}

// SetDBConfigValue creates or replaces a setting.
func (s *Store) SetDBConfigValue(ctx context.Context, name, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&DBConfig{Name: name, Value: value}).Error
}
