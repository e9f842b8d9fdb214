// Package store is the trap database: trap records, rules, the MIB cache
// and operational settings, behind gorm.
//
// All tables share a configurable prefix (traps_ by default):
//
//	received, received_data          trap records and their bindings
//	rules                            trap to service rules
//	mib_cache, mib_cache_trap_object cached MIB objects
//	db_config                        key/value settings
//
// MySQL ("mysql"), PostgreSQL ("pgsql") and SQLite ("sqlite") are supported.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/geekxflood/trapdirector/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DefaultPrefix is the table prefix used when none is configured.
const DefaultPrefix = "traps_"

// Config selects the database.
type Config struct {
	// Type is one of "mysql", "pgsql" or "sqlite".
	Type string
	// DSN is the driver data source name.
	DSN string
	// Prefix is prepended to every table name.
	Prefix string
}

// Store gives access to the trap database.
type Store struct {
	db  *gorm.DB
	log logging.Logger
}

// Dialector returns the gorm dialector for a database type.
func Dialector(dbType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case "mysql":
		return mysql.Open(dsn), nil
	case "pgsql", "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// Open connects to the trap database.
func Open(cfg Config, log logging.Logger) (*Store, error) {
	dialector, err := Dialector(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix, SingularTable: true},
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s trap database: %w", cfg.Type, err)
	}
	return New(db, log), nil
}

// New wraps an open gorm connection.
func New(db *gorm.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewComponentLogger("store", "database")
	}
	return &Store{db: db, log: log}
}

// Migrate creates or updates the trap tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&Received{},
		&ReceivedData{},
		&Rule{},
		&MibCache{},
		&MibCacheTrapObject{},
		&DBConfig{},
	)
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
