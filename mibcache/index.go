// Package mibcache keeps the database MIB cache in sync with the MIB corpus
// installed for snmptranslate.
//
// A sync pass dumps every object known to snmptranslate, detects trap
// definitions, and for each trap creates or updates its mib_cache row and the
// rows of the objects it carries, linking them through mib_cache_trap_object.
// Rows that did not change are not written, so a second pass over an
// unchanged corpus performs no write at all.
//
// Basic Usage:
//
//	syncer := mibcache.NewSyncer(repo, translator, logger)
//	report, err := syncer.Run(ctx, mibcache.Options{OnlyTraps: true})
//	if err != nil {
//		return err
//	}
//	report.WriteText(os.Stdout)
package mibcache

import (
	"context"
	"errors"
)

// ErrDump is returned when the corpus dump cannot be obtained.
var ErrDump = errors.New("mib dump failed")

// SNMP type codes stored in mib_cache.type.
const (
	TypeTrap       = "21"
	TypeTrapObject = "3"
	typeUnknown    = "0"
)

// Entry is one mib_cache row.
type Entry struct {
	ID                int64
	OID               string
	Name              string
	MIB               string
	Type              string
	TextualConvention string
	DisplayHint       string
	Syntax            string
	TypeEnum          string
	Description       string
}

// Repository is the persistence the sync engine needs.
type Repository interface {
	// LoadMibCache returns every mib_cache row.
	LoadMibCache(ctx context.Context) ([]Entry, error)
	// CreateMibEntry inserts e and sets its ID.
	CreateMibEntry(ctx context.Context, e *Entry) error
	// UpdateMibEntry rewrites the row identified by e.ID.
	UpdateMibEntry(ctx context.Context, e Entry) error
	// TrapObjectIDs returns the object ids linked to a trap.
	TrapObjectIDs(ctx context.Context, trapID int64) ([]int64, error)
	AddTrapObject(ctx context.Context, trapID, objectID int64) error
	RemoveTrapObject(ctx context.Context, trapID, objectID int64) error
}

type indexed struct {
	entry   Entry
	created bool
}

// Index is the in-memory view of mib_cache keyed by OID.
type Index struct {
	entries map[string]*indexed
}

// NewIndex indexes entries by OID. Later duplicates replace earlier ones.
func NewIndex(entries []Entry) *Index {
	ix := &Index{entries: make(map[string]*indexed, len(entries))}
	for _, e := range entries {
		ix.entries[e.OID] = &indexed{entry: e}
	}
	return ix
}

// Get returns the entry of oid.
func (ix *Index) Get(oid string) (Entry, bool) {
	it, ok := ix.entries[oid]
	if !ok {
		return Entry{}, false
	}
	return it.entry, true
}

// LookupOID resolves oid to its MIB and name.
func (ix *Index) LookupOID(_ context.Context, oid string) (string, string, bool, error) {
	it, ok := ix.entries[oid]
	if !ok {
		return "", "", false, nil
	}
	return it.entry.MIB, it.entry.Name, true, nil
}

// Created reports whether oid was inserted during the current pass.
func (ix *Index) Created(oid string) bool {
	it, ok := ix.entries[oid]
	return ok && it.created
}

// Len returns the number of indexed OIDs.
func (ix *Index) Len() int {
	return len(ix.entries)
}

func (ix *Index) put(e Entry, created bool) {
	ix.entries[e.OID] = &indexed{entry: e, created: created}
}
