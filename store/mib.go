package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/geekxflood/trapdirector/mibcache"
)

// LookupOID resolves an OID through the mib_cache table.
func (s *Store) LookupOID(ctx context.Context, oid string) (string, string, bool, error) {
	var row MibCache
	err := s.db.WithContext(ctx).Select("mib", "name").Where("oid = ?", oid).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return row.MIB, row.Name, true, nil
}

// LoadMibCache returns every mib_cache row.
func (s *Store) LoadMibCache(ctx context.Context) ([]mibcache.Entry, error) {
	var rows []MibCache
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]mibcache.Entry, len(rows))
	for i, r := range rows {
		entries[i] = toEntry(r)
	}
	return entries, nil
}

// CreateMibEntry inserts e and sets its ID.
func (s *Store) CreateMibEntry(ctx context.Context, e *mibcache.Entry) error {
	row := fromEntry(*e)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	e.ID = row.ID
	return nil
}

// UpdateMibEntry rewrites every column of the row e.ID.
func (s *Store) UpdateMibEntry(ctx context.Context, e mibcache.Entry) error {
	return s.db.WithContext(ctx).Model(&MibCache{}).Where("id = ?", e.ID).Updates(map[string]any{
		"name":               e.Name,
		"mib":                e.MIB,
		"type":               e.Type,
		"textual_convention": e.TextualConvention,
		"display_hint":       e.DisplayHint,
		"syntax":             e.Syntax,
		"type_enum":          e.TypeEnum,
		"description":        e.Description,
	}).Error
}

// TrapObjectIDs returns the object ids linked to a trap.
func (s *Store) TrapObjectIDs(ctx context.Context, trapID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&MibCacheTrapObject{}).
		Where("trap_id = ?", trapID).Pluck("object_id", &ids).Error
	return ids, err
}

// AddTrapObject links an object to a trap.
func (s *Store) AddTrapObject(ctx context.Context, trapID, objectID int64) error {
	return s.db.WithContext(ctx).Create(&MibCacheTrapObject{TrapID: trapID, ObjectID: objectID}).Error
}

// RemoveTrapObject unlinks an object from a trap.
func (s *Store) RemoveTrapObject(ctx context.Context, trapID, objectID int64) error {
	return s.db.WithContext(ctx).
		Where("trap_id = ? AND object_id = ?", trapID, objectID).
		Delete(&MibCacheTrapObject{}).Error
}

func toEntry(r MibCache) mibcache.Entry {
	return mibcache.Entry{
		ID:                r.ID,
		OID:               r.OID,
		Name:              r.Name,
		MIB:               r.MIB,
		Type:              r.Type,
		TextualConvention: r.TextualConvention,
		DisplayHint:       r.DisplayHint,
		Syntax:            r.Syntax,
		TypeEnum:          r.TypeEnum,
		Description:       r.Description,
	}
}

func fromEntry(e mibcache.Entry) MibCache {
	return MibCache{
		ID:                e.ID,
		OID:               e.OID,
		Name:              e.Name,
		MIB:               e.MIB,
		Type:              e.Type,
		TextualConvention: e.TextualConvention,
		DisplayHint:       e.DisplayHint,
		Syntax:            e.Syntax,
		TypeEnum:          e.TypeEnum,
		Description:       e.Description,
	}
}

var _ mibcache.Repository = (*Store)(nil)
