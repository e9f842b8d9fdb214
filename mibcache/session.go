package mibcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/snmptranslate"
)

// Change is the outcome of UpdateOrCreate.
type Change int

const (
	Unchanged Change = iota
	Updated
	Created
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Created:
		return "created"
	default:
		return fmt.Sprintf("change(%d)", int(c))
	}
}

// Counts tallies the writes of a sync pass.
type Counts struct {
	Created        int `yaml:"created"`
	Updated        int `yaml:"updated"`
	Unchanged      int `yaml:"unchanged"`
	Linked         int `yaml:"linked"`
	Unlinked       int `yaml:"unlinked"`
	MissingObjects int `yaml:"missing_objects"`
}

// Writes returns the number of database writes counted.
func (c Counts) Writes() int {
	return c.Created + c.Updated + c.Linked + c.Unlinked
}

// SyncSession holds the state of one sync pass: the cache index loaded at
// start, timers and counters. A session is not safe for concurrent use;
// separate sessions are independent.
type SyncSession struct {
	repo       Repository
	translator snmptranslate.Translator
	log        logging.Logger
	index      *Index
	timers     Timers
	counts     Counts
}

// NewSyncSession loads the whole mib_cache table into a new session.
func NewSyncSession(ctx context.Context, repo Repository, translator snmptranslate.Translator, log logging.Logger) (*SyncSession, error) {
	entries, err := repo.LoadMibCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading mib cache: %w", err)
	}
	return &SyncSession{
		repo:       repo,
		translator: translator,
		log:        log,
		index:      NewIndex(entries),
	}, nil
}

// Index returns the session index.
func (s *SyncSession) Index() *Index {
	return s.index
}

// Timers returns the phase timers accumulated so far.
func (s *SyncSession) Timers() Timers {
	return s.timers
}

// Counts returns the write counters accumulated so far.
func (s *SyncSession) Counts() Counts {
	return s.counts
}

// UpdateOrCreate writes e unless the cache already holds the same name, MIB
// and type for its OID. Entries created earlier in the session are reported
// unchanged without comparison.
func (s *SyncSession) UpdateOrCreate(ctx context.Context, e Entry) (Change, error) {
	if s.index.Created(e.OID) {
		s.counts.Unchanged++
		return Unchanged, nil
	}

	if current, ok := s.index.Get(e.OID); ok {
		if current.Name == e.Name && current.MIB == e.MIB && current.Type == e.Type {
			s.log.Debug("oid unchanged", "name", e.Name, "oid", e.OID)
			s.counts.Unchanged++
			return Unchanged, nil
		}
		e.ID = current.ID
		if err := s.repo.UpdateMibEntry(ctx, e); err != nil {
			return Unchanged, fmt.Errorf("updating %s: %w", e.OID, err)
		}
		s.index.put(e, false)
		s.log.Debug("oid updated", "name", e.Name, "oid", e.OID)
		s.counts.Updated++
		return Updated, nil
	}

	if err := s.repo.CreateMibEntry(ctx, &e); err != nil {
		return Unchanged, fmt.Errorf("creating %s: %w", e.OID, err)
	}
	s.index.put(e, true)
	s.log.Debug("oid created", "name", e.Name, "oid", e.OID)
	s.counts.Created++
	return Created, nil
}

// AssociateObjects resolves every object carried by a trap, writes its
// mib_cache row and links it to the trap when the link is missing. With
// checkExisting, links of the trap to objects no longer listed are removed.
func (s *SyncSession) AssociateObjects(ctx context.Context, trapOID, trapMIB string, objects []string, checkExisting bool) error {
	trap, ok := s.index.Get(trapOID)
	if !ok {
		return fmt.Errorf("trap %s is not in the mib cache", trapOID)
	}

	ids, err := s.repo.TrapObjectIDs(ctx, trap.ID)
	if err != nil {
		return fmt.Errorf("loading objects of trap %s: %w", trapOID, err)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = false
	}

	for _, object := range objects {
		lines, mib, err := s.objectDescriptor(ctx, object, trapMIB)
		if errors.Is(err, snmptranslate.ErrNotFound) {
			s.log.Warn("error finding trap object", "object", trapMIB+"::"+object)
			s.counts.MissingObjects++
			continue
		}
		if err != nil {
			return err
		}

		e := parseObjectDescriptor(lines)
		if e.OID == "" {
			s.log.Warn("no oid for trap object", "object", mib+"::"+object)
			s.counts.MissingObjects++
			continue
		}
		e.Name = object
		e.MIB = mib
		e.Type = TypeTrapObject
		s.log.Debug("adding object", "name", e.Name, "oid", e.OID, "syntax", e.Syntax,
			"enum", e.TypeEnum, "hint", e.DisplayHint, "tc", e.TextualConvention)

		if _, err := s.UpdateOrCreate(ctx, e); err != nil {
			return err
		}

		stored, _ := s.index.Get(e.OID)
		if _, linked := seen[stored.ID]; linked {
			seen[stored.ID] = true
			continue
		}
		if err := s.repo.AddTrapObject(ctx, trap.ID, stored.ID); err != nil {
			return fmt.Errorf("linking %s to trap %s: %w", e.OID, trapOID, err)
		}
		seen[stored.ID] = true
		s.counts.Linked++
	}

	if !checkExisting {
		return nil
	}
	for id, marked := range seen {
		if marked {
			continue
		}
		if err := s.repo.RemoveTrapObject(ctx, trap.ID, id); err != nil {
			return fmt.Errorf("unlinking object %d from trap %s: %w", id, trapOID, err)
		}
		s.counts.Unlinked++
	}
	return nil
}

// objectDescriptor describes trapMIB::object, falling back to the MIB that
// snmptranslate finds for the bare name.
func (s *SyncSession) objectDescriptor(ctx context.Context, object, trapMIB string) ([]string, string, error) {
	lines, err := s.translator.DescribeNumeric(ctx, trapMIB+"::"+object)
	if err == nil {
		return lines, trapMIB, nil
	}
	if !errors.Is(err, snmptranslate.ErrNotFound) {
		return nil, "", err
	}

	mib, _, err := s.translator.ReverseLookup(ctx, object)
	if err != nil {
		return nil, "", err
	}
	lines, err = s.translator.DescribeNumeric(ctx, mib+"::"+object)
	if err != nil {
		return nil, "", err
	}
	return lines, mib, nil
}
