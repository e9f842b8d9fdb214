package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/snmptranslate"
)

// OIDLookup finds the MIB and name of an OID in the MIB cache.
// Implemented by store.Store and mibcache.Index.
type OIDLookup interface {
	LookupOID(ctx context.Context, oid string) (mib, name string, ok bool, err error)
}

// Resolver names OIDs from the MIB cache, falling back to snmptranslate.
// Names found by snmptranslate are not written to the cache.
type Resolver struct {
	cache      OIDLookup
	translator snmptranslate.Translator
	log        logging.Logger
}

// NewResolver creates a resolver. translator may be nil to rely on the
// cache only.
func NewResolver(cache OIDLookup, translator snmptranslate.Translator, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewComponentLogger("trapprocessor", "resolver")
	}
	return &Resolver{cache: cache, translator: translator, log: log}
}

// Resolve returns the MIB and name of oid. It tries the exact OID, then the
// OID without its last segment (the instance of a scalar or table column),
// then snmptranslate. ok is false when nothing knows the OID; only cache
// failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, oid string) (mib, name string, ok bool, err error) {
	if oid == "" {
		return "", "", false, nil
	}

	mib, name, ok, err = r.cache.LookupOID(ctx, oid)
	if err != nil || ok {
		return mib, name, ok, wrapLookup(oid, err)
	}
	if parent, found := stripInstance(oid); found {
		mib, name, ok, err = r.cache.LookupOID(ctx, parent)
		if err != nil || ok {
			return mib, name, ok, wrapLookup(parent, err)
		}
	}

	if r.translator == nil {
		return "", "", false, nil
	}
	mib, name, err = r.translator.Lookup(ctx, oid)
	if errors.Is(err, snmptranslate.ErrNotFound) {
		r.log.DebugContext(ctx, "oid not found", "oid", oid)
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("translating %s: %w", oid, err)
	}
	r.log.InfoContext(ctx, "found name with snmptranslate and not in database", "oid", oid, "mib", mib, "name", name)
	return mib, name, true, nil
}

// Enrich resolves the trap OID and every binding of rec. Unknown OIDs keep
// empty names.
func (r *Resolver) Enrich(ctx context.Context, rec *TrapRecord) error {
	mib, name, ok, err := r.Resolve(ctx, rec.TrapOID)
	if err != nil {
		return err
	}
	if ok {
		rec.TrapMIB, rec.TrapName = mib, name
	}
	for i := range rec.Bindings {
		b := &rec.Bindings[i]
		mib, name, ok, err := r.Resolve(ctx, b.OID)
		if err != nil {
			return err
		}
		if ok {
			b.MIB, b.Name = mib, name
		}
	}
	return nil
}

// stripInstance removes a trailing numeric segment.
func stripInstance(oid string) (string, bool) {
	i := strings.LastIndexByte(oid, '.')
	if i <= 0 || i == len(oid)-1 {
		return "", false
	}
	for _, c := range oid[i+1:] {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return oid[:i], true
}

func wrapLookup(oid string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("looking up %s in mib cache: %w", oid, err)
}
