package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/mibcache"
	"github.com/geekxflood/trapdirector/snmptranslate"
)

type failingLookup struct{ err error }

func (f failingLookup) LookupOID(context.Context, string) (string, string, bool, error) {
	return "", "", false, f.err
}

// fakeTranslator answers Lookup from a map; the other methods are unused.
type fakeTranslator struct {
	names map[string]string
	err   error
	calls int
}

func (f *fakeTranslator) Lookup(_ context.Context, oid string) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	ref, ok := f.names[oid]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", snmptranslate.ErrNotFound, oid)
	}
	mib, name, _ := strings.Cut(ref, "::")
	return mib, name, nil
}

func (f *fakeTranslator) Describe(context.Context, string) ([]string, error) {
	return nil, snmptranslate.ErrNotFound
}

func (f *fakeTranslator) DescribeNumeric(context.Context, string) ([]string, error) {
	return nil, snmptranslate.ErrNotFound
}

func (f *fakeTranslator) DumpAll(context.Context) ([]string, error) { return nil, nil }

func (f *fakeTranslator) HasObjects(context.Context, string) (bool, error) { return false, nil }

func (f *fakeTranslator) ReverseLookup(context.Context, string) (string, string, error) {
	return "", "", snmptranslate.ErrNotFound
}

func (f *fakeTranslator) GetStats() snmptranslate.Stats { return snmptranslate.Stats{} }

func (f *fakeTranslator) Close() error { return nil }

func testEntries() []mibcache.Entry {
	return []mibcache.Entry{
		{OID: ".1.3.6.1.4.1.8072.2.3.0.1", MIB: "NET-SNMP-EXAMPLES-MIB", Name: "netSnmpExampleHeartbeatNotification", Type: mibcache.TypeTrap},
		{OID: ".1.3.6.1.4.1.8072.2.3.2.1", MIB: "NET-SNMP-EXAMPLES-MIB", Name: "netSnmpExampleHeartbeatRate", Type: mibcache.TypeTrapObject},
		{OID: ".1.3.6.1.2.1.1.3", MIB: "SNMPv2-MIB", Name: "sysUpTime"},
	}
}

func testIndex() *mibcache.Index {
	return mibcache.NewIndex(testEntries())
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		oid    string
		mib    string
		object string
		found  bool
	}{
		{"exact_oid", ".1.3.6.1.4.1.8072.2.3.0.1", "NET-SNMP-EXAMPLES-MIB", "netSnmpExampleHeartbeatNotification", true},
		{"scalar_instance", ".1.3.6.1.2.1.1.3.0", "SNMPv2-MIB", "sysUpTime", true},
		{"table_instance", ".1.3.6.1.4.1.8072.2.3.2.1.7", "NET-SNMP-EXAMPLES-MIB", "netSnmpExampleHeartbeatRate", true},
		{"translator_fallback", ".1.3.6.1.6.3.1.1.5.3", "IF-MIB", "linkDown", true},
		{"unknown", ".1.3.6.1.4.1.99999.1.2", "", "", false},
		{"empty", "", "", "", false},
	}

	translator := &fakeTranslator{names: map[string]string{".1.3.6.1.6.3.1.1.5.3": "IF-MIB::linkDown"}}
	r := NewResolver(testIndex(), translator, logging.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mib, name, ok, err := r.Resolve(ctx, tt.oid)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.mib, mib)
			assert.Equal(t, tt.object, name)
		})
	}

	t.Run("cache_hit_skips_translator", func(t *testing.T) {
		tr := &fakeTranslator{}
		_, _, ok, err := NewResolver(testIndex(), tr, logging.NewNop()).Resolve(ctx, ".1.3.6.1.2.1.1.3.0")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, tr.calls)
	})

	t.Run("without_translator", func(t *testing.T) {
		_, _, ok, err := NewResolver(testIndex(), nil, logging.NewNop()).Resolve(ctx, ".1.3.6.1.6.3.1.1.5.3")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cache_failure", func(t *testing.T) {
		boom := errors.New("connection lost")
		_, _, _, err := NewResolver(failingLookup{boom}, translator, logging.NewNop()).Resolve(ctx, ".1.3.6.1.2.1.1.3.0")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("translator_failure", func(t *testing.T) {
		boom := errors.New("context deadline exceeded")
		_, _, _, err := NewResolver(testIndex(), &fakeTranslator{err: boom}, logging.NewNop()).Resolve(ctx, ".1.3.6.1.4.1.5.5")
		assert.ErrorIs(t, err, boom)
	})
}

func TestEnrich(t *testing.T) {
	rec, err := parse(t, exampleTrap+".1.3.6.1.4.1.99999.1 unknown\n")
	require.NoError(t, err)

	r := NewResolver(testIndex(), &fakeTranslator{}, logging.NewNop())
	require.NoError(t, r.Enrich(context.Background(), rec))

	assert.Equal(t, "NET-SNMP-EXAMPLES-MIB", rec.TrapMIB)
	assert.Equal(t, "netSnmpExampleHeartbeatNotification", rec.TrapName)
	assert.Equal(t, "netSnmpExampleHeartbeatRate", rec.Bindings[0].Name)
	assert.Equal(t, "NET-SNMP-EXAMPLES-MIB", rec.Bindings[0].MIB)
	assert.Empty(t, rec.Bindings[1].Name)
	assert.Empty(t, rec.Bindings[1].MIB)
}

func TestStripInstance(t *testing.T) {
	tests := []struct {
		oid    string
		parent string
		ok     bool
	}{
		{".1.3.6.1.2.1.1.3.0", ".1.3.6.1.2.1.1.3", true},
		{".1.3", ".1", true},
		{".1", "", false},
		{"1", "", false},
		{".1.3.", "", false},
		{".1.3.x", "", false},
	}
	for _, tt := range tests {
		parent, ok := stripInstance(tt.oid)
		assert.Equal(t, tt.ok, ok, tt.oid)
		assert.Equal(t, tt.parent, parent, tt.oid)
	}
}
