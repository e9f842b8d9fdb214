package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/mibcache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "traps.db"),
	}, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	t.Run("prefixed_tables", func(t *testing.T) {
		s := newTestStore(t)
		m := s.DB().Migrator()
		for _, table := range []string{
			"traps_received", "traps_received_data", "traps_rules",
			"traps_mib_cache", "traps_mib_cache_trap_object", "traps_db_config",
		} {
			assert.True(t, m.HasTable(table), table)
		}
	})

	t.Run("custom_prefix", func(t *testing.T) {
		s, err := Open(Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "p.db"), Prefix: "td_"}, logging.NewNop())
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Migrate(context.Background()))
		assert.True(t, s.DB().Migrator().HasTable("td_rules"))
	})

	t.Run("unsupported_type", func(t *testing.T) {
		_, err := Open(Config{Type: "oracle"}, logging.NewNop())
		assert.Error(t, err)
	})

	t.Run("dialectors", func(t *testing.T) {
		for _, typ := range []string{"mysql", "pgsql", "sqlite"} {
			d, err := Dialector(typ, "dsn")
			require.NoError(t, err)
			assert.NotNil(t, d)
		}
	})
}

func TestTraps(t *testing.T) {
	ctx := context.Background()

	t.Run("insert_with_bindings", func(t *testing.T) {
		s := newTestStore(t)
		trap := &Received{
			DateReceived: time.Now(),
			SourceIP:     "10.0.0.5",
			SourcePort:   "161",
			TrapOID:      ".1.3.6.1.4.1.8072.2.3.0.1",
			Status:       StatusDone,
		}
		data := []ReceivedData{
			{OID: ".1.3.6.1.4.1.8072.2.3.2.1", Value: "42"},
			{OID: ".1.3.6.1.2.1.1.3.0", Value: "1:2:3", OIDName: "sysUpTime", OIDNameMIB: "SNMPv2-MIB"},
		}

		id, err := s.InsertTrap(ctx, trap, data)
		require.NoError(t, err)
		assert.NotZero(t, id)

		stored, err := s.GetTrap(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5", stored.SourceIP)

		bindings, err := s.TrapData(ctx, id)
		require.NoError(t, err)
		require.Len(t, bindings, 2)
		assert.Equal(t, ".1.3.6.1.4.1.8072.2.3.2.1", bindings[0].OID)
		assert.Equal(t, "sysUpTime", bindings[1].OIDName)
		assert.Equal(t, id, bindings[1].TrapID)
	})

	t.Run("successive_ids", func(t *testing.T) {
		s := newTestStore(t)
		first, err := s.InsertTrap(ctx, &Received{DateReceived: time.Now()}, nil)
		require.NoError(t, err)
		second, err := s.InsertTrap(ctx, &Received{DateReceived: time.Now()}, nil)
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})

	t.Run("error_record", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.WriteTrapError(ctx, "Error parsing trap (code 2/IP)", "", ""))

		var rows []Received
		require.NoError(t, s.DB().Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, StatusError, rows[0].Status)
		assert.Equal(t, "Error parsing trap (code 2/IP)", rows[0].StatusDetail)
	})

	t.Run("finalize", func(t *testing.T) {
		s := newTestStore(t)
		id, err := s.InsertTrap(ctx, &Received{DateReceived: time.Now()}, nil)
		require.NoError(t, err)

		require.NoError(t, s.FinalizeTrap(ctx, id, 0.25, ""))
		trap, err := s.GetTrap(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "No action", trap.StatusDetail)
		assert.InDelta(t, 0.25, trap.ProcessTime, 1e-9)

		require.NoError(t, s.FinalizeTrap(ctx, id, 0.5, "Status 2 to host/service"))
		trap, _ = s.GetTrap(ctx, id)
		assert.Equal(t, "Status 2 to host/service", trap.StatusDetail)

		assert.ErrorIs(t, s.FinalizeTrap(ctx, id+100, 0, ""), ErrNotFound)
	})

	t.Run("missing_trap", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.GetTrap(ctx, 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEraseOldTraps(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, s *Store) (oldID, newID int64) {
		var err error
		oldID, err = s.InsertTrap(ctx, &Received{DateReceived: time.Now().AddDate(0, 0, -100)},
			[]ReceivedData{{OID: ".1", Value: "old"}})
		require.NoError(t, err)
		newID, err = s.InsertTrap(ctx, &Received{DateReceived: time.Now()},
			[]ReceivedData{{OID: ".1", Value: "new"}})
		require.NoError(t, err)
		return oldID, newID
	}

	t.Run("explicit_days", func(t *testing.T) {
		s := newTestStore(t)
		oldID, newID := seed(t, s)

		n, err := s.EraseOldTraps(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.GetTrap(ctx, oldID)
		assert.ErrorIs(t, err, ErrNotFound)
		data, err := s.TrapData(ctx, oldID)
		require.NoError(t, err)
		assert.Empty(t, data)

		_, err = s.GetTrap(ctx, newID)
		assert.NoError(t, err)
	})

	t.Run("setting_not_configured", func(t *testing.T) {
		s := newTestStore(t)
		seed(t, s)
		n, err := s.EraseOldTraps(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("days_from_setting", func(t *testing.T) {
		s := newTestStore(t)
		seed(t, s)
		require.NoError(t, s.SetDBConfigValue(ctx, "db_remove_days", "10"))
		n, err := s.EraseOldTraps(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("invalid_setting", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SetDBConfigValue(ctx, "db_remove_days", "soon"))
		_, err := s.EraseOldTraps(ctx, 0)
		assert.Error(t, err)
	})
}

func TestCountAndDeleteTraps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, tr := range []Received{
		{SourceIP: "10.0.0.1", TrapOID: ".1.1"},
		{SourceIP: "10.0.0.1", TrapOID: ".1.2"},
		{SourceIP: "10.0.0.2", TrapOID: ".1.1"},
	} {
		tr := tr
		tr.DateReceived = time.Now()
		_, err := s.InsertTrap(ctx, &tr, []ReceivedData{{OID: ".9", Value: "v"}})
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		ip   string
		oid  string
		want int64
	}{
		{"by ip", "10.0.0.1", "", 2},
		{"by oid", "", ".1.1", 2},
		{"both", "10.0.0.1", ".1.1", 1},
		{"no filter", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.CountTraps(ctx, tt.ip, tt.oid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	t.Run("delete", func(t *testing.T) {
		n, err := s.DeleteTraps(ctx, "", "")
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = s.DeleteTraps(ctx, "10.0.0.1", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		left, err := s.CountTraps(ctx, "", ".1.1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), left)

		var data int64
		require.NoError(t, s.DB().Model(&ReceivedData{}).Count(&data).Error)
		assert.Equal(t, int64(1), data)
	})
}

func TestRules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rules := []*Rule{
		{TrapOID: ".1.3.6.1.4.1.8072.2.3.0.1", IP4: "10.0.0.5", HostName: "host1", ServiceName: "svc", ActionMatch: 2, ActionNoMatch: 0},
		{TrapOID: ".1.3.6.1.4.1.8072.2.3.0.1", HostGroupName: "routers", ServiceName: "svc", ActionMatch: -1, ActionNoMatch: -1, RevertOK: 300},
		{TrapOID: ".1.3.6.1.6.3.1.1.5.1", IP4: "10.0.0.6", ActionMatch: 0},
	}
	for _, r := range rules {
		require.NoError(t, s.CreateRule(ctx, r))
	}

	t.Run("by_oid", func(t *testing.T) {
		got, err := s.RulesByOID(ctx, ".1.3.6.1.4.1.8072.2.3.0.1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "host1", got[0].HostName)
		assert.Equal(t, "routers", got[1].HostGroupName)
	})

	t.Run("revert", func(t *testing.T) {
		got, err := s.RulesWithRevert(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 300, got[0].RevertOK)
	})

	t.Run("match_counter", func(t *testing.T) {
		require.NoError(t, s.IncrementRuleMatch(ctx, rules[0].ID))
		require.NoError(t, s.IncrementRuleMatch(ctx, rules[0].ID))
		got, err := s.GetRule(ctx, rules[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.NumMatch)
	})
}

func TestMibCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	trap := mibcache.Entry{OID: ".1.3.6.1.6.3.1.1.5.3", Name: "linkDown", MIB: "IF-MIB", Type: mibcache.TypeTrap}
	object := mibcache.Entry{OID: ".1.3.6.1.2.1.2.2.1.1", Name: "ifIndex", MIB: "IF-MIB", Type: mibcache.TypeTrapObject, DisplayHint: "d"}

	t.Run("create_and_load", func(t *testing.T) {
		require.NoError(t, s.CreateMibEntry(ctx, &trap))
		require.NoError(t, s.CreateMibEntry(ctx, &object))
		assert.NotZero(t, trap.ID)
		assert.NotEqual(t, trap.ID, object.ID)

		entries, err := s.LoadMibCache(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "d", entries[1].DisplayHint)
	})

	t.Run("lookup", func(t *testing.T) {
		mib, name, ok, err := s.LookupOID(ctx, trap.OID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "IF-MIB", mib)
		assert.Equal(t, "linkDown", name)

		_, _, ok, err = s.LookupOID(ctx, ".1.2.3")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update", func(t *testing.T) {
		changed := trap
		changed.MIB = "IF-MIB-V2"
		require.NoError(t, s.UpdateMibEntry(ctx, changed))
		mib, _, _, err := s.LookupOID(ctx, trap.OID)
		require.NoError(t, err)
		assert.Equal(t, "IF-MIB-V2", mib)
	})

	t.Run("trap_objects", func(t *testing.T) {
		require.NoError(t, s.AddTrapObject(ctx, trap.ID, object.ID))
		ids, err := s.TrapObjectIDs(ctx, trap.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{object.ID}, ids)

		require.NoError(t, s.RemoveTrapObject(ctx, trap.ID, object.ID))
		ids, err = s.TrapObjectIDs(ctx, trap.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestDBConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("missing", func(t *testing.T) {
		_, err := s.GetDBConfig(ctx, "log_level")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("default_written_back", func(t *testing.T) {
		v, err := s.GetDBConfigValue(ctx, "log_level")
		require.NoError(t, err)
		assert.Equal(t, "2", v)

		stored, err := s.GetDBConfig(ctx, "log_level")
		require.NoError(t, err)
		assert.Equal(t, "2", stored)
	})

	t.Run("set_replaces", func(t *testing.T) {
		require.NoError(t, s.SetDBConfigValue(ctx, "log_destination", "syslog"))
		require.NoError(t, s.SetDBConfigValue(ctx, "log_destination", "file"))
		v, err := s.GetDBConfigValue(ctx, "log_destination")
		require.NoError(t, err)
		assert.Equal(t, "file", v)
	})

	t.Run("unknown_without_default", func(t *testing.T) {
		_, err := s.GetDBConfigValue(ctx, "no_such_setting")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
