package mibcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/snmptranslate"
)

func TestMibCache(t *testing.T) {
	RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "MibCache Suite")
}

type fakeTranslator struct {
	dump     []string
	dumpErr  error
	describe map[string][]string
	numeric  map[string][]string
	reverse  map[string]string
}

func (f *fakeTranslator) Lookup(_ context.Context, oid string) (string, string, error) {
	return "", "", snmptranslate.ErrNotFound
}

func (f *fakeTranslator) Describe(_ context.Context, ref string) ([]string, error) {
	if lines, ok := f.describe[ref]; ok {
		return lines, nil
	}
	return nil, fmt.Errorf("%w: %s", snmptranslate.ErrNotFound, ref)
}

func (f *fakeTranslator) DescribeNumeric(_ context.Context, ref string) ([]string, error) {
	if lines, ok := f.numeric[ref]; ok {
		return lines, nil
	}
	return nil, fmt.Errorf("%w: %s", snmptranslate.ErrNotFound, ref)
}

func (f *fakeTranslator) DumpAll(context.Context) ([]string, error) {
	return f.dump, f.dumpErr
}

func (f *fakeTranslator) HasObjects(ctx context.Context, oid string) (bool, error) {
	lines, err := f.Describe(ctx, oid)
	if err != nil {
		return false, nil
	}
	for _, l := range lines {
		if strings.Contains(l, "OBJECTS") {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTranslator) ReverseLookup(_ context.Context, name string) (string, string, error) {
	if mib, ok := f.reverse[name]; ok {
		return mib, name, nil
	}
	return "", "", snmptranslate.ErrNotFound
}

func (f *fakeTranslator) GetStats() snmptranslate.Stats { return snmptranslate.Stats{} }
func (f *fakeTranslator) Close() error                   { return nil }

type memoryRepo struct {
	entries   map[int64]Entry
	links     map[int64]map[int64]bool
	nextID    int64
	writes    int
	createErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: map[int64]Entry{}, links: map[int64]map[int64]bool{}}
}

func (r *memoryRepo) LoadMibCache(context.Context) ([]Entry, error) {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) CreateMibEntry(_ context.Context, e *Entry) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	e.ID = r.nextID
	r.entries[e.ID] = *e
	r.writes++
	return nil
}

func (r *memoryRepo) UpdateMibEntry(_ context.Context, e Entry) error {
	if _, ok := r.entries[e.ID]; !ok {
		return fmt.Errorf("no entry %d", e.ID)
	}
	r.entries[e.ID] = e
	r.writes++
	return nil
}

func (r *memoryRepo) TrapObjectIDs(_ context.Context, trapID int64) ([]int64, error) {
	var ids []int64
	for id := range r.links[trapID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryRepo) AddTrapObject(_ context.Context, trapID, objectID int64) error {
	if r.links[trapID] == nil {
		r.links[trapID] = map[int64]bool{}
	}
	r.links[trapID][objectID] = true
	r.writes++
	return nil
}

func (r *memoryRepo) RemoveTrapObject(_ context.Context, trapID, objectID int64) error {
	delete(r.links[trapID], objectID)
	r.writes++
	return nil
}

func (r *memoryRepo) byOID(oid string) (Entry, bool) {
	for _, e := range r.entries {
		if e.OID == oid {
			return e, true
		}
	}
	return Entry{}, false
}

const (
	linkDownOID  = ".1.3.6.1.6.3.1.1.5.3"
	ciscoTrapOID = ".1.3.6.1.4.1.9.0.1"
)

func newCorpus() *fakeTranslator {
	return &fakeTranslator{
		dump: []string{
			".1.3.6.1.2.1.2",
			"  interfaces(2) type=0",
			".1.3.6.1.2.1.2.2",
			"  ifTable(2) type=0",
			linkDownOID,
			"  linkDown(3) type=21",
			ciscoTrapOID,
			"  ciscoTrap(1) type=0",
			".1.3.6.1.2.1.1.3",
			"  sysUpTime(3) type=67 tc=0",
			"some garbage",
			".1.3.6.1.9.9",
		},
		describe: map[string][]string{
			linkDownOID: {
				"IF-MIB::linkDown",
				"linkDown NOTIFICATION-TYPE",
				"  -- FROM       IF-MIB",
				"  OBJECTS       { ifIndex, ifAdminStatus, ifOperStatus }",
				`  DESCRIPTION   "A linkDown trap signifies that the SNMP entity, acting in`,
				`            an agent role, has detected."`,
				"::= { iso(1) org(3) dod(6) internet(1) snmpV2(6) snmpModules(3) snmpMIB(1) snmpMIBObjects(1) snmpTraps(5) 3 }",
			},
			ciscoTrapOID: {
				"CISCO-MIB::ciscoTrap",
				"ciscoTrap TRAP-TYPE",
				"  ENTERPRISE cisco",
				"  OBJECTS { sysUpTime }",
				`  DESCRIPTION "Cisco trap."`,
			},
		},
		numeric: map[string][]string{
			"IF-MIB::ifIndex": {
				".1.3.6.1.2.1.2.2.1.1",
				"ifIndex OBJECT-TYPE",
				"  -- FROM\tIF-MIB",
				"  -- TEXTUAL CONVENTION InterfaceIndex",
				"  SYNTAX\tInteger32 (1..2147483647)",
				`  DISPLAY-HINT	"d"`,
				"  MAX-ACCESS\tread-only",
				`  DESCRIPTION	"A unique value, greater than zero, for each interface."`,
			},
			"IF-MIB::ifAdminStatus": {
				".1.3.6.1.2.1.2.2.1.7",
				"ifAdminStatus OBJECT-TYPE",
				"  SYNTAX\tINTEGER {up(1), down(2), testing(3)}",
				`  DESCRIPTION	"The desired state`,
				`            of the interface."`,
			},
			"RFC1213-MIB::ifOperStatus": {
				".1.3.6.1.2.1.2.2.1.8",
				"ifOperStatus OBJECT-TYPE",
				"  SYNTAX\tINTEGER {up(1), down(2)}",
			},
		},
		reverse: map[string]string{
			"ifOperStatus": "RFC1213-MIB",
		},
	}
}

var _ = ginkgo.Describe("Syncer", func() {
	var (
		ctx    context.Context
		repo   *memoryRepo
		corpus *fakeTranslator
		syncer *Syncer
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMemoryRepo()
		corpus = newCorpus()
		syncer = NewSyncer(repo, corpus, logging.NewNop())
	})

	ginkgo.Describe("first pass", func() {
		var report *Report

		ginkgo.BeforeEach(func() {
			var err error
			report, err = syncer.Run(ctx, Options{OnlyTraps: true})
			Expect(err).NotTo(HaveOccurred())
		})

		ginkgo.It("should classify every dump line", func() {
			Expect(report.Elements).To(Equal(12))
			Expect(report.Traps).To(Equal(2))
			Expect(report.Timers.Parse.Count).To(Equal(6))
			Expect(report.Timers.Check.Count).To(Equal(1))
			Expect(report.Timers.Type0.Count).To(Equal(2))
			Expect(report.Timers.NotTrap.Count).To(Equal(1))
			Expect(report.Timers.Update.Count).To(Equal(2))
		})

		ginkgo.It("should create traps with their MIB and description", func() {
			e, ok := repo.byOID(linkDownOID)
			Expect(ok).To(BeTrue())
			Expect(e.Name).To(Equal("linkDown"))
			Expect(e.MIB).To(Equal("IF-MIB"))
			Expect(e.Type).To(Equal(TypeTrap))
			Expect(e.Description).To(Equal("A linkDown trap signifies that the SNMP entity, acting in an agent role, has detected."))
		})

		ginkgo.It("should promote v1 traps carrying objects", func() {
			e, ok := repo.byOID(ciscoTrapOID)
			Expect(ok).To(BeTrue())
			Expect(e.Type).To(Equal(TypeTrap))
			Expect(e.Description).To(Equal("Cisco trap."))
		})

		ginkgo.It("should create and link the trap objects", func() {
			trap, _ := repo.byOID(linkDownOID)
			Expect(repo.links[trap.ID]).To(HaveLen(3))

			ifIndex, ok := repo.byOID(".1.3.6.1.2.1.2.2.1.1")
			Expect(ok).To(BeTrue())
			Expect(ifIndex.Type).To(Equal(TypeTrapObject))
			Expect(ifIndex.MIB).To(Equal("IF-MIB"))
			Expect(ifIndex.TextualConvention).To(Equal("InterfaceIndex"))
			Expect(ifIndex.DisplayHint).To(Equal("d"))

			admin, _ := repo.byOID(".1.3.6.1.2.1.2.2.1.7")
			Expect(admin.Syntax).To(Equal("INTEGER"))
			Expect(admin.TypeEnum).To(Equal("up(1), down(2), testing(3)"))
			Expect(admin.Description).To(Equal("The desired state of the interface."))

			oper, _ := repo.byOID(".1.3.6.1.2.1.2.2.1.8")
			Expect(oper.MIB).To(Equal("RFC1213-MIB"))
		})

		ginkgo.It("should count writes and missing objects", func() {
			Expect(report.Changes.Created).To(Equal(5))
			Expect(report.Changes.Linked).To(Equal(3))
			Expect(report.Changes.MissingObjects).To(Equal(1))
			Expect(report.Changes.Writes()).To(Equal(repo.writes))
		})

		ginkgo.It("should write nothing on a second pass over the same corpus", func() {
			writes := repo.writes
			second, err := syncer.Run(ctx, Options{OnlyTraps: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.writes).To(Equal(writes))
			Expect(second.Changes.Writes()).To(BeZero())
			Expect(second.Changes.Unchanged).To(Equal(2))
			Expect(second.Traps).To(Equal(report.Traps))
			Expect(second.Timers.Parse.Count).To(Equal(report.Timers.Parse.Count))
			Expect(second.Timers.Check.Count).To(Equal(report.Timers.Check.Count))
			Expect(second.Timers.Type0.Count).To(Equal(report.Timers.Type0.Count))
			Expect(second.Timers.NotTrap.Count).To(Equal(report.Timers.NotTrap.Count))
		})

		ginkgo.It("should still write nothing when forced to check objects", func() {
			writes := repo.writes
			second, err := syncer.Run(ctx, Options{OnlyTraps: true, CheckChange: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.writes).To(Equal(writes))
			Expect(second.Timers.Objects.Count).To(Equal(2))
		})

		ginkgo.It("should update a trap whose MIB changed", func() {
			corpus.describe[linkDownOID][0] = "IF-MIB-V2::linkDown"
			before, _ := repo.byOID(linkDownOID)

			second, err := syncer.Run(ctx, Options{OnlyTraps: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Changes.Updated).To(Equal(1))

			after, _ := repo.byOID(linkDownOID)
			Expect(after.ID).To(Equal(before.ID))
			Expect(after.MIB).To(Equal("IF-MIB-V2"))
		})

		ginkgo.It("should sweep links to objects no longer listed when asked", func() {
			corpus.describe[linkDownOID][3] = "  OBJECTS       { ifIndex }"
			trap, _ := repo.byOID(linkDownOID)

			second, err := syncer.Run(ctx, Options{OnlyTraps: true, CheckChange: true, Sweep: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Changes.Unlinked).To(Equal(2))
			Expect(repo.links[trap.ID]).To(HaveLen(1))
		})

		ginkgo.It("should keep stale links without sweep", func() {
			corpus.describe[linkDownOID][3] = "  OBJECTS       { ifIndex }"
			trap, _ := repo.byOID(linkDownOID)

			_, err := syncer.Run(ctx, Options{OnlyTraps: true, CheckChange: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.links[trap.ID]).To(HaveLen(3))
		})
	})

	ginkgo.It("should include non traps when not restricted", func() {
		report, err := syncer.Run(ctx, Options{OnlyTraps: false})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Traps).To(Equal(3))
		Expect(report.Timers.NotTrap.Count).To(BeZero())
	})

	ginkgo.It("should fail when the dump fails", func() {
		corpus.dumpErr = errors.New("exit status 1")
		_, err := syncer.Run(ctx, Options{OnlyTraps: true})
		Expect(err).To(MatchError(ErrDump))
	})

	ginkgo.It("should abort on database errors", func() {
		repo.createErr = errors.New("database is locked")
		_, err := syncer.Run(ctx, Options{OnlyTraps: true})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("database is locked"))
	})

	ginkgo.It("should skip traps snmptranslate cannot describe", func() {
		delete(corpus.describe, linkDownOID)
		report, err := syncer.Run(ctx, Options{OnlyTraps: true})
		Expect(err).NotTo(HaveOccurred())
		_, ok := repo.byOID(linkDownOID)
		Expect(ok).To(BeFalse())
		Expect(report.Traps).To(Equal(2))
	})

	ginkgo.It("should report progress", func() {
		var out bytes.Buffer
		_, err := syncer.Run(ctx, Options{OnlyTraps: true, Progress: &out})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("#"))
		Expect(out.String()).To(ContainSubstring("%"))
		Expect(out.String()).To(ContainSubstring("Number of processed traps : 2"))

		out.Reset()
		_, err = syncer.Run(ctx, Options{OnlyTraps: true, Progress: &out})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("C"))
	})
})

var _ = ginkgo.Describe("SyncSession", func() {
	var (
		ctx     context.Context
		repo    *memoryRepo
		session *SyncSession
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMemoryRepo()
		var err error
		session, err = NewSyncSession(ctx, repo, newCorpus(), logging.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.It("should treat entries created in the session as unchanged", func() {
		e := Entry{OID: ".1.2.3", Name: "a", MIB: "A-MIB", Type: TypeTrap}
		Expect(session.UpdateOrCreate(ctx, e)).To(Equal(Created))

		e.Name = "renamed"
		Expect(session.UpdateOrCreate(ctx, e)).To(Equal(Unchanged))
		Expect(session.Index().Created(".1.2.3")).To(BeTrue())
	})

	ginkgo.It("should compare loaded entries on name, MIB and type only", func() {
		repo.entries[7] = Entry{ID: 7, OID: ".1.2.3", Name: "a", MIB: "A-MIB", Type: TypeTrap}
		repo.nextID = 7
		s, err := NewSyncSession(ctx, repo, newCorpus(), logging.NewNop())
		Expect(err).NotTo(HaveOccurred())

		same := Entry{OID: ".1.2.3", Name: "a", MIB: "A-MIB", Type: TypeTrap, Description: "new text"}
		Expect(s.UpdateOrCreate(ctx, same)).To(Equal(Unchanged))

		changed := Entry{OID: ".1.2.3", Name: "a", MIB: "A-MIB", Type: TypeTrapObject}
		Expect(s.UpdateOrCreate(ctx, changed)).To(Equal(Updated))
		Expect(repo.entries[7].Type).To(Equal(TypeTrapObject))
		Expect(s.Counts().Updated).To(Equal(1))
	})

	ginkgo.It("should refuse to associate objects of an unknown trap", func() {
		err := session.AssociateObjects(ctx, ".9.9.9", "X-MIB", []string{"a"}, false)
		Expect(err).To(HaveOccurred())
	})

	ginkgo.It("should not duplicate links listed twice", func() {
		_, err := session.UpdateOrCreate(ctx, Entry{OID: linkDownOID, Name: "linkDown", MIB: "IF-MIB", Type: TypeTrap})
		Expect(err).NotTo(HaveOccurred())
		Expect(session.AssociateObjects(ctx, linkDownOID, "IF-MIB", []string{"ifIndex", "ifIndex"}, false)).To(Succeed())
		Expect(session.Counts().Linked).To(Equal(1))
	})

	ginkgo.It("should expose the index as an OID lookup", func() {
		_, err := session.UpdateOrCreate(ctx, Entry{OID: linkDownOID, Name: "linkDown", MIB: "IF-MIB", Type: TypeTrap})
		Expect(err).NotTo(HaveOccurred())
		mib, name, ok, err := session.Index().LookupOID(ctx, linkDownOID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(mib + "::" + name).To(Equal("IF-MIB::linkDown"))
		Expect(session.Index().Len()).To(Equal(1))
	})
})

var _ = ginkgo.Describe("Parsing", func() {
	ginkgo.DescribeTable("dump summary lines",
		func(line, name, typ string, ok bool) {
			n, t, _, _, found := parseDumpDescriptor(line)
			Expect(found).To(Equal(ok))
			Expect(n).To(Equal(name))
			Expect(t).To(Equal(typ))
		},
		ginkgo.Entry("trap", "  linkDown(3) type=21", "linkDown", "21", true),
		ginkgo.Entry("with tc and hint", "  ifIndex(1) type=2 tc=0 hint=d", "ifIndex", "2", true),
		ginkgo.Entry("oid line", ".1.3.6.1", "", "", false),
		ginkgo.Entry("no type", "  linkDown(3)", "", "", false),
	)

	ginkgo.DescribeTable("OBJECTS clauses",
		func(lines []string, expected []string) {
			Expect(parseObjects(lines)).To(Equal(expected))
		},
		ginkgo.Entry("comma separated", []string{"  OBJECTS { a, b,c }"}, []string{"a", "b", "c"}),
		ginkgo.Entry("last clause wins", []string{"OBJECTS { a }", "OBJECTS { b }"}, []string{"b"}),
		ginkgo.Entry("none", []string{"  SYNTAX INTEGER"}, []string{}),
	)

	ginkgo.It("should read a single line trap description", func() {
		mib, desc, ok := parseTrapDescriptor([]string{"A-MIB::t", `  DESCRIPTION "short text" `})
		Expect(ok).To(BeTrue())
		Expect(mib).To(Equal("A-MIB"))
		Expect(desc).To(Equal("short text"))
	})

	ginkgo.It("should accept traps without description", func() {
		mib, desc, ok := parseTrapDescriptor([]string{"A-MIB::t", "t NOTIFICATION-TYPE"})
		Expect(ok).To(BeTrue())
		Expect(mib).To(Equal("A-MIB"))
		Expect(desc).To(BeEmpty())
	})

	ginkgo.It("should reject descriptors without MIB", func() {
		_, _, ok := parseTrapDescriptor([]string{".1.3.6.1"})
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should keep an unterminated description", func() {
		_, desc, ok := parseTrapDescriptor([]string{"A-MIB::t", `  DESCRIPTION "never`, "   ends"})
		Expect(ok).To(BeTrue())
		Expect(desc).To(Equal("never ends"))
	})
})

var _ = ginkgo.Describe("Report", func() {
	ginkgo.It("should render YAML", func() {
		report := &Report{Elements: 12, Traps: 2, Changes: Counts{Created: 5}}
		var out bytes.Buffer
		Expect(report.WriteYAML(&out)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("traps: 2"))
		Expect(out.String()).To(ContainSubstring("created: 5"))
	})

	ginkgo.It("should render text", func() {
		report := &Report{Traps: 4}
		var out bytes.Buffer
		Expect(report.WriteText(&out)).To(Succeed())
		Expect(out.String()).To(HavePrefix("Number of processed traps : 4"))
	})
})
