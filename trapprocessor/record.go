// Package trapprocessor turns received SNMP traps into service check results.
//
// A trap arrives in the snmptrapd line format: the receiving host, the
// transport line, then one "<oid> <value>" line per variable binding.
//
//	host1
//	UDP: [10.0.0.5]:161->[10.0.0.1]:162
//	.1.3.6.1.6.3.1.1.4.1.0 .1.3.6.1.4.1.8072.2.3.0.1
//	.1.3.6.1.4.1.8072.2.3.2.1 42
//
// A Pipeline parses the stream (ParseStream), names the trap and its
// bindings (Resolver), evaluates the rules of the trap OID (Matcher) and
// stores the trap with its action summary. The Receiver decodes traps from
// UDP with gosnmp and feeds them to a Pipeline through a worker pool, for
// deployments without snmptrapd.
package trapprocessor

import (
	"slices"
	"strings"
	"time"

	"github.com/geekxflood/trapdirector/ruler"
	"github.com/geekxflood/trapdirector/store"
)

// TrapRecord is a trap being processed.
type TrapRecord struct {
	ID         int64
	ReceivedAt time.Time

	// Host is the receiving host, first line of the stream.
	Host            string
	SourceIP        string
	SourcePort      string
	DestinationIP   string
	DestinationPort string

	TrapOID  string
	TrapName string
	TrapMIB  string

	// SourceName lists the monitored hosts the trap was attributed to,
	// comma separated.
	SourceName string
	Status     string
	Detail     string

	Bindings []Binding
}

// Binding is a variable binding with its resolved name.
type Binding struct {
	OID   string
	Value string
	Name  string
	MIB   string
}

// RuleBindings returns the bindings in the form rules are evaluated on.
func (r *TrapRecord) RuleBindings() []ruler.Binding {
	out := make([]ruler.Binding, len(r.Bindings))
	for i, b := range r.Bindings {
		out[i] = ruler.Binding{OID: b.OID, Value: b.Value}
	}
	return out
}

func (r *TrapRecord) addSourceName(name string) {
	if name == "" {
		return
	}
	if r.SourceName == "" {
		r.SourceName = name
		return
	}
	if slices.Contains(strings.Split(r.SourceName, ","), name) {
		return
	}
	r.SourceName += "," + name
}

func (r *TrapRecord) received() *store.Received {
	return &store.Received{
		DateReceived:    r.ReceivedAt,
		SourceIP:        r.SourceIP,
		SourcePort:      r.SourcePort,
		DestinationIP:   r.DestinationIP,
		DestinationPort: r.DestinationPort,
		TrapOID:         r.TrapOID,
		TrapName:        r.TrapName,
		TrapNameMIB:     r.TrapMIB,
		SourceName:      r.SourceName,
		Status:          r.Status,
		StatusDetail:    r.Detail,
	}
}

func (r *TrapRecord) data() []store.ReceivedData {
	out := make([]store.ReceivedData, len(r.Bindings))
	for i, b := range r.Bindings {
		out[i] = store.ReceivedData{
			OID:        b.OID,
			OIDName:    b.Name,
			OIDNameMIB: b.MIB,
			Value:      b.Value,
		}
	}
	return out
}
