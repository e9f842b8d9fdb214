package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geekxflood/trapdirector/dispatch"
	"github.com/geekxflood/trapdirector/inventory"
	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/ruler"
	"github.com/geekxflood/trapdirector/store"
)

// Rule actions below zero do not send a check.
const (
	// ActionCount only counts the match.
	ActionCount = -1
	// ActionIgnore counts the match and drops the trap unless an error occurs.
	ActionIgnore = -2
)

// RuleSource gives access to the rules of a trap OID.
type RuleSource interface {
	RulesByOID(ctx context.Context, oid string) ([]store.Rule, error)
	IncrementRuleMatch(ctx context.Context, id int64) error
}

// Outcome is the result of applying the rules to a trap.
type Outcome struct {
	Status  string
	Summary string
	// Persist is false when the last evaluated rule asked to ignore the trap
	// and no rule failed.
	Persist bool
	// Rules is the number of candidate rules evaluated.
	Rules int
}

// Matcher evaluates the rules of a trap and sends the resulting checks.
type Matcher struct {
	rules     RuleSource
	groups    inventory.Groups
	submitter dispatch.Submitter
	engine    ruler.Engine
	log       logging.Logger
}

// NewMatcher creates a matcher. groups may be nil, in which case host group
// rules never match.
func NewMatcher(rules RuleSource, groups inventory.Groups, submitter dispatch.Submitter, log logging.Logger) *Matcher {
	if log == nil {
		log = logging.NewComponentLogger("trapprocessor", "matcher")
	}
	return &Matcher{rules: rules, groups: groups, submitter: submitter, log: log}
}

// Stats returns the rule evaluation counters.
func (m *Matcher) Stats() ruler.Stats {
	return m.engine.Stats()
}

// CandidateRules returns the rules of oid applying to a trap sent by ip.
// A rule applies when its IPv4 or IPv6 address is ip. A host group rule
// applies once per member with address ip, with HostName set to the member.
func (m *Matcher) CandidateRules(ctx context.Context, ip, oid string) ([]store.Rule, error) {
	all, err := m.rules.RulesByOID(ctx, oid)
	if err != nil {
		return nil, err
	}

	var out []store.Rule
	for _, rule := range all {
		if ip != "" && (rule.IP4 == ip || rule.IP6 == ip) {
			out = append(out, rule)
			continue
		}
		if rule.HostGroupName == "" || m.groups == nil {
			continue
		}
		members, err := m.groups.HostGroupMembers(ctx, rule.HostGroupName)
		if err != nil {
			m.log.WarnContext(ctx, "host group query failed", "group", rule.HostGroupName, "rule_id", rule.ID, "error", err)
			continue
		}
		for _, member := range members {
			if member.Matches(ip) {
				expanded := rule
				expanded.HostName = member.Name
				out = append(out, expanded)
			}
		}
	}
	return out, nil
}

// Apply evaluates every candidate rule of rec and runs its match or no-match
// action. A failing rule is reported in the summary, sets the status to
// error and forces the trap to be stored; the other rules still run.
// rec.Status, rec.Detail and rec.SourceName are updated.
func (m *Matcher) Apply(ctx context.Context, rec *TrapRecord) (Outcome, error) {
	rules, err := m.CandidateRules(ctx, rec.SourceIP, rec.TrapOID)
	if err != nil {
		return Outcome{}, err
	}
	if len(rules) == 0 {
		m.log.InfoContext(ctx, "no rules found for this trap", "trap_oid", rec.TrapOID, "source_ip", rec.SourceIP)
		rec.Status = store.StatusUnknown
		return Outcome{Status: store.StatusUnknown, Persist: true}, nil
	}

	bindings := rec.RuleBindings()
	out := Outcome{Status: store.StatusDone, Persist: true, Rules: len(rules)}
	var summary []string
	failed := false

	for _, rule := range rules {
		m.log.DebugContext(ctx, "evaluating rule", "rule_id", rule.ID, "rule", rule.Expression)
		matched, err := m.engine.Evaluate(rule.Expression, bindings)
		if err != nil {
			m.log.WarnContext(ctx, "error in rule evaluation", "rule_id", rule.ID, "error", err)
			summary = append(summary, "ERR : "+err.Error())
			failed = true
			continue
		}

		action := rule.ActionNoMatch
		if matched {
			action = rule.ActionMatch
		}
		m.log.DebugContext(ctx, "rule evaluated", "rule_id", rule.ID, "matched", matched, "action", action)

		if text := m.runAction(ctx, rule, action, ruler.Display(rule.Display, bindings)); text != "" {
			summary = append(summary, text)
		}
		out.Persist = action != ActionIgnore
		rec.addSourceName(rule.HostName)
	}

	if failed {
		out.Status = store.StatusError
		out.Persist = true
	}
	out.Summary = strings.Join(summary, ", ")
	rec.Status = out.Status
	rec.Detail = out.Summary
	return out, nil
}

// runAction sends the check of a non-negative action and counts the match.
// It returns the summary text of the action.
func (m *Matcher) runAction(ctx context.Context, rule store.Rule, action int, display string) string {
	if action < 0 {
		m.countMatch(ctx, rule.ID)
		return ""
	}

	check := dispatch.Check{Host: rule.HostName, Service: rule.ServiceName, State: action, Display: display}
	res, err := m.submitter.Submit(ctx, check)
	if err != nil || !res.OK {
		if err == nil {
			err = errors.New(res.Message)
		}
		m.log.WarnContext(ctx, "error sending status", "host", check.Host, "service", check.Service, "error", err)
		return "Error sending status : check cmd/API"
	}
	m.countMatch(ctx, rule.ID)
	return fmt.Sprintf("Status %d to %s/%s", action, rule.HostName, rule.ServiceName)
}

func (m *Matcher) countMatch(ctx context.Context, id int64) {
	if err := m.rules.IncrementRuleMatch(ctx, id); err != nil {
		m.log.WarnContext(ctx, "error updating rule match count", "rule_id", id, "error", err)
	}
}
