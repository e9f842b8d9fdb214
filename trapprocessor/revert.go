package trapprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/geekxflood/trapdirector/dispatch"
	"github.com/geekxflood/trapdirector/inventory"
	"github.com/geekxflood/trapdirector/logging"
	"github.com/geekxflood/trapdirector/store"
)

// RevertSource lists the rules having an auto-revert delay.
type RevertSource interface {
	RulesWithRevert(ctx context.Context) ([]store.Rule, error)
}

// Reverter sets back to OK the services a rule put in a non-OK state once
// the rule's revert delay has passed since their last check.
type Reverter struct {
	rules     RevertSource
	services  inventory.Services
	submitter dispatch.Submitter
	log       logging.Logger
	now       func() time.Time
}

// NewReverter creates a Reverter.
func NewReverter(rules RevertSource, services inventory.Services, submitter dispatch.Submitter, log logging.Logger) *Reverter {
	if log == nil {
		log = logging.NewComponentLogger("trapprocessor", "reverter")
	}
	return &Reverter{rules: rules, services: services, submitter: submitter, log: log, now: time.Now}
}

// Run sends an OK result to every expired service and returns how many were
// sent. A failed submission is logged and still counted.
func (r *Reverter) Run(ctx context.Context) (int, error) {
	services, err := r.services.NonOKServices(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading service states: %w", err)
	}
	rules, err := r.rules.RulesWithRevert(ctx)
	if err != nil {
		return 0, err
	}

	now := r.now()
	reset := 0
	for _, rule := range rules {
		delay := time.Duration(rule.RevertOK) * time.Second
		for _, svc := range services {
			if svc.Host != rule.HostName || svc.Service != rule.ServiceName {
				continue
			}
			if !svc.LastCheck.Add(delay).Before(now) {
				continue
			}
			check := dispatch.Check{
				Host:    svc.Host,
				Service: svc.Service,
				State:   dispatch.StateOK,
				Display: fmt.Sprintf("Reset service to OK after %d seconds", rule.RevertOK),
			}
			if res, err := r.submitter.Submit(ctx, check); err != nil || !res.OK {
				r.log.WarnContext(ctx, "error resetting service", "host", svc.Host, "service", svc.Service, "error", err, "message", res.Message)
			}
			reset++
		}
	}
	r.log.InfoContext(ctx, "services reset to OK", "count", reset)
	return reset, nil
}
