package mibcache

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Timer accumulates the occurrences and time spent in one phase.
type Timer struct {
	Count   int           `yaml:"count"`
	Elapsed time.Duration `yaml:"elapsed"`
}

func (t *Timer) add(since time.Time) {
	t.Count++
	t.Elapsed += time.Since(since)
}

// Timers are the per-phase diagnostics of a pass.
type Timers struct {
	// Parse counts lines that are not OIDs.
	Parse Timer `yaml:"parse"`
	// Check counts OIDs without a valid summary line.
	Check Timer `yaml:"check"`
	// Type0 counts type 0 entries found not to be traps.
	Type0 Timer `yaml:"type0"`
	// NotTrap counts non traps skipped in traps only mode.
	NotTrap  Timer `yaml:"not_trap"`
	Update   Timer `yaml:"update"`
	Objects  Timer `yaml:"objects"`
	NumTraps int   `yaml:"traps"`
}

// Report summarizes a pass.
type Report struct {
	Elements int           `yaml:"elements"`
	Traps    int           `yaml:"traps"`
	Timers   Timers        `yaml:"timers"`
	Changes  Counts        `yaml:"changes"`
	Duration time.Duration `yaml:"duration"`
}

// WriteText writes a human readable summary.
func (r *Report) WriteText(w io.Writer) error {
	t := r.Timers
	_, err := fmt.Fprintf(w,
		"Number of processed traps : %d\n"+
			"Parsing : %.1f sec / %d occurrences\n"+
			"Detecting traps : %.1f sec / %d occurrences\n"+
			"Trap processing (%d) : %.1f sec , Objects processing (%d) : %.1f sec\n"+
			"Created : %d , Updated : %d , Unchanged : %d , Linked : %d , Unlinked : %d\n"+
			"Global time : %d seconds\n",
		r.Traps,
		(t.Parse.Elapsed + t.Check.Elapsed).Seconds(), t.Parse.Count+t.Check.Count,
		(t.Type0.Elapsed + t.NotTrap.Elapsed).Seconds(), t.Type0.Count+t.NotTrap.Count,
		t.Update.Count, t.Update.Elapsed.Seconds(), t.Objects.Count, t.Objects.Elapsed.Seconds(),
		r.Changes.Created, r.Changes.Updated, r.Changes.Unchanged, r.Changes.Linked, r.Changes.Unlinked,
		int(r.Duration.Round(time.Second).Seconds()),
	)
	return err
}

// WriteYAML writes the report as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
