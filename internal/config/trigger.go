package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger decides when the next cycle fires: either a fixed interval in
// seconds or a 6-field cron expression with required seconds. Exactly one
// must be set.
type Trigger struct {
	IntervalSec int64  `json:"interval,omitempty"`
	Cron        string `json:"cron,omitempty"`
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate rejects ambiguous or unparsable triggers.
func (t Trigger) Validate() error {
	switch {
	case t.IntervalSec > 0 && t.Cron != "":
		return errors.New("trigger: interval and cron are mutually exclusive")
	case t.IntervalSec <= 0 && t.Cron == "":
		return errors.New("trigger: one of interval or cron is required")
	case t.Cron != "":
		if _, err := cronParser.Parse(t.Cron); err != nil {
			return fmt.Errorf("trigger: cron %q: %w", t.Cron, err)
		}
	}
	return nil
}

// Next returns when the cycle after `from` should start.
func (t Trigger) Next(from time.Time) (time.Time, error) {
	if t.Cron != "" {
		sched, err := cronParser.Parse(t.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("trigger: cron %q: %w", t.Cron, err)
		}
		return sched.Next(from), nil
	}
	if t.IntervalSec <= 0 {
		return time.Time{}, errors.New("trigger: no interval configured")
	}
	return from.Add(time.Duration(t.IntervalSec) * time.Second), nil
}
