// Package cron runs the worker's periodic maintenance tasks under a
// cluster-wide Redis lock.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Job is one maintenance task. Run reports how many records it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

type scheduled struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Schedule keeps each job's cadence. A job added to a schedule is due on the
// first tick and then every `every` after the tick that ran it.
type Schedule struct {
	entries []*scheduled
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Add registers job to run every interval. Names must be unique.
func (s *Schedule) Add(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("job required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("job name required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	for _, e := range s.entries {
		if e.job.Name() == name {
			return fmt.Errorf("job %s already scheduled", name)
		}
	}
	s.entries = append(s.entries, &scheduled{job: job, every: every})
	return nil
}

// Due returns the jobs whose next run is at or before now, in registration
// order, and pushes each one's next run a full interval past now.
func (s *Schedule) Due(now time.Time) []Job {
	var due []Job
	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		due = append(due, e.job)
		e.next = now.Add(e.every)
	}
	return due
}

// Names lists scheduled job names sorted for logging.
func (s *Schedule) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	sort.Strings(names)
	return names
}
