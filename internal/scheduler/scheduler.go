// Package scheduler runs the periodic economy jobs: settling expired wars,
// expiring stale negotiations, and the daily and weekly clan passes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
)

const (
	JobWars   = "wars"
	JobStale  = "stale"
	JobDaily  = "daily"
	JobWeekly = "weekly"
)

// Schedule reports the next run time strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

type every time.Duration

// Every runs a job at a fixed interval from the previous run.
func Every(d time.Duration) Schedule { return every(d) }

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type daily struct{ hour int }

// Daily runs a job once a day at hour:00 UTC.
func Daily(hour int) Schedule { return daily{hour: hour} }

func (d daily) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), d.hour, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

type weekly struct {
	day  time.Weekday
	hour int
}

// Weekly runs a job once a week on day at hour:00 UTC.
func Weekly(day time.Weekday, hour int) Schedule { return weekly{day: day, hour: hour} }

func (w weekly) Next(t time.Time) time.Time {
	next := daily{hour: w.hour}.Next(t)
	for next.Weekday() != w.day {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs    []Job
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger, now: time.Now, timeout: 10 * time.Minute}
}

func (s *Scheduler) Add(name string, sched Schedule, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Schedule: sched, Run: run})
}

func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Run starts every job loop and blocks until ctx is cancelled. A job never
// overlaps with itself.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

// RunNow executes the named job once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			return s.runOnce(ctx, j)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	for {
		now := s.now()
		timer := time.NewTimer(j.Schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.runOnce(ctx, j); err != nil {
			s.logger.Error("job failed", "job", j.Name, "err", err)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
	}()
	start := time.Now()
	err = j.Run(ctx)
	s.logger.Debug("job finished", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
	return err
}

type WarSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
	ExpireStale(ctx context.Context) (int, error)
}

type ClanPasses interface {
	DailyPass(ctx context.Context) (int, error)
	WeeklyPass(ctx context.Context) ([]badge.WeeklyOutcome, error)
}

// Register adds the standard economy jobs. The weekly pass runs Monday 00:00
// UTC and the daily pass at midnight UTC.
func Register(s *Scheduler, wars WarSweeper, passes ClanPasses, sweepEvery time.Duration) {
	s.Add(JobWars, Every(sweepEvery), func(ctx context.Context) error {
		n, err := wars.SweepExpired(ctx)
		if n > 0 {
			s.logger.Info("expired wars settled", "count", n)
		}
		return err
	})
	s.Add(JobStale, Every(sweepEvery), func(ctx context.Context) error {
		n, err := wars.ExpireStale(ctx)
		if n > 0 {
			s.logger.Info("stale negotiations declined", "count", n)
		}
		return err
	})
	s.Add(JobDaily, Daily(0), func(ctx context.Context) error {
		n, err := passes.DailyPass(ctx)
		s.logger.Info("daily pass done", "penalized", n)
		return err
	})
	s.Add(JobWeekly, Weekly(time.Monday, 0), func(ctx context.Context) error {
		out, err := passes.WeeklyPass(ctx)
		s.logger.Info("weekly pass done", "clans", len(out))
		return err
	})
}
