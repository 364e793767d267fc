package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kayteedberserker/oreblogda-sub000/internal/badge"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDailyNext(t *testing.T) {
	at := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	if got, want := Daily(0).Next(at), time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Daily(0).Next = %s, want %s", got, want)
	}
	if got, want := Daily(12).Next(at), time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Daily(12).Next = %s, want %s", got, want)
	}
	midnight := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	if got := Daily(0).Next(midnight); !got.Equal(midnight.AddDate(0, 0, 1)) {
		t.Fatalf("Next at the boundary = %s", got)
	}
}

func TestWeeklyNext(t *testing.T) {
	// 2026-09-01 is a Tuesday.
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	got := Weekly(time.Monday, 0).Next(at)
	want := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Weekly.Next = %s, want %s", got, want)
	}
	if again := Weekly(time.Monday, 0).Next(want); !again.Equal(want.AddDate(0, 0, 7)) {
		t.Fatalf("Weekly.Next from a run time = %s", again)
	}
}

func TestRunLoopsUntilCancelled(t *testing.T) {
	s := New(quietLogger())
	var runs atomic.Int64
	done := make(chan struct{})
	s.Add("tick", Every(5*time.Millisecond), func(ctx context.Context) error {
		if runs.Add(1) == 3 {
			close(done)
		}
		return errors.New("keeps going")
	})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run three times")
	}
	cancel()
	if err := <-result; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := New(quietLogger())
	s.Add("boom", Every(time.Hour), func(context.Context) error { panic("bad") })

	if err := s.RunNow(context.Background(), "boom"); err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown job error")
	}
}

type fakeWars struct{ swept, stale atomic.Int64 }

func (f *fakeWars) SweepExpired(context.Context) (int, error) {
	f.swept.Add(1)
	return 2, nil
}

func (f *fakeWars) ExpireStale(context.Context) (int, error) {
	f.stale.Add(1)
	return 0, nil
}

type fakePasses struct{ daily, weekly atomic.Int64 }

func (f *fakePasses) DailyPass(context.Context) (int, error) {
	f.daily.Add(1)
	return 1, nil
}

func (f *fakePasses) WeeklyPass(context.Context) ([]badge.WeeklyOutcome, error) {
	f.weekly.Add(1)
	return nil, nil
}

func TestRegisterWiresEveryJob(t *testing.T) {
	s := New(quietLogger())
	wars, passes := &fakeWars{}, &fakePasses{}
	Register(s, wars, passes, time.Minute)

	if got := len(s.Jobs()); got != 4 {
		t.Fatalf("jobs = %v", s.Jobs())
	}
	ctx := context.Background()
	for _, name := range []string{JobWars, JobStale, JobDaily, JobWeekly} {
		if err := s.RunNow(ctx, name); err != nil {
			t.Fatalf("RunNow(%s): %v", name, err)
		}
	}
	if wars.swept.Load() != 1 || wars.stale.Load() != 1 || passes.daily.Load() != 1 || passes.weekly.Load() != 1 {
		t.Fatal("a registered job did not reach its target")
	}
}
