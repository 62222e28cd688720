package consolidate

import (
	"testing"
	"time"
)

func TestScheduleRejectsInvalidExpression(t *testing.T) {
	c := New(Config{Store: newTestStore(t), ArchivePath: t.TempDir()})
	s := NewScheduler(c, nil)
	if err := s.Schedule(HorizonDaily, "not a cron expression"); err == nil {
		t.Error("expected an error for a malformed cron expression")
	}
}

func TestScheduleAcceptsDescriptorsAndStandardExpressions(t *testing.T) {
	c := New(Config{Store: newTestStore(t), ArchivePath: t.TempDir()})
	s := NewScheduler(c, nil)
	if err := s.Schedule(HorizonDaily, "@daily"); err != nil {
		t.Errorf("Schedule(@daily) error = %v", err)
	}
	if err := s.Schedule(HorizonWeekly, "0 3 * * 0"); err != nil {
		t.Errorf("Schedule(0 3 * * 0) error = %v", err)
	}
}

func TestSchedulerStartStopDoesNotBlock(t *testing.T) {
	c := New(Config{Store: newTestStore(t), ArchivePath: t.TempDir()})
	s := NewScheduler(c, nil)
	if err := s.Schedule(HorizonDaily, "@every 1h"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	s.Start()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return in time")
	}
}

func TestWithHorizonAgeHelperRestoresOriginal(t *testing.T) {
	original := horizonAge[HorizonDaily]
	withHorizonAge(t, HorizonDaily, 42*time.Hour)
	if horizonAge[HorizonDaily] != 42*time.Hour {
		t.Fatalf("horizonAge override did not take effect")
	}
	t.Cleanup(func() {
		if horizonAge[HorizonDaily] != original {
			t.Errorf("horizonAge[HorizonDaily] = %v after cleanup, want restored %v", horizonAge[HorizonDaily], original)
		}
	})
}
