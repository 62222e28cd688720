package consolidate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field cron expressions plus
// descriptors like "@daily", matching the corpus's usual parser setup.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs a Consolidator's Run method on a per-horizon cron
// schedule. Horizons with no configured expression are never
// scheduled; callers can still invoke Consolidator.Run directly for a
// one-off or manually triggered run.
type Scheduler struct {
	consolidator *Consolidator
	log          *slog.Logger
	cron         *cron.Cron
}

// NewScheduler builds a Scheduler bound to consolidator.
func NewScheduler(consolidator *Consolidator, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		consolidator: consolidator,
		log:          log,
		cron:         cron.New(cron.WithParser(cronParser)),
	}
}

// Schedule registers horizon to run whenever expr fires, e.g. "@daily"
// for HorizonDaily or "0 3 * * 0" for a weekly Sunday 03:00 run.
func (s *Scheduler) Schedule(horizon Horizon, expr string) error {
	_, err := s.cron.AddFunc(expr, func() {
		ctx := context.Background()
		stats, err := s.consolidator.Run(ctx, horizon)
		if err != nil {
			s.log.Error("consolidate: scheduled run failed", "horizon", horizon, "error", err)
			return
		}
		s.log.Info("consolidate: scheduled run complete",
			"horizon", horizon,
			"processed", stats.Processed,
			"associations", stats.Associations,
			"clusters", stats.Clusters,
			"summaries", stats.Summaries,
			"archived", stats.Archived,
		)
	})
	if err != nil {
		return fmt.Errorf("consolidate: schedule %s: %w", horizon, err)
	}
	return nil
}

// Start begins the cron scheduler loop in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
