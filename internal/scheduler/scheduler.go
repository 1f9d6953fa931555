// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/haven/internal/types"
)

// Reminder receives a due follow-up for outreach.
type Reminder interface {
	Remind(event *types.CrisisEvent, fu types.FollowUp)
}

// Scheduler periodically sweeps the crisis log for due follow-ups and
// hands them to the reminder. The schedule on a CrisisEvent is advisory
// metadata; the sweep is the only place it is acted on, and only by
// delegating to the notifier.
type Scheduler struct {
	crises   types.CrisisStore
	reminder Reminder
	spec     string
	cron     *cron.Cron
	now      func() time.Time
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler sweeping on the given cron spec (e.g.
// "@every 5m").
func New(crises types.CrisisStore, reminder Reminder, spec string) *Scheduler {
	return &Scheduler{
		crises:   crises,
		reminder: reminder,
		spec:     spec,
		cron:     cron.New(cron.WithParser(cronParser)),
		now:      time.Now,
	}
}

// Start registers the sweep and starts the cron ticker.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("follow-up scheduler started", "spec", s.spec)
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Sweep dispatches every due, undispatched follow-up once. Exported so
// the serve loop and tests can trigger it directly.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.SweepAt(ctx, s.now())
}

// SweepAt runs one sweep against the given reference time.
func (s *Scheduler) SweepAt(ctx context.Context, now time.Time) {
	due, err := s.crises.ListDue(ctx, now)
	if err != nil {
		slog.Error("follow-up sweep failed", "error", err)
		return
	}

	for _, d := range due {
		if err := s.crises.MarkDispatched(ctx, d.Event.ID, d.FollowUp.Label); err != nil {
			slog.Error("mark follow-up dispatched failed",
				"event_id", string(d.Event.ID), "label", d.FollowUp.Label, "error", err)
			continue
		}
		s.reminder.Remind(d.Event, d.FollowUp)
		slog.Info("follow-up dispatched",
			"event_id", string(d.Event.ID), "label", d.FollowUp.Label, "level", string(d.Event.Level))
	}
}
