package consistency

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the consistency check on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	checker *Checker
	logger  *logrus.Logger
}

// NewScheduler parses schedule (standard five-field cron syntax or descriptors such as
// "@hourly") and registers the check.
func NewScheduler(schedule string, checker *Checker, logger *logrus.Logger) (*Scheduler, error) {
	if checker == nil {
		return nil, eris.New("checker is required")
	}

	s := &Scheduler{
		cron:    cron.New(),
		checker: checker,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, eris.Wrapf(err, "invalid check schedule %q", schedule)
	}
	return s, nil
}

// Start begins running scheduled checks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	if s.logger != nil {
		s.logger.WithField("component", "consistency").Info("scheduled consistency check started")
	}
}

// Stop prevents new runs and waits for a running check to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	report, err := s.checker.Check(context.Background())
	if err != nil {
		return
	}
	if !report.Consistent && s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"component": "consistency",
			"issues":    len(report.Issues),
		}).Warn("registry and article files are out of sync")
	}
}
