// Package report renders cache and delivery stats and sends them on a cron
// schedule.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"msgwatch/pkg/logx"
)

type Config struct {
	Enabled  bool
	Cron     string
	Timezone string
}

// Job produces and delivers one report.
type Job func(ctx context.Context) error

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts 5-field specs, 6-field specs with seconds and
// descriptors such as "@daily" or "@every 6h".
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	return parser.Parse(spec)
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Validate checks the schedule and the timezone of an enabled config.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := ParseSchedule(c.Cron); err != nil {
		return fmt.Errorf("report.cron: %w", err)
	}
	if _, err := loadLocation(c.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	return nil
}

type Service struct {
	log logx.Logger
	job Job

	mu  sync.Mutex
	cfg Config
	ctx context.Context
	c   *cron.Cron
	loc *time.Location
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, job: job, log: log, loc: time.Local}
}

// Start schedules the job. Jobs run with ctx and stop being scheduled once it
// is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}
	s.ctx = ctx
	return s.scheduleLocked()
}

// Apply swaps the config and reschedules. An invalid config leaves the
// current schedule running.
func (s *Service) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg && (s.c != nil) == cfg.Enabled {
		return nil
	}
	s.cfg = cfg
	if s.ctx == nil {
		return nil
	}
	old := s.c
	s.c = nil
	err := s.scheduleLocked()
	if old != nil {
		// A job still running on the old schedule finishes in the background.
		old.Stop()
	}
	return err
}

func (s *Service) scheduleLocked() error {
	cfg := s.cfg
	if !cfg.Enabled {
		s.log.Debug("report disabled")
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, _ := loadLocation(cfg.Timezone)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	ctx := s.ctx
	if _, err := c.AddFunc(cfg.Cron, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("report.cron: %w", err)
	}
	c.Start()
	s.c, s.loc = c, loc
	s.log.Info("report scheduled", logx.String("cron", cfg.Cron), logx.String("tz", loc.String()), logx.Time("next", s.nextLocked()))
	return nil
}

func (s *Service) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.RunNow(ctx); err != nil {
		s.log.Warn("report failed", logx.Err(err))
	}
}

// RunNow runs the job once outside the schedule.
func (s *Service) RunNow(ctx context.Context) error {
	if s.job == nil {
		return nil
	}
	jctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return s.job(jctx)
}

// Next is the next scheduled run, zero when nothing is scheduled.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Service) nextLocked() time.Time {
	if s.c == nil {
		return time.Time{}
	}
	for _, e := range s.c.Entries() {
		if !e.Next.IsZero() {
			return e.Next
		}
	}
	// Entries are only planned once the cron goroutine has run.
	if sched, err := ParseSchedule(s.cfg.Cron); err == nil {
		return sched.Next(time.Now().In(s.loc))
	}
	return time.Time{}
}

// Location is the timezone reports are scheduled and rendered in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Stop unschedules the job and waits for a running one.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c, s.ctx = nil, nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
