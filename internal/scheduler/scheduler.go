// Package scheduler runs the bot's periodic jobs on a single gocron worker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/catalog"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/potd"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

const (
	JobSelectPOTD  = "potd-select"
	JobPollSolves  = "solve-poll"
	JobSyncCatalog = "catalog-sync"
	JobSweepVerify = "verify-sweep"

	selectCron = "0 0 * * *"
	syncCron   = "30 23 * * *"

	DefaultPollInterval  = time.Minute
	DefaultSweepInterval = 5 * time.Second
	defaultJobTimeout    = 2 * time.Minute
)

type Selector interface {
	Select(ctx context.Context, now time.Time) (*domain.POTD, error)
}

type Poller interface {
	Poll(ctx context.Context, now time.Time) ([]domain.Solve, error)
}

type Syncer interface {
	Sync(ctx context.Context) (catalog.Report, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) ([]verify.Outcome, error)
}

type Notifier interface {
	VerifyOutcome(ctx context.Context, o verify.Outcome) error
}

type Deps struct {
	Selector Selector
	Tracker  Poller
	Catalog  Syncer
	Registry Sweeper
	Notifier Notifier
}

type Config struct {
	Location      *time.Location
	PollInterval  time.Duration
	SweepInterval time.Duration
	JobTimeout    time.Duration
}

type Scheduler struct {
	s    gocron.Scheduler
	deps Deps
	cfg  Config
	now  func() time.Time
}

// New registers every job; nothing runs until Start.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Location),
		gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait),
	)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	sc := &Scheduler{s: s, deps: deps, cfg: cfg, now: time.Now}

	jobs := []struct {
		name string
		def  gocron.JobDefinition
		fn   func(context.Context) error
	}{
		{JobSelectPOTD, gocron.CronJob(selectCron, false), sc.selectPOTD},
		{JobPollSolves, gocron.DurationJob(cfg.PollInterval), sc.pollSolves},
		{JobSyncCatalog, gocron.CronJob(syncCron, false), sc.syncCatalog},
		{JobSweepVerify, gocron.DurationJob(cfg.SweepInterval), sc.sweepVerify},
	}
	for _, j := range jobs {
		name, fn := j.name, j.fn
		if _, err := s.NewJob(j.def,
			gocron.NewTask(func() { sc.run(name, fn) }),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return sc, nil
}

func (sc *Scheduler) Start() {
	sc.s.Start()
	obslog.L().Info("scheduler_started", zap.Int("jobs", len(sc.s.Jobs())), zap.String("tz", sc.cfg.Location.String()))
}

// Shutdown waits for a running job to finish.
func (sc *Scheduler) Shutdown() error { return sc.s.Shutdown() }

// JobNames lists the registered jobs.
func (sc *Scheduler) JobNames() []string {
	jobs := sc.s.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// run executes one job invocation with its own timeout; failures are logged and
// the next trigger acts as the retry.
func (sc *Scheduler) run(name string, fn func(context.Context) error) {
	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), sc.cfg.JobTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	took := time.Since(start)
	if err != nil {
		obslog.L().Error("job_failed", zap.String("job", name), zap.String("run", runID), zap.Duration("took", took), zap.Error(err))
		return
	}
	obslog.L().Debug("job_done", zap.String("job", name), zap.String("run", runID), zap.Duration("took", took))
}

func (sc *Scheduler) selectPOTD(ctx context.Context) error {
	_, err := sc.deps.Selector.Select(ctx, sc.now())
	if errors.Is(err, potd.ErrAlreadySelected) {
		obslog.L().Info("potd_already_selected")
		return nil
	}
	return err
}

func (sc *Scheduler) pollSolves(ctx context.Context) error {
	solves, err := sc.deps.Tracker.Poll(ctx, sc.now())
	if err != nil {
		return err
	}
	if len(solves) > 0 {
		obslog.L().Info("solves_recorded", zap.Int("count", len(solves)))
	}
	return nil
}

func (sc *Scheduler) syncCatalog(ctx context.Context) error {
	_, err := sc.deps.Catalog.Sync(ctx)
	return err
}

func (sc *Scheduler) sweepVerify(ctx context.Context) error {
	outcomes, err := sc.deps.Registry.Sweep(ctx)
	for _, o := range outcomes {
		if sc.deps.Notifier == nil {
			break
		}
		if nerr := sc.deps.Notifier.VerifyOutcome(ctx, o); nerr != nil {
			obslog.L().Warn("verify_notify_failed", zap.String("member", o.Challenge.MemberID), zap.Error(nerr))
		}
	}
	return err
}
