// Package app builds the bot's dependency graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/bot"
	"github.com/park285/codeforces-potd-bot/internal/catalog"
	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/config"
	"github.com/park285/codeforces-potd-bot/internal/irisfast"
	"github.com/park285/codeforces-potd-bot/internal/leaderboard"
	"github.com/park285/codeforces-potd-bot/internal/msgcat"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/potd"
	"github.com/park285/codeforces-potd-bot/internal/presenter"
	"github.com/park285/codeforces-potd-bot/internal/registry"
	"github.com/park285/codeforces-potd-bot/internal/scheduler"
	"github.com/park285/codeforces-potd-bot/internal/store"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

type App struct {
	Config *config.AppConfig

	Store store.Store
	Redis *redis.Client
	local *miniredis.Miniredis

	Judge  *codeforces.Client
	Iris   *irisfast.Client
	WS     *irisfast.WebSocket
	Egress irisfast.Egress

	Formatter *presenter.Formatter
	Announcer *presenter.RoomAnnouncer

	Catalog  *catalog.Syncer
	Selector *potd.Selector
	Tracker  *potd.Tracker
	Verify   *verify.Manager
	Registry *registry.Registry
	Boards   *leaderboard.Builder
}

// Build opens storage and wires every engine. An empty DATABASE_URL selects the in-memory
// store and an empty REDIS_URL an in-process Redis; neither survives a restart.
func Build(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{Config: cfg}

	if cfg.DatabaseURL == "" {
		obslog.L().Warn("store_in_memory", zap.String("reason", "DATABASE_URL not set"))
		a.Store = store.NewMemory()
	} else {
		st, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.Store = st
	}

	if err := a.openRedis(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	headers := irisfast.StaticHeaders(cfg.XUserID, cfg.XUserEmail, cfg.XSessionID)
	a.Judge = codeforces.NewClient(cfg.CodeforcesBaseURL)
	a.Iris = irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
		irisfast.WithReadAttempts(cfg.IrisReadAttempts),
	)
	a.WS = irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	a.WS.SetHeaderProvider(headers)
	a.Egress = irisfast.NewEgress(cfg.EgressMode, cfg.EgressDryRun, a.Iris, a.WS, obslog.Named("egress"))

	a.Formatter = presenter.NewFormatter(cat, cfg.BotPrefix)
	a.Announcer = presenter.NewRoomAnnouncer(a.Egress, a.Formatter, cfg.AnnounceRoom, cfg.LeaderboardImage)

	a.Catalog = catalog.NewSyncer(a.Judge, a.Store)
	a.Selector = potd.NewSelector(a.Store, a.Announcer, cfg.POTDRoom, potd.WithLocation(cfg.Timezone))
	a.Tracker = potd.NewTracker(a.Store, a.Judge, a.Announcer, cfg.Timezone, cfg.SubmissionLimit)
	a.Verify = verify.NewManager(a.Redis, cfg.VerifyWindow)
	a.Registry = registry.New(a.Store, a.Judge, a.Verify)
	a.Boards = leaderboard.NewBuilder(a.Store)
	return a, nil
}

func (a *App) openRedis(ctx context.Context) error {
	url := a.Config.RedisURL
	if url == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start in-process redis: %w", err)
		}
		obslog.L().Warn("redis_in_process", zap.String("addr", mr.Addr()))
		a.local = mr
		url = "redis://" + mr.Addr()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	a.Redis = redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Redis.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Bot returns the chat command router.
func (a *App) Bot() *bot.Bot {
	return bot.New(a.Config, bot.Deps{
		Registry:  a.Registry,
		POTD:      a.Selector,
		Tracker:   a.Tracker,
		Boards:    a.Boards,
		Contests:  a.Store,
		Out:       a.Announcer,
		Formatter: a.Formatter,
	})
}

// Scheduler registers the periodic jobs without starting them.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		Location:     a.Config.Timezone,
		PollInterval: a.Config.SolvePollInterval,
	}, scheduler.Deps{
		Selector: a.Selector,
		Tracker:  a.Tracker,
		Catalog:  a.Catalog,
		Registry: a.Registry,
		Notifier: a.Announcer,
	})
}

// Warmup imports the catalog and makes sure today has a problem.
func (a *App) Warmup(ctx context.Context) error {
	var errs []error
	if _, err := a.Catalog.Sync(ctx); err != nil {
		errs = append(errs, fmt.Errorf("catalog sync: %w", err))
	}
	if _, err := a.Selector.EnsureToday(ctx, time.Now()); err != nil {
		errs = append(errs, fmt.Errorf("ensure today: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.local != nil {
		a.local.Close()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
