package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/app"
	"github.com/park285/codeforces-potd-bot/internal/config"
	"github.com/park285/codeforces-potd-bot/internal/irisfast"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
)

const commandTimeout = 45 * time.Second

func main() {
	dotenvErr := godotenv.Load()
	if err := obslog.InitFromEnv(); err != nil {
		obslog.L().Warn("log_init_failed", zap.Error(err))
	}
	defer obslog.Sync()
	if dotenvErr != nil && !os.IsNotExist(dotenvErr) {
		obslog.L().Warn("dotenv_load_failed", zap.Error(dotenvErr))
	}

	cfg, err := config.Load()
	if err != nil {
		obslog.L().Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		obslog.L().Fatal("app_init_failed", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			obslog.L().Warn("app_close_failed", zap.Error(err))
		}
	}()

	if err := a.Warmup(ctx); err != nil {
		// the scheduler retries both on its next trigger
		obslog.L().Error("warmup_failed", zap.Error(err))
	}

	b := a.Bot()
	a.WS.OnStateChange(func(state irisfast.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", state.String()))
	})
	a.WS.OnMessage(func(msg *irisfast.Message) {
		if !b.Accepts(msg) {
			return
		}
		// keep the read loop free
		go func() {
			cctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()
			b.Handle(cctx, msg)
		}()
	})
	if err := a.WS.Connect(ctx); err != nil {
		obslog.L().Warn("ws_initial_connect_failed", zap.Error(err))
	}

	sched, err := a.Scheduler()
	if err != nil {
		obslog.L().Fatal("scheduler_init_failed", zap.Error(err))
	}
	sched.Start()
	obslog.L().Info("potd_bot_started",
		zap.String("potd_room", cfg.POTDRoom),
		zap.String("egress", cfg.EgressMode),
		zap.String("tz", cfg.Timezone.String()),
	)

	<-ctx.Done()
	obslog.L().Info("potd_bot_stopping")

	if err := sched.Shutdown(); err != nil {
		obslog.L().Warn("scheduler_shutdown_failed", zap.Error(err))
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.WS.Close(sctx); err != nil {
		obslog.L().Warn("ws_close_failed", zap.Error(err))
	}
}
