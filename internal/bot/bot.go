// Package bot routes prefixed chat commands to the POTD engines and replies through the presenter.
package bot

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/config"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/irisfast"
	"github.com/park285/codeforces-potd-bot/internal/leaderboard"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/potd"
	"github.com/park285/codeforces-potd-bot/internal/presenter"
	"github.com/park285/codeforces-potd-bot/internal/registry"
	"github.com/park285/codeforces-potd-bot/internal/store"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

type Registrar interface {
	Begin(ctx context.Context, community, member, memberName, handle string) (*verify.Challenge, error)
	Confirm(ctx context.Context, community, member string) (*domain.Registration, error)
	AdminSet(ctx context.Context, community, member, handle string) (*registry.Profile, error)
	Get(ctx context.Context, community, member string) (*registry.Profile, error)
	Registration(ctx context.Context, community, member string) (*domain.Registration, error)
	Remove(ctx context.Context, community, member string) error
}

type POTDSource interface {
	Current(ctx context.Context, now time.Time) (*domain.POTD, error)
}

type Poller interface {
	Poll(ctx context.Context, now time.Time) ([]domain.Solve, error)
}

type Boards interface {
	Build(ctx context.Context, kind leaderboard.Kind, community string) ([]leaderboard.Entry, error)
}

type ContestNames interface {
	ContestName(ctx context.Context, contestID int) (string, error)
}

// Output is where replies go; presenter.RoomAnnouncer implements it.
type Output interface {
	Reply(ctx context.Context, room, text string) error
	Leaderboard(ctx context.Context, room string, kind leaderboard.Kind, entries []leaderboard.Entry) error
}

type Deps struct {
	Registry  Registrar
	POTD      POTDSource
	Tracker   Poller
	Boards    Boards
	Contests  ContestNames
	Out       Output
	Formatter *presenter.Formatter
}

type Bot struct {
	cfg *config.AppConfig
	Deps
	now func() time.Time
}

func New(cfg *config.AppConfig, deps Deps) *Bot {
	if deps.Formatter == nil {
		deps.Formatter = presenter.NewFormatter(nil, cfg.BotPrefix)
	}
	return &Bot{cfg: cfg, Deps: deps, now: time.Now}
}

// Accepts reports whether msg is a command for this bot from an allowed room.
func (b *Bot) Accepts(msg *irisfast.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return false
	}
	if !strings.HasPrefix(strings.TrimSpace(msg.Msg), b.cfg.BotPrefix) {
		return false
	}
	if !b.cfg.RoomAllowed(msg.Room) {
		obslog.L().Debug("command_room_ignored", zap.String("room", msg.Room))
		return false
	}
	return true
}

// Handle runs one command. Callers should check Accepts first.
func (b *Bot) Handle(ctx context.Context, msg *irisfast.Message) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), b.cfg.BotPrefix))
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		b.reply(ctx, msg.Room, b.text("help.text", nil))
		return
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	obslog.L().Info("command_received", zap.String("cmd", cmd), zap.String("room", msg.Room), zap.String("user", msg.UserID()))

	switch cmd {
	case "help", "도움말":
		b.reply(ctx, msg.Room, b.text("help.text", nil))
	case "register":
		b.register(ctx, msg, args)
	case "verify":
		b.verify(ctx, msg)
	case "handle":
		b.handle(ctx, msg, args)
	case "sethandle":
		b.setHandle(ctx, msg, args)
	case "removehandle":
		b.removeHandle(ctx, msg, args)
	case "potd":
		b.potd(ctx, msg)
	case "updatepotd":
		b.updatePOTD(ctx, msg)
	case "streak":
		b.leaderboard(ctx, msg, leaderboard.KindStreak)
	case "solves":
		b.leaderboard(ctx, msg, leaderboard.KindSolves)
	default:
		b.reply(ctx, msg.Room, b.text("common.unknown_command", nil))
	}
}

func (b *Bot) register(ctx context.Context, msg *irisfast.Message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, msg.Room, b.text("usage.register", nil))
		return
	}
	name := msg.SenderName()
	ch, err := b.Registry.Begin(ctx, msg.Room, msg.UserID(), name, args[0])
	if errors.Is(err, store.ErrAlreadyRegistered) {
		handle := args[0]
		if reg, lerr := b.Registry.Registration(ctx, msg.Room, msg.UserID()); lerr == nil && reg != nil {
			handle = reg.Handle
		}
		b.reply(ctx, msg.Room, b.text("register.already", map[string]any{"Handle": handle}))
		return
	}
	if err != nil {
		b.replyErr(ctx, msg, "register", err)
		return
	}
	secs := int(math.Ceil(ch.ExpiresAt.Sub(b.now()).Seconds()))
	if secs < 0 {
		secs = 0
	}
	b.reply(ctx, msg.Room, b.text("register.issued", map[string]any{"Name": name, "Seconds": secs, "Code": ch.Code}))
}

func (b *Bot) verify(ctx context.Context, msg *irisfast.Message) {
	reg, err := b.Registry.Confirm(ctx, msg.Room, msg.UserID())
	if err != nil {
		b.replyErr(ctx, msg, "verify", err)
		return
	}
	name := msg.SenderName()
	if p, perr := b.Registry.Get(ctx, msg.Room, msg.UserID()); perr == nil {
		b.reply(ctx, msg.Room, b.Formatter.Profile("register.success", name, p))
		return
	}
	b.reply(ctx, msg.Room, b.text("register.confirmed", map[string]any{"Name": name, "Handle": reg.Handle}))
}

func (b *Bot) handle(ctx context.Context, msg *irisfast.Message, args []string) {
	member, name := msg.UserID(), msg.SenderName()
	if len(args) > 0 {
		member, name = args[0], args[0]
	}
	p, err := b.Registry.Get(ctx, msg.Room, member)
	if err != nil {
		if errors.Is(err, registry.ErrNotRegistered) {
			b.reply(ctx, msg.Room, b.text("handle.not_set", map[string]any{"Name": name}))
			return
		}
		b.replyErr(ctx, msg, "handle", err)
		return
	}
	b.reply(ctx, msg.Room, b.Formatter.Profile("handle.current", name, p))
}

func (b *Bot) setHandle(ctx context.Context, msg *irisfast.Message, args []string) {
	if !b.cfg.IsAdmin(msg.UserID()) {
		b.reply(ctx, msg.Room, b.text("common.admin_only", nil))
		return
	}
	if len(args) != 2 {
		b.reply(ctx, msg.Room, b.text("usage.sethandle", nil))
		return
	}
	p, err := b.Registry.AdminSet(ctx, msg.Room, args[0], args[1])
	if err != nil {
		b.replyErr(ctx, msg, "sethandle", err)
		return
	}
	b.reply(ctx, msg.Room, b.Formatter.Profile("handle.set", args[0], p))
}

func (b *Bot) removeHandle(ctx context.Context, msg *irisfast.Message, args []string) {
	if !b.cfg.IsAdmin(msg.UserID()) {
		b.reply(ctx, msg.Room, b.text("common.admin_only", nil))
		return
	}
	if len(args) != 1 {
		b.reply(ctx, msg.Room, b.text("usage.removehandle", nil))
		return
	}
	if err := b.Registry.Remove(ctx, msg.Room, args[0]); err != nil {
		if errors.Is(err, registry.ErrNotRegistered) {
			b.reply(ctx, msg.Room, b.text("handle.not_set", map[string]any{"Name": args[0]}))
			return
		}
		b.replyErr(ctx, msg, "removehandle", err)
		return
	}
	b.reply(ctx, msg.Room, b.text("handle.removed", map[string]any{"Name": args[0]}))
}

func (b *Bot) potd(ctx context.Context, msg *irisfast.Message) {
	p, err := b.POTD.Current(ctx, b.now())
	if err != nil {
		b.replyErr(ctx, msg, "potd", err)
		return
	}
	if p == nil {
		b.reply(ctx, msg.Room, b.text("potd.none", nil))
		return
	}
	contest := ""
	if b.Contests != nil {
		contest, _ = b.Contests.ContestName(ctx, p.ContestID)
	}
	b.reply(ctx, msg.Room, b.Formatter.POTD(p, contest))
}

func (b *Bot) updatePOTD(ctx context.Context, msg *irisfast.Message) {
	solves, err := b.Tracker.Poll(ctx, b.now())
	if err != nil {
		b.replyErr(ctx, msg, "updatepotd", err)
		return
	}
	b.reply(ctx, msg.Room, b.text("potd.updated", map[string]any{"Count": len(solves)}))
}

func (b *Bot) leaderboard(ctx context.Context, msg *irisfast.Message, kind leaderboard.Kind) {
	entries, err := b.Boards.Build(ctx, kind, msg.Room)
	if err != nil {
		b.replyErr(ctx, msg, string(kind), err)
		return
	}
	if err := b.Out.Leaderboard(ctx, msg.Room, kind, entries); err != nil {
		obslog.L().Warn("reply_failed", zap.String("room", msg.Room), zap.String("cmd", string(kind)), zap.Error(err))
	}
}

func (b *Bot) text(key string, data map[string]any) string {
	return b.Formatter.Text(key, data)
}

func (b *Bot) reply(ctx context.Context, room, text string) {
	if err := b.Out.Reply(ctx, room, text); err != nil {
		obslog.L().Warn("reply_failed", zap.String("room", room), zap.Error(err))
	}
}

func (b *Bot) replyErr(ctx context.Context, msg *irisfast.Message, cmd string, err error) {
	b.reply(ctx, msg.Room, b.errorText(msg, cmd, err))
}

// errorText maps engine errors to catalog messages; anything unknown is logged as internal.
func (b *Bot) errorText(msg *irisfast.Message, cmd string, err error) string {
	var rejected *codeforces.RejectedError
	var exhausted *potd.ExhaustedPoolError
	switch {
	case errors.As(err, &rejected) && !rejected.RateLimited:
		return b.text("common.rejected", map[string]any{"Comment": rejected.Comment})
	case errors.Is(err, codeforces.ErrUnavailable):
		return b.text("common.api_error", nil)
	case errors.As(err, &exhausted):
		return b.text("potd.exhausted", map[string]any{"Rating": exhausted.Rating})
	case errors.Is(err, verify.ErrInvalidArgs):
		return b.text("usage."+cmd, nil)
	case errors.Is(err, store.ErrAlreadyRegistered):
		return b.text("register.already_other", nil)
	case errors.Is(err, store.ErrHandleInUse):
		return b.text("register.handle_in_use", nil)
	case errors.Is(err, verify.ErrHandleClaimed):
		return b.text("register.claimed", nil)
	case errors.Is(err, registry.ErrCodeMismatch):
		return b.text("register.mismatch", nil)
	case errors.Is(err, verify.ErrExpired):
		return b.text("register.expired", map[string]any{"Name": msg.SenderName()})
	case errors.Is(err, verify.ErrNoChallenge), errors.Is(err, verify.ErrNotPending):
		return b.text("register.no_challenge", nil)
	case errors.Is(err, registry.ErrNotRegistered):
		return b.text("handle.not_set", map[string]any{"Name": msg.SenderName()})
	}
	obslog.L().Error("command_failed", zap.String("cmd", cmd), zap.String("room", msg.Room), zap.Error(err))
	return b.text("common.internal_error", nil)
}
