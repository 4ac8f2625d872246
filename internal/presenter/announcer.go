package presenter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/irisfast"
	"github.com/park285/codeforces-potd-bot/internal/leaderboard"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/potd"
	"github.com/park285/codeforces-potd-bot/internal/store"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

// RoomAnnouncer sends POTD and solve announcements to a fixed room and replies to others.
type RoomAnnouncer struct {
	egress irisfast.Egress
	f      *Formatter
	room   string
	images bool
}

var _ potd.Announcer = (*RoomAnnouncer)(nil)

func NewRoomAnnouncer(egress irisfast.Egress, f *Formatter, room string, images bool) *RoomAnnouncer {
	return &RoomAnnouncer{egress: egress, f: f, room: room, images: images}
}

func (a *RoomAnnouncer) AnnouncePOTD(ctx context.Context, p domain.POTD, contestName string) error {
	return a.egress.SendText(ctx, a.room, a.f.POTD(&p, contestName))
}

func (a *RoomAnnouncer) AnnounceSolve(ctx context.Context, p domain.POTD, reg domain.Registration) error {
	return a.egress.SendText(ctx, a.room, a.f.Solved(&p, reg))
}

// Reply sends text to room.
func (a *RoomAnnouncer) Reply(ctx context.Context, room, text string) error {
	return a.egress.SendText(ctx, room, text)
}

// Leaderboard sends the text ranking to room, followed by the PNG card when images are on.
// A failed card is logged; the text has already gone out.
func (a *RoomAnnouncer) Leaderboard(ctx context.Context, room string, kind leaderboard.Kind, entries []leaderboard.Entry) error {
	if err := a.egress.SendText(ctx, room, a.f.Leaderboard(kind, entries)); err != nil {
		return err
	}
	if !a.images || len(entries) == 0 {
		return nil
	}
	png, err := a.f.LeaderboardCard(kind, entries)
	if err != nil {
		obslog.L().Warn("leaderboard_card_failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	if err := a.egress.SendImage(ctx, room, base64.StdEncoding.EncodeToString(png)); err != nil {
		return fmt.Errorf("send leaderboard card: %w", err)
	}
	return nil
}

// VerifyOutcome tells the member's room how a swept challenge ended.
func (a *RoomAnnouncer) VerifyOutcome(ctx context.Context, o verify.Outcome) error {
	c := o.Challenge
	if c == nil {
		return nil
	}
	var text string
	switch {
	case o.Err == nil:
		text = a.f.Text("register.confirmed", map[string]any{"Name": c.MemberName, "Handle": c.Handle})
	case errors.Is(o.Err, store.ErrAlreadyRegistered):
		text = a.f.Text("register.already_other", nil)
	case errors.Is(o.Err, store.ErrHandleInUse):
		text = a.f.Text("register.handle_in_use", nil)
	default:
		text = a.f.Text("register.expired", map[string]any{"Name": c.MemberName})
	}
	return a.egress.SendText(ctx, c.CommunityID, text)
}
