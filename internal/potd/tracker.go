package potd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/store"
)

const DefaultSubmissionLimit = 50

type SubmissionSource interface {
	ListUserSubmissions(ctx context.Context, handle string, limit int) ([]codeforces.Submission, error)
}

type trackerStore interface {
	store.RegistrationStore
	store.POTDStore
}

type Tracker struct {
	store     trackerStore
	judge     SubmissionSource
	announcer Announcer
	loc       *time.Location
	limit     int
}

func NewTracker(st trackerStore, judge SubmissionSource, announcer Announcer, loc *time.Location, limit int) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	if limit <= 0 {
		limit = DefaultSubmissionLimit
	}
	return &Tracker{store: st, judge: judge, announcer: announcer, loc: loc, limit: limit}
}

// Poll checks every registered member of the POTD's community for an accepted submission.
// Only members whose solve flag is newly created are returned and announced.
func (t *Tracker) Poll(ctx context.Context, now time.Time) ([]domain.Solve, error) {
	now = now.In(t.loc)
	p, err := t.store.GetPOTD(ctx, domain.DayKey(now))
	if err != nil {
		return nil, fmt.Errorf("load potd: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	regs, err := t.store.ListRegistrations(ctx, p.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	var solved []domain.Solve
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return solved, err
		}
		ok, err := t.hasAccepted(ctx, reg.Handle, p)
		if err != nil {
			obslog.L().Warn("solve_poll_member_failed", zap.String("handle", reg.Handle), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		created, err := t.store.MarkSolved(ctx, reg.CommunityID, reg.MemberID, p.Date, now)
		if err != nil {
			return solved, fmt.Errorf("mark solved: %w", err)
		}
		if !created {
			continue
		}
		solved = append(solved, domain.Solve{CommunityID: reg.CommunityID, MemberID: reg.MemberID, Date: p.Date, SolvedAt: now})
		obslog.L().Info("potd_solved", zap.String("handle", reg.Handle), zap.String("date", p.Date))
		if t.announcer != nil {
			if err := t.announcer.AnnounceSolve(ctx, *p, reg); err != nil {
				obslog.L().Warn("solve_announce_failed", zap.String("handle", reg.Handle), zap.Error(err))
			}
		}
	}
	return solved, nil
}

func (t *Tracker) hasAccepted(ctx context.Context, handle string, p *domain.POTD) (bool, error) {
	subs, err := t.judge.ListUserSubmissions(ctx, handle, t.limit)
	if err != nil {
		return false, err
	}
	for _, s := range subs {
		if s.Accepted(p.ContestID, p.Index) {
			return true, nil
		}
	}
	return false, nil
}
