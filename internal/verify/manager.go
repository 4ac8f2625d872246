package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/obslog"
)

const DefaultWindow = 30 * time.Second

type Manager struct {
	store  *Store
	window time.Duration
	now    func() time.Time
}

type Option func(*Manager)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(rdb *redis.Client, window time.Duration, opts ...Option) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Manager{store: NewStore(rdb), window: window, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Window() time.Duration { return m.window }

func (m *Manager) ttl() time.Duration { return m.window + settledGrace }

// Issue starts (or restarts) a challenge for member on handle. It fails with ErrHandleClaimed
// while another member of the community holds an unexpired challenge on the same handle.
func (m *Manager) Issue(ctx context.Context, community, member, memberName, handle string) (*Challenge, error) {
	community, member, handle = strings.TrimSpace(community), strings.TrimSpace(member), strings.TrimSpace(handle)
	if community == "" || member == "" || handle == "" {
		return nil, ErrInvalidArgs
	}

	prev, err := m.store.Load(ctx, community, member)
	if err != nil {
		return nil, err
	}

	ok, err := m.store.Claim(ctx, community, handle, member, m.ttl())
	if err != nil {
		return nil, err
	}
	if !ok {
		obslog.L().Info("verify_claim_rejected", zap.String("community", community), zap.String("member", member), zap.String("handle", handle))
		return nil, ErrHandleClaimed
	}
	if prev != nil && prev.State == StateIssued && !strings.EqualFold(prev.Handle, handle) {
		_ = m.store.Release(ctx, community, prev.Handle, member)
	}

	code, err := codeGen()
	if err != nil {
		_ = m.store.Release(ctx, community, handle, member)
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := m.now()
	c := &Challenge{
		ID:          uuid.NewString(),
		CommunityID: community,
		MemberID:    member,
		MemberName:  memberName,
		Handle:      handle,
		Code:        code,
		State:       StateIssued,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.window),
	}
	if err := m.store.Save(ctx, c, m.ttl()); err != nil {
		_ = m.store.Release(ctx, community, handle, member)
		return nil, err
	}
	if err := m.store.AddPending(ctx, community, member); err != nil {
		// unindexed challenges are never swept, so close this one now
		c.State = StateExpired
		_ = m.store.Save(ctx, c, settledGrace)
		_ = m.store.Release(ctx, community, handle, member)
		return nil, fmt.Errorf("index pending challenge: %w", err)
	}
	obslog.L().Info("verify_issued", zap.String("id", c.ID), zap.String("community", community), zap.String("member", member), zap.String("handle", handle))
	return c, nil
}

// Current returns the member's challenge, settling it as expired when its window has passed.
func (m *Manager) Current(ctx context.Context, community, member string) (*Challenge, error) {
	c, err := m.store.Load(ctx, community, member)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNoChallenge
	}
	if c.expiredAt(m.now()) {
		if err := m.settle(ctx, c, StateExpired); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Confirm moves an issued challenge to Confirmed.
func (m *Manager) Confirm(ctx context.Context, community, member string) (*Challenge, error) {
	c, err := m.Current(ctx, community, member)
	if err != nil {
		return nil, err
	}
	switch c.State {
	case StateExpired:
		return c, ErrExpired
	case StateConfirmed:
		return c, ErrNotPending
	}
	if err := m.settle(ctx, c, StateConfirmed); err != nil {
		return nil, err
	}
	obslog.L().Info("verify_confirmed", zap.String("id", c.ID), zap.String("handle", c.Handle))
	return c, nil
}

// Cancel drops any challenge of member.
func (m *Manager) Cancel(ctx context.Context, community, member string) error {
	c, err := m.store.Load(ctx, community, member)
	if err != nil || c == nil {
		return err
	}
	if c.State == StateIssued {
		return m.settle(ctx, c, StateExpired)
	}
	return nil
}

func (m *Manager) settle(ctx context.Context, c *Challenge, state State) error {
	c.State = state
	if err := m.store.Save(ctx, c, settledGrace); err != nil {
		return err
	}
	if err := m.store.Release(ctx, c.CommunityID, c.Handle, c.MemberID); err != nil {
		return err
	}
	return m.store.RemovePending(ctx, c.CommunityID, c.MemberID)
}

// CheckFunc reports whether the judge shows the challenge code for c.
type CheckFunc func(ctx context.Context, c *Challenge) (bool, error)

// Sweep settles every pending challenge: expired ones become Expired, ones whose check
// passes become Confirmed. A check error wrapping ErrRejected ends the challenge;
// any other check error leaves it pending for the next sweep.
func (m *Manager) Sweep(ctx context.Context, check CheckFunc) ([]Outcome, error) {
	members, err := m.store.Pending(ctx)
	if err != nil {
		return nil, err
	}
	var out []Outcome
	for _, pm := range members {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		community, member, ok := splitPending(pm)
		if !ok {
			continue
		}
		c, err := m.store.Load(ctx, community, member)
		if err != nil {
			return out, err
		}
		if c == nil || c.State != StateIssued {
			_ = m.store.RemovePending(ctx, community, member)
			continue
		}
		if c.expiredAt(m.now()) {
			if err := m.settle(ctx, c, StateExpired); err != nil {
				return out, err
			}
			obslog.L().Info("verify_expired", zap.String("id", c.ID), zap.String("handle", c.Handle))
			out = append(out, Outcome{Challenge: c, Err: ErrExpired})
			continue
		}
		passed, err := check(ctx, c)
		if errors.Is(err, ErrRejected) {
			if serr := m.settle(ctx, c, StateExpired); serr != nil {
				return out, serr
			}
			out = append(out, Outcome{Challenge: c, Err: err})
			continue
		}
		if err != nil {
			obslog.L().Warn("verify_check_failed", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		if !passed {
			continue
		}
		if err := m.settle(ctx, c, StateConfirmed); err != nil {
			return out, err
		}
		out = append(out, Outcome{Challenge: c})
	}
	return out, nil
}

// IsSettled reports whether err is a terminal challenge state rather than a failure.
func IsSettled(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrNotPending)
}
