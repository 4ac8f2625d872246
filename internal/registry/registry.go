// Package registry links chat members to judge handles.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/store"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

var (
	ErrNotRegistered = errors.New("handle not registered")
	ErrCodeMismatch  = errors.New("profile first name does not match the verification code")
)

type Judge interface {
	LookupUser(ctx context.Context, handle string) (*codeforces.User, error)
}

type Verifier interface {
	Issue(ctx context.Context, community, member, memberName, handle string) (*verify.Challenge, error)
	Current(ctx context.Context, community, member string) (*verify.Challenge, error)
	Confirm(ctx context.Context, community, member string) (*verify.Challenge, error)
	Cancel(ctx context.Context, community, member string) error
	Sweep(ctx context.Context, check verify.CheckFunc) ([]verify.Outcome, error)
}

// Profile is a registration enriched with the judge's live rank and rating.
type Profile struct {
	Registration domain.Registration
	User         *codeforces.User
}

type Registry struct {
	store    store.RegistrationStore
	judge    Judge
	verifier Verifier
	now      func() time.Time
}

func New(st store.RegistrationStore, judge Judge, verifier Verifier) *Registry {
	return &Registry{store: st, judge: judge, verifier: verifier, now: time.Now}
}

// Begin validates handle against the judge and issues a verification challenge for member.
func (r *Registry) Begin(ctx context.Context, community, member, memberName, handle string) (*verify.Challenge, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, verify.ErrInvalidArgs
	}
	if existing, err := r.store.GetRegistration(ctx, community, member); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyRegistered, existing.Handle)
	}

	user, err := r.judge.LookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}
	if owner, err := r.store.FindByHandle(ctx, community, user.Handle); err != nil {
		return nil, err
	} else if owner != nil {
		return nil, store.ErrHandleInUse
	}
	return r.verifier.Issue(ctx, community, member, memberName, user.Handle)
}

// Confirm checks the member's challenge right away instead of waiting for the sweep.
func (r *Registry) Confirm(ctx context.Context, community, member string) (*domain.Registration, error) {
	ch, err := r.verifier.Current(ctx, community, member)
	if err != nil {
		return nil, err
	}
	switch ch.State {
	case verify.StateExpired:
		return nil, verify.ErrExpired
	case verify.StateConfirmed:
		reg, err := r.store.GetRegistration(ctx, community, member)
		if err != nil {
			return nil, err
		}
		if reg == nil {
			return nil, verify.ErrNotPending
		}
		return reg, nil
	}

	ok, err := r.complete(ctx, ch)
	if errors.Is(err, verify.ErrRejected) {
		if cerr := r.verifier.Cancel(ctx, community, member); cerr != nil {
			obslog.L().Warn("verify_cancel_failed", zap.String("member", member), zap.Error(cerr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeMismatch
	}
	if _, err := r.verifier.Confirm(ctx, community, member); err != nil && !verify.IsSettled(err) {
		return nil, err
	}
	return r.store.GetRegistration(ctx, community, member)
}

// Sweep settles pending challenges; it is run by the scheduler.
func (r *Registry) Sweep(ctx context.Context) ([]verify.Outcome, error) {
	return r.verifier.Sweep(ctx, r.complete)
}

// complete inserts the registration once the judge profile shows the challenge code.
func (r *Registry) complete(ctx context.Context, ch *verify.Challenge) (bool, error) {
	user, err := r.judge.LookupUser(ctx, ch.Handle)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(user.FirstName) != ch.Code {
		return false, nil
	}
	reg := domain.Registration{
		CommunityID:  ch.CommunityID,
		MemberID:     ch.MemberID,
		Handle:       user.Handle,
		Rating:       user.Rating,
		RegisteredAt: r.now(),
	}
	if err := r.store.InsertRegistration(ctx, reg); err != nil {
		if errors.Is(err, store.ErrAlreadyRegistered) || errors.Is(err, store.ErrHandleInUse) {
			// Confirm and the sweeper can both finish the same challenge; the loser sees its own row.
			existing, getErr := r.store.GetRegistration(ctx, ch.CommunityID, ch.MemberID)
			if getErr == nil && existing != nil && strings.EqualFold(existing.Handle, user.Handle) {
				return true, nil
			}
			return false, fmt.Errorf("%w: %w", verify.ErrRejected, err)
		}
		return false, err
	}
	obslog.L().Info("handle_registered", zap.String("community", ch.CommunityID), zap.String("member", ch.MemberID), zap.String("handle", user.Handle))
	return true, nil
}

// AdminSet registers handle for member without a challenge.
func (r *Registry) AdminSet(ctx context.Context, community, member, handle string) (*Profile, error) {
	handle = strings.TrimSpace(handle)
	if strings.TrimSpace(member) == "" || handle == "" {
		return nil, verify.ErrInvalidArgs
	}
	user, err := r.judge.LookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}
	reg := domain.Registration{
		CommunityID:  community,
		MemberID:     member,
		Handle:       user.Handle,
		Rating:       user.Rating,
		RegisteredAt: r.now(),
	}
	if err := r.store.InsertRegistration(ctx, reg); err != nil {
		return nil, err
	}
	obslog.L().Info("handle_set_by_admin", zap.String("community", community), zap.String("member", member), zap.String("handle", user.Handle))
	return &Profile{Registration: reg, User: user}, nil
}

// Registration returns the stored registration without asking the judge; nil when absent.
func (r *Registry) Registration(ctx context.Context, community, member string) (*domain.Registration, error) {
	return r.store.GetRegistration(ctx, community, member)
}

// Get returns the member's registration with live judge data.
func (r *Registry) Get(ctx context.Context, community, member string) (*Profile, error) {
	reg, err := r.store.GetRegistration(ctx, community, member)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrNotRegistered
	}
	user, err := r.judge.LookupUser(ctx, reg.Handle)
	if err != nil {
		return nil, err
	}
	return &Profile{Registration: *reg, User: user}, nil
}

func (r *Registry) Remove(ctx context.Context, community, member string) error {
	removed, err := r.store.RemoveRegistration(ctx, community, member)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotRegistered
	}
	obslog.L().Info("handle_removed", zap.String("community", community), zap.String("member", member))
	return nil
}
