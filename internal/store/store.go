// Package store persists registrations, the contest/problem catalog, POTD history and solves.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/park285/codeforces-potd-bot/internal/domain"
)

var (
	ErrAlreadyRegistered = errors.New("member already has a registered handle")
	ErrHandleInUse       = errors.New("handle already registered in this community")
	ErrAlreadyUsed       = errors.New("problem already used")
	ErrProblemNotFound   = errors.New("problem not found")
	ErrPOTDExists        = errors.New("potd already recorded for this date")
)

// RegistrationStore owns handle registrations. Lookups return nil, nil when absent.
type RegistrationStore interface {
	GetRegistration(ctx context.Context, communityID, memberID string) (*domain.Registration, error)
	FindByHandle(ctx context.Context, communityID, handle string) (*domain.Registration, error)
	// InsertRegistration is an atomic insert-if-absent on both (community, member) and
	// (community, handle); it returns ErrAlreadyRegistered or ErrHandleInUse on conflict.
	InsertRegistration(ctx context.Context, reg domain.Registration) error
	// ListRegistrations lists one community, or every community when communityID is empty.
	ListRegistrations(ctx context.Context, communityID string) ([]domain.Registration, error)
	RemoveRegistration(ctx context.Context, communityID, memberID string) (bool, error)
}

type CatalogStore interface {
	ContestIDs(ctx context.Context) (map[int]struct{}, error)
	ContestName(ctx context.Context, contestID int) (string, error)
	InsertContest(ctx context.Context, c domain.Contest) error
	ProblemKeys(ctx context.Context) (map[domain.ProblemKey]struct{}, error)
	InsertProblem(ctx context.Context, p domain.Problem) error
	UnusedProblems(ctx context.Context, rating int) ([]domain.Problem, error)
	// MarkProblemUsed flips used false→true; a second call returns ErrAlreadyUsed.
	MarkProblemUsed(ctx context.Context, key domain.ProblemKey) error
}

type POTDStore interface {
	// InsertPOTD is insert-if-absent on the date; ErrPOTDExists on conflict.
	InsertPOTD(ctx context.Context, p domain.POTD) error
	GetPOTD(ctx context.Context, date string) (*domain.POTD, error)
	// POTDDates returns every recorded date, oldest first.
	POTDDates(ctx context.Context) ([]string, error)
	// MarkSolved is insert-if-absent; it reports true only for the call that created the flag.
	MarkSolved(ctx context.Context, communityID, memberID, date string, at time.Time) (bool, error)
	ListSolves(ctx context.Context, communityID string) ([]domain.Solve, error)
}

type Store interface {
	RegistrationStore
	CatalogStore
	POTDStore
	Close() error
}
