// Package potd picks the daily problem and detects who solved it.
package potd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/store"
)

// Difficulties is the target rating per weekday, Monday first.
var Difficulties = [7]int{800, 1200, 900, 1300, 1000, 1600, 1400}

var ErrAlreadySelected = errors.New("potd already selected for this date")

// ExhaustedPoolError means no unused problem is left at Rating; it blocks the day's POTD.
type ExhaustedPoolError struct {
	Rating int
}

func (e *ExhaustedPoolError) Error() string {
	return fmt.Sprintf("not enough problems with rating %d left", e.Rating)
}

// DifficultyFor maps a weekday onto the Monday-indexed difficulty table.
func DifficultyFor(wd time.Weekday) int {
	return Difficulties[(int(wd)+6)%7]
}

// Announcer receives committed POTD selections and first-time solves.
type Announcer interface {
	AnnouncePOTD(ctx context.Context, p domain.POTD, contestName string) error
	AnnounceSolve(ctx context.Context, p domain.POTD, reg domain.Registration) error
}

type selectorStore interface {
	store.CatalogStore
	store.POTDStore
}

type Selector struct {
	store     selectorStore
	announcer Announcer
	community string
	loc       *time.Location
	rnd       *rand.Rand
}

type SelectorOption func(*Selector)

// WithRand injects the sampling source; tests pass a seeded PCG.
func WithRand(r *rand.Rand) SelectorOption {
	return func(s *Selector) {
		if r != nil {
			s.rnd = r
		}
	}
}

func WithLocation(loc *time.Location) SelectorOption {
	return func(s *Selector) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewSelector builds a selector recording POTDs for community (the room that owns solve tracking).
func NewSelector(st selectorStore, announcer Announcer, community string, opts ...SelectorOption) *Selector {
	seed := uint64(time.Now().UnixNano())
	s := &Selector{
		store:     st,
		announcer: announcer,
		community: community,
		loc:       time.Local,
		rnd:       rand.New(rand.NewPCG(seed, seed>>17|1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select draws today's problem, records it and announces it.
// A second call for the same date returns ErrAlreadySelected without consuming a problem.
func (s *Selector) Select(ctx context.Context, now time.Time) (*domain.POTD, error) {
	now = now.In(s.loc)
	date := domain.DayKey(now)
	rating := DifficultyFor(now.Weekday())

	options, err := s.store.UnusedProblems(ctx, rating)
	if err != nil {
		return nil, fmt.Errorf("load unused problems: %w", err)
	}
	if len(options) == 0 {
		obslog.L().Error("potd_pool_exhausted", zap.Int("rating", rating), zap.String("date", date))
		return nil, &ExhaustedPoolError{Rating: rating}
	}
	pick := s.weightedPick(options)

	rec := domain.POTD{
		Date:        date,
		ContestID:   pick.ContestID,
		Index:       pick.Index,
		Name:        pick.Name,
		Rating:      pick.Rating,
		CommunityID: s.community,
		CreatedAt:   now,
	}
	if err := s.store.InsertPOTD(ctx, rec); err != nil {
		if errors.Is(err, store.ErrPOTDExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadySelected, date)
		}
		return nil, fmt.Errorf("insert potd: %w", err)
	}
	// The POTD row is committed; a failed mark must not hide it from the caller.
	if err := s.markUsed(ctx, pick.Key()); err != nil {
		obslog.L().Error("potd_mark_used_failed",
			zap.String("date", date),
			zap.String("problem", pick.Key().String()),
			zap.Error(err),
		)
	}
	obslog.L().Info("potd_selected",
		zap.String("date", date),
		zap.String("problem", pick.Key().String()),
		zap.Int("rating", rating),
		zap.Int("pool", len(options)),
	)

	if s.announcer != nil {
		contestName, _ := s.store.ContestName(ctx, pick.ContestID)
		if err := s.announcer.AnnouncePOTD(ctx, rec, contestName); err != nil {
			obslog.L().Warn("potd_announce_failed", zap.String("date", date), zap.Error(err))
		}
	}
	return &rec, nil
}

const markAttempts = 3

func (s *Selector) markUsed(ctx context.Context, key domain.ProblemKey) error {
	var err error
	for attempt := 1; attempt <= markAttempts; attempt++ {
		err = s.store.MarkProblemUsed(ctx, key)
		if err == nil || errors.Is(err, store.ErrAlreadyUsed) {
			return nil
		}
		if attempt == markAttempts {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * 50 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

// Current returns the POTD of now's date, nil when none was selected.
func (s *Selector) Current(ctx context.Context, now time.Time) (*domain.POTD, error) {
	return s.store.GetPOTD(ctx, domain.DayKey(now.In(s.loc)))
}

// EnsureToday selects only when the date has no POTD yet.
func (s *Selector) EnsureToday(ctx context.Context, now time.Time) (*domain.POTD, error) {
	cur, err := s.Current(ctx, now)
	if err != nil || cur != nil {
		return cur, err
	}
	p, err := s.Select(ctx, now)
	if errors.Is(err, ErrAlreadySelected) {
		return s.Current(ctx, now)
	}
	return p, err
}

// weightedPick samples with weight int(id*sqrt(id)), favouring newer contests.
func (s *Selector) weightedPick(options []domain.Problem) domain.Problem {
	weights := make([]int64, len(options))
	var total int64
	for i, p := range options {
		id := float64(p.ContestID)
		weights[i] = int64(id * math.Sqrt(id))
		total += weights[i]
	}
	if total <= 0 {
		return options[s.rnd.IntN(len(options))]
	}
	r := s.rnd.Int64N(total)
	for i, w := range weights {
		if r < w {
			return options[i]
		}
		r -= w
	}
	return options[len(options)-1]
}
