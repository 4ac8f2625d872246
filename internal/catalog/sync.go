// Package catalog mirrors the judge's contest and problem lists into the local store.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/park285/codeforces-potd-bot/internal/store"
)

// nonStandardMarkers flag special-format rounds (april fools, marathons, onsite finals, ...).
var nonStandardMarkers = []string{
	"wild",
	"fools",
	"unrated",
	"surprise",
	"unknown",
	"friday",
	"q#",
	"testing",
	"marathon",
	"kotlin",
	"onsite",
	"experimental",
	"abbyy",
}

// IsNonStandard reports whether a contest name matches any non-standard marker, case-insensitively.
func IsNonStandard(contestName string) bool {
	name := strings.ToLower(contestName)
	for _, m := range nonStandardMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// Judge is the slice of the judge client the synchronizer needs.
type Judge interface {
	ListContests(ctx context.Context) ([]codeforces.Contest, error)
	ListProblems(ctx context.Context) ([]codeforces.Problem, error)
}

type Report struct {
	Contests int
	Problems int
	Took     time.Duration
}

type Syncer struct {
	judge Judge
	store store.CatalogStore
}

func NewSyncer(judge Judge, st store.CatalogStore) *Syncer {
	return &Syncer{judge: judge, store: st}
}

// Sync inserts contests and rated problems the store has not seen yet.
// A fetch failure aborts before any insert; a store failure stops the run and keeps earlier inserts.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	started := time.Now()
	var (
		contests []codeforces.Contest
		problems []codeforces.Problem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contests, err = s.judge.ListContests(gctx)
		if err != nil {
			return fmt.Errorf("list contests: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		problems, err = s.judge.ListProblems(gctx)
		if err != nil {
			return fmt.Errorf("list problems: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		obslog.L().Warn("catalog_sync_fetch_failed", zap.Error(err))
		return Report{}, err
	}

	knownContests, err := s.store.ContestIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load contest ids: %w", err)
	}
	knownProblems, err := s.store.ProblemKeys(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load problem keys: %w", err)
	}

	var rep Report
	names := make(map[int]string, len(contests))
	for _, c := range contests {
		names[c.ID] = c.Name
		if _, seen := knownContests[c.ID]; seen {
			continue
		}
		if c.Phase != codeforces.PhaseFinished || IsNonStandard(c.Name) {
			continue
		}
		if err := s.store.InsertContest(ctx, domain.Contest{ID: c.ID, Name: c.Name}); err != nil {
			return rep, fmt.Errorf("insert contest %d: %w", c.ID, err)
		}
		knownContests[c.ID] = struct{}{}
		rep.Contests++
	}

	for _, p := range problems {
		name, ok := names[p.ContestID]
		if !ok || IsNonStandard(name) || !p.Rated() {
			continue
		}
		key := domain.ProblemKey{ContestID: p.ContestID, Index: p.Index}
		if _, seen := knownProblems[key]; seen {
			continue
		}
		row := domain.Problem{ContestID: p.ContestID, Index: p.Index, Name: p.Name, Type: p.Type, Rating: p.Rating}
		if err := s.store.InsertProblem(ctx, row); err != nil {
			return rep, fmt.Errorf("insert problem %s: %w", key, err)
		}
		knownProblems[key] = struct{}{}
		rep.Problems++
	}

	rep.Took = time.Since(started)
	obslog.L().Info("catalog_synced",
		zap.Int("contests_added", rep.Contests),
		zap.Int("problems_added", rep.Problems),
		zap.Duration("took", rep.Took),
	)
	return rep, nil
}
