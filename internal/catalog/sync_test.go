package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/store"
)

type fakeJudge struct {
	contests    []codeforces.Contest
	problems    []codeforces.Problem
	contestsErr error
	problemsErr error
}

func (f *fakeJudge) ListContests(ctx context.Context) ([]codeforces.Contest, error) {
	return f.contests, f.contestsErr
}

func (f *fakeJudge) ListProblems(ctx context.Context) ([]codeforces.Problem, error) {
	return f.problems, f.problemsErr
}

func sampleJudge() *fakeJudge {
	return &fakeJudge{
		contests: []codeforces.Contest{
			{ID: 1850, Name: "Codeforces Round 886 (Div. 4)", Phase: codeforces.PhaseFinished},
			{ID: 1952, Name: "April Fools Day Contest 2024", Phase: codeforces.PhaseFinished},
			{ID: 2000, Name: "Codeforces Round 999 (Div. 2)", Phase: "BEFORE"},
		},
		problems: []codeforces.Problem{
			{ContestID: 1850, Index: "A", Name: "To My Critics", Type: "PROGRAMMING", Rating: 800},
			{ContestID: 1850, Index: "B", Name: "Ten Words of Wisdom", Type: "PROGRAMMING", Rating: 800},
			{ContestID: 1850, Index: "H", Name: "The Third Letter", Type: "PROGRAMMING"},
			{ContestID: 1952, Index: "A", Name: "Are You a Robot?", Type: "PROGRAMMING", Rating: 800},
			{ContestID: 2000, Index: "A", Name: "Upcoming", Type: "PROGRAMMING", Rating: 1200},
			{ContestID: 42, Index: "A", Name: "Orphan", Type: "PROGRAMMING", Rating: 1000},
		},
	}
}

func TestIsNonStandard(t *testing.T) {
	cases := map[string]bool{
		"April Fools Day Contest 2024":       true,
		"Kotlin Heroes: Episode 10":          true,
		"VK Cup 2022 Onsite Finals":          true,
		"Q# Coding Contest - Summer 2018":    true,
		"Codeforces Round 886 (Div. 4)":      false,
		"Educational Codeforces Round 160":   false,
		"Codeforces Round 900 (UNRATED Div)": true,
	}
	for name, want := range cases {
		if got := IsNonStandard(name); got != want {
			t.Fatalf("IsNonStandard(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSyncImportsStandardRatedProblems(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	rep, err := NewSyncer(sampleJudge(), st).Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Contests != 1 {
		t.Fatalf("expected only the finished standard contest, got %d", rep.Contests)
	}
	// 1850A, 1850B and the unfinished contest's 2000A; the fools round and the unrated problem are skipped
	if rep.Problems != 3 {
		t.Fatalf("expected 3 problems, got %d", rep.Problems)
	}

	keys, _ := st.ProblemKeys(ctx)
	for _, k := range []domain.ProblemKey{{ContestID: 1850, Index: "A"}, {ContestID: 1850, Index: "B"}} {
		if _, ok := keys[k]; !ok {
			t.Fatalf("missing %s", k)
		}
	}
	if _, ok := keys[domain.ProblemKey{ContestID: 1952, Index: "A"}]; ok {
		t.Fatalf("april fools problem imported")
	}
	if name, _ := st.ContestName(ctx, 1952); name != "" {
		t.Fatalf("april fools contest imported")
	}
}

func TestSyncIsIncremental(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	judge := sampleJudge()
	if _, err := NewSyncer(judge, st).Sync(ctx); err != nil {
		t.Fatalf("Sync#1: %v", err)
	}

	judge.problems = append(judge.problems, codeforces.Problem{ContestID: 1850, Index: "C", Name: "Word on the Paper", Type: "PROGRAMMING", Rating: 800})
	rep, err := NewSyncer(judge, st).Sync(ctx)
	if err != nil {
		t.Fatalf("Sync#2: %v", err)
	}
	if rep.Contests != 0 || rep.Problems != 1 {
		t.Fatalf("second sync should add only 1850C, got %+v", rep)
	}
}

func TestSyncKeepsUsedFlag(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	judge := sampleJudge()
	_, _ = NewSyncer(judge, st).Sync(ctx)
	if err := st.MarkProblemUsed(ctx, domain.ProblemKey{ContestID: 1850, Index: "A"}); err != nil {
		t.Fatalf("MarkProblemUsed: %v", err)
	}
	_, _ = NewSyncer(judge, st).Sync(ctx)
	unused, _ := st.UnusedProblems(ctx, 800)
	for _, p := range unused {
		if p.ContestID == 1850 && p.Index == "A" {
			t.Fatalf("resync reset used flag")
		}
	}
}

func TestSyncFetchFailureInsertsNothing(t *testing.T) {
	st := store.NewMemory()
	judge := sampleJudge()
	judge.problemsErr = codeforces.ErrUnavailable

	_, err := NewSyncer(judge, st).Sync(context.Background())
	if !errors.Is(err, codeforces.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	ids, _ := st.ContestIDs(context.Background())
	if len(ids) != 0 {
		t.Fatalf("contests inserted despite failed fetch: %v", ids)
	}
}
