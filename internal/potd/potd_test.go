package potd

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/store"
)

// 2024-05-07 is a Tuesday.
var tuesday = time.Date(2024, 5, 7, 0, 0, 5, 0, time.UTC)

type recordingAnnouncer struct {
	mu     sync.Mutex
	potds  []domain.POTD
	solves []string
}

func (r *recordingAnnouncer) AnnouncePOTD(ctx context.Context, p domain.POTD, contestName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.potds = append(r.potds, p)
	return nil
}

func (r *recordingAnnouncer) AnnounceSolve(ctx context.Context, p domain.POTD, reg domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.solves = append(r.solves, reg.Handle)
	return nil
}

func newSelector(t *testing.T, st store.Store, ann Announcer) *Selector {
	t.Helper()
	return NewSelector(st, ann, "room", WithLocation(time.UTC), WithRand(rand.New(rand.NewPCG(1, 2))))
}

func TestDifficultyTable(t *testing.T) {
	if got := DifficultyFor(time.Monday); got != 800 {
		t.Fatalf("monday = %d", got)
	}
	if got := DifficultyFor(time.Tuesday); got != 1200 {
		t.Fatalf("tuesday = %d", got)
	}
	if got := DifficultyFor(time.Sunday); got != 1400 {
		t.Fatalf("sunday = %d", got)
	}
}

func TestSelectUsesWeekdayRating(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 1850, Index: "A", Name: "easy", Rating: 800})
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 1851, Index: "C", Name: "target", Rating: 1200})
	ann := &recordingAnnouncer{}

	p, err := newSelector(t, st, ann).Select(ctx, tuesday)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Rating != 1200 || p.ContestID != 1851 || p.Date != "2024-05-07" || p.CommunityID != "room" {
		t.Fatalf("unexpected potd: %+v", p)
	}
	if len(ann.potds) != 1 {
		t.Fatalf("expected one announcement, got %d", len(ann.potds))
	}
	if err := st.MarkProblemUsed(ctx, p.Key()); !errors.Is(err, store.ErrAlreadyUsed) {
		t.Fatalf("selected problem should be used, got %v", err)
	}
}

// flakyMarkStore fails the first failures MarkProblemUsed calls.
type flakyMarkStore struct {
	store.Store
	failures int
	calls    int
}

func (f *flakyMarkStore) MarkProblemUsed(ctx context.Context, key domain.ProblemKey) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.Store.MarkProblemUsed(ctx, key)
}

func TestSelectRetriesMarkUsed(t *testing.T) {
	st := &flakyMarkStore{Store: store.NewMemory(), failures: 1}
	ctx := context.Background()
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 5, Index: "A", Rating: 1200})

	p, err := newSelector(t, st, nil).Select(ctx, tuesday)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if st.calls != 2 {
		t.Fatalf("mark calls = %d, want 2", st.calls)
	}
	if unused, _ := st.UnusedProblems(ctx, 1200); len(unused) != 0 {
		t.Fatalf("problem %s should be used after retry", p.Key())
	}
}

func TestSelectKeepsPOTDWhenMarkFails(t *testing.T) {
	st := &flakyMarkStore{Store: store.NewMemory(), failures: 100}
	ctx := context.Background()
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 5, Index: "A", Rating: 1200})
	ann := &recordingAnnouncer{}

	p, err := newSelector(t, st, ann).Select(ctx, tuesday)
	if err != nil || p == nil {
		t.Fatalf("Select = %+v, %v", p, err)
	}
	if st.calls != markAttempts {
		t.Fatalf("mark calls = %d, want %d", st.calls, markAttempts)
	}
	if len(ann.potds) != 1 {
		t.Fatalf("committed potd should still be announced, got %d", len(ann.potds))
	}
	if cur, _ := st.GetPOTD(ctx, "2024-05-07"); cur == nil || cur.Key() != p.Key() {
		t.Fatalf("recorded potd = %+v", cur)
	}
}

func TestSelectExhaustedPool(t *testing.T) {
	st := store.NewMemory()
	_ = st.InsertProblem(context.Background(), domain.Problem{ContestID: 1850, Index: "A", Rating: 800})

	_, err := newSelector(t, st, nil).Select(context.Background(), tuesday)
	var ex *ExhaustedPoolError
	if !errors.As(err, &ex) || ex.Rating != 1200 {
		t.Fatalf("expected ExhaustedPoolError{1200}, got %v", err)
	}
}

func TestSelectTwiceSameDay(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 1, Index: "A", Rating: 1200})
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 2, Index: "A", Rating: 1200})
	sel := newSelector(t, st, nil)

	first, err := sel.Select(ctx, tuesday)
	if err != nil {
		t.Fatalf("Select#1: %v", err)
	}
	if _, err := sel.Select(ctx, tuesday.Add(time.Hour)); !errors.Is(err, ErrAlreadySelected) {
		t.Fatalf("expected ErrAlreadySelected, got %v", err)
	}
	unused, _ := st.UnusedProblems(ctx, 1200)
	if len(unused) != 1 {
		t.Fatalf("second call must not consume a problem, unused=%d", len(unused))
	}
	cur, _ := sel.EnsureToday(ctx, tuesday)
	if cur == nil || cur.Key() != first.Key() {
		t.Fatalf("EnsureToday should return existing potd, got %+v", cur)
	}
}

func TestEnsureTodaySelectsWhenMissing(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_ = st.InsertProblem(ctx, domain.Problem{ContestID: 7, Index: "B", Rating: 1200})
	p, err := newSelector(t, st, nil).EnsureToday(ctx, tuesday)
	if err != nil || p == nil || p.ContestID != 7 {
		t.Fatalf("EnsureToday = %+v, %v", p, err)
	}
}

func TestWeightedPickFavoursLargerIDs(t *testing.T) {
	sel := newSelector(t, store.NewMemory(), nil)
	options := []domain.Problem{{ContestID: 100, Index: "A"}, {ContestID: 200, Index: "A"}}
	counts := map[int]int{}
	for i := 0; i < 20000; i++ {
		counts[sel.weightedPick(options).ContestID]++
	}
	// weights 1000 : 2828
	ratio := float64(counts[200]) / float64(counts[100])
	if ratio < 2.5 || ratio > 3.2 {
		t.Fatalf("ratio = %.2f (counts %v), expected about 2.83", ratio, counts)
	}
}

type fakeSubmissions struct {
	mu    sync.Mutex
	subs  map[string][]codeforces.Submission
	fail  map[string]error
	calls int
}

func (f *fakeSubmissions) ListUserSubmissions(ctx context.Context, handle string, limit int) ([]codeforces.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[handle]; err != nil {
		return nil, err
	}
	return f.subs[handle], nil
}

func accepted(contestID int, index string) codeforces.Submission {
	return codeforces.Submission{Problem: codeforces.Problem{ContestID: contestID, Index: index, Rating: 1200}, Verdict: codeforces.VerdictOK}
}

func TestPollAnnouncesOnce(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_ = st.InsertPOTD(ctx, domain.POTD{Date: "2024-05-07", ContestID: 1851, Index: "C", CommunityID: "room"})
	_ = st.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u1", Handle: "tourist"})
	_ = st.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u2", Handle: "Petr"})
	_ = st.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u3", Handle: "flaky"})
	_ = st.InsertRegistration(ctx, domain.Registration{CommunityID: "elsewhere", MemberID: "u4", Handle: "outsider"})

	judge := &fakeSubmissions{
		subs: map[string][]codeforces.Submission{
			"tourist":  {accepted(1851, "C")},
			"Petr":     {{Problem: codeforces.Problem{ContestID: 1851, Index: "C"}, Verdict: "WRONG_ANSWER"}},
			"outsider": {accepted(1851, "C")},
		},
		fail: map[string]error{"flaky": codeforces.ErrUnavailable},
	}
	ann := &recordingAnnouncer{}
	tr := NewTracker(st, judge, ann, time.UTC, 50)

	solved, err := tr.Poll(ctx, tuesday)
	if err != nil {
		t.Fatalf("Poll#1: %v", err)
	}
	if len(solved) != 1 || solved[0].MemberID != "u1" {
		t.Fatalf("unexpected solves: %+v", solved)
	}
	if judge.calls != 3 {
		t.Fatalf("only the potd community should be polled, calls=%d", judge.calls)
	}

	solved, err = tr.Poll(ctx, tuesday.Add(time.Minute))
	if err != nil {
		t.Fatalf("Poll#2: %v", err)
	}
	if len(solved) != 0 {
		t.Fatalf("second poll must not re-announce: %+v", solved)
	}
	if len(ann.solves) != 1 || ann.solves[0] != "tourist" {
		t.Fatalf("announcements = %v", ann.solves)
	}
}

func TestPollWithoutPOTDIsNoop(t *testing.T) {
	st := store.NewMemory()
	judge := &fakeSubmissions{}
	solved, err := NewTracker(st, judge, nil, time.UTC, 0).Poll(context.Background(), tuesday)
	if err != nil || solved != nil || judge.calls != 0 {
		t.Fatalf("Poll = %v, %v (calls %d)", solved, err, judge.calls)
	}
}
