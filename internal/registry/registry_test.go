package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/store"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

type fakeJudge struct {
	mu    sync.Mutex
	users map[string]*codeforces.User

	// hold > 0 parks lookups until that many callers have arrived.
	hold    int
	arrived int
	release chan struct{}
}

func (f *fakeJudge) LookupUser(ctx context.Context, handle string) (*codeforces.User, error) {
	f.mu.Lock()
	if f.hold > 0 {
		f.arrived++
		if f.arrived == f.hold {
			close(f.release)
			f.hold = 0
		}
		release := f.release
		f.mu.Unlock()
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		f.mu.Lock()
	}
	defer f.mu.Unlock()
	u, ok := f.users[strings.ToLower(handle)]
	if !ok {
		return nil, &codeforces.RejectedError{Comment: "handles: User with handle " + handle + " not found"}
	}
	copy := *u
	return &copy, nil
}

func (f *fakeJudge) holdLookups(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = n
	f.arrived = 0
	f.release = make(chan struct{})
}

func (f *fakeJudge) setFirstName(handle, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[strings.ToLower(handle)].FirstName = name
}

func newTestRegistry(t *testing.T) (*Registry, store.Store, *fakeJudge) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	judge := &fakeJudge{users: map[string]*codeforces.User{
		"tourist": {Handle: "tourist", Rating: 3800, Rank: "legendary grandmaster"},
		"petr":    {Handle: "Petr", Rating: 3100, Rank: "legendary grandmaster"},
	}}
	st := store.NewMemory()
	return New(st, judge, verify.NewManager(rdb, 30*time.Second)), st, judge
}

func TestRegisterTwoPhase(t *testing.T) {
	r, st, judge := newTestRegistry(t)
	ctx := context.Background()

	ch, err := r.Begin(ctx, "room", "u1", "alice", "TOURIST")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ch.Handle != "tourist" {
		t.Fatalf("handle should be canonicalised, got %q", ch.Handle)
	}
	if _, err := r.Confirm(ctx, "room", "u1"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch before the profile changes, got %v", err)
	}

	judge.setFirstName("tourist", ch.Code)
	reg, err := r.Confirm(ctx, "room", "u1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if reg.Handle != "tourist" || reg.Rating != 3800 {
		t.Fatalf("unexpected registration: %+v", reg)
	}
	stored, _ := st.GetRegistration(ctx, "room", "u1")
	if stored == nil || stored.Handle != "tourist" || stored.Rating != 3800 {
		t.Fatalf("round trip mismatch: %+v", stored)
	}

	if _, err := r.Begin(ctx, "room", "u1", "alice", "Petr"); !errors.Is(err, store.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if _, err := r.Begin(ctx, "room", "u2", "bob", "tourist"); !errors.Is(err, store.ErrHandleInUse) {
		t.Fatalf("expected ErrHandleInUse, got %v", err)
	}
}

func TestBeginUnknownHandle(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.Begin(context.Background(), "room", "u1", "", "nobody_here")
	var rej *codeforces.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
}

func TestSweepRegisters(t *testing.T) {
	r, st, judge := newTestRegistry(t)
	ctx := context.Background()
	ch, err := r.Begin(ctx, "room", "u1", "", "Petr")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	judge.setFirstName("Petr", ch.Code)

	out, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(out) != 1 || out[0].Err != nil || out[0].Challenge.State != verify.StateConfirmed {
		t.Fatalf("unexpected outcomes: %+v", out)
	}
	if reg, _ := st.GetRegistration(ctx, "room", "u1"); reg == nil || reg.Handle != "Petr" {
		t.Fatalf("registration missing after sweep: %+v", reg)
	}
}

func TestSweepRejectsWhenHandleTakenMeanwhile(t *testing.T) {
	r, _, judge := newTestRegistry(t)
	ctx := context.Background()
	ch, err := r.Begin(ctx, "room", "u1", "", "Petr")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := r.AdminSet(ctx, "room", "u9", "Petr"); err != nil {
		t.Fatalf("AdminSet: %v", err)
	}
	judge.setFirstName("Petr", ch.Code)

	out, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(out) != 1 || !errors.Is(out[0].Err, store.ErrHandleInUse) {
		t.Fatalf("expected handle-in-use rejection, got %+v", out)
	}
}

func TestAdminSetGetRemove(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	if _, err := r.AdminSet(ctx, "room", "u2", "tourist"); err != nil {
		t.Fatalf("AdminSet: %v", err)
	}
	if _, err := r.AdminSet(ctx, "room", "u2", "Petr"); !errors.Is(err, store.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	p, err := r.Get(ctx, "room", "u2")
	if err != nil || p.User.RankOrUnrated() != "legendary grandmaster" {
		t.Fatalf("Get = %+v, %v", p, err)
	}
	if err := r.Remove(ctx, "room", "u2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Get(ctx, "room", "u2"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := r.Remove(ctx, "room", "u2"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered on second remove, got %v", err)
	}
}

func TestConfirmRejectsWhenHandleTakenMeanwhile(t *testing.T) {
	r, _, judge := newTestRegistry(t)
	ctx := context.Background()
	ch, err := r.Begin(ctx, "room", "u1", "", "Petr")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := r.AdminSet(ctx, "room", "u9", "Petr"); err != nil {
		t.Fatalf("AdminSet: %v", err)
	}
	judge.setFirstName("Petr", ch.Code)

	if _, err := r.Confirm(ctx, "room", "u1"); !errors.Is(err, store.ErrHandleInUse) {
		t.Fatalf("expected ErrHandleInUse, got %v", err)
	}
	// the challenge is closed, so neither a retry nor the sweep sees it again
	if _, err := r.Confirm(ctx, "room", "u1"); !errors.Is(err, verify.ErrExpired) {
		t.Fatalf("expected ErrExpired after rejection, got %v", err)
	}
	out, err := r.Sweep(ctx)
	if err != nil || len(out) != 0 {
		t.Fatalf("sweep after rejection = %+v, %v", out, err)
	}
}

func TestConfirmAndSweepRaceBothSucceed(t *testing.T) {
	r, st, judge := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := r.Begin(ctx, "room", "u1", "", "Petr")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	judge.setFirstName("Petr", ch.Code)
	judge.holdLookups(2)

	type confirmResult struct {
		handle string
		err    error
	}
	done := make(chan confirmResult, 1)
	go func() {
		reg, err := r.Confirm(ctx, "room", "u1")
		if err != nil {
			done <- confirmResult{err: err}
			return
		}
		done <- confirmResult{handle: reg.Handle}
	}()

	out, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	res := <-done
	if res.err != nil || res.handle != "Petr" {
		t.Fatalf("Confirm = %q, %v", res.handle, res.err)
	}
	if len(out) != 1 || out[0].Err != nil || out[0].Challenge.State != verify.StateConfirmed {
		t.Fatalf("sweep should confirm too, got %+v", out)
	}
	if reg, _ := st.GetRegistration(ctx, "room", "u1"); reg == nil || reg.Handle != "Petr" {
		t.Fatalf("registration missing: %+v", reg)
	}
	if _, err := r.Confirm(ctx, "room", "u1"); err != nil {
		t.Fatalf("Confirm after settle: %v", err)
	}
}
