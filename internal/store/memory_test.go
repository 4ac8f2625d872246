package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/codeforces-potd-bot/internal/domain"
)

func TestInsertRegistrationConflicts(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u1", Handle: "tourist"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u1", Handle: "Petr"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := s.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u2", Handle: "TOURIST"}); !errors.Is(err, ErrHandleInUse) {
		t.Fatalf("expected ErrHandleInUse, got %v", err)
	}
	// same handle in a different community is fine
	if err := s.InsertRegistration(ctx, domain.Registration{CommunityID: "other", MemberID: "u2", Handle: "tourist"}); err != nil {
		t.Fatalf("insert other community: %v", err)
	}

	got, err := s.FindByHandle(ctx, "room", "Tourist")
	if err != nil || got == nil || got.MemberID != "u1" {
		t.Fatalf("FindByHandle = %+v, %v", got, err)
	}
	regs, _ := s.ListRegistrations(ctx, "")
	if len(regs) != 2 {
		t.Fatalf("expected 2 registrations overall, got %d", len(regs))
	}
}

func TestRegistrationIDsMatchExactly(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.InsertRegistration(ctx, domain.Registration{CommunityID: " room ", MemberID: "u1", Handle: "tourist"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// every lookup agrees on which community the row belongs to
	if r, _ := s.GetRegistration(ctx, "room", "u1"); r != nil {
		t.Fatalf("GetRegistration matched a padded id: %+v", r)
	}
	if r, _ := s.FindByHandle(ctx, "room", "tourist"); r != nil {
		t.Fatalf("FindByHandle matched a padded id: %+v", r)
	}
	if list, _ := s.ListRegistrations(ctx, "room"); len(list) != 0 {
		t.Fatalf("ListRegistrations matched a padded id: %+v", list)
	}
	if r, _ := s.GetRegistration(ctx, " room ", "u1"); r == nil {
		t.Fatalf("GetRegistration missed the exact id")
	}
	if list, _ := s.ListRegistrations(ctx, " room "); len(list) != 1 {
		t.Fatalf("ListRegistrations = %+v", list)
	}
	if err := s.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u1", Handle: "tourist"}); err != nil {
		t.Fatalf("distinct community should accept the row: %v", err)
	}
	if ok, _ := s.RemoveRegistration(ctx, "room", "u1"); !ok {
		t.Fatalf("RemoveRegistration missed the exact id")
	}
	if r, _ := s.GetRegistration(ctx, " room ", "u1"); r == nil {
		t.Fatalf("removal touched the padded row")
	}
}

func TestConcurrentRegistrationSingleWinner(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: string(rune('a' + i)), Handle: "tourist"})
			if err == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if ok.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", ok.Load())
	}
}

func TestRemoveRegistrationDropsSolves(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.InsertRegistration(ctx, domain.Registration{CommunityID: "room", MemberID: "u1", Handle: "tourist"})
	if _, err := s.MarkSolved(ctx, "room", "u1", "2024-05-01", time.Now()); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}

	removed, err := s.RemoveRegistration(ctx, "room", "u1")
	if err != nil || !removed {
		t.Fatalf("RemoveRegistration = %v, %v", removed, err)
	}
	if reg, _ := s.GetRegistration(ctx, "room", "u1"); reg != nil {
		t.Fatalf("registration still present")
	}
	solves, _ := s.ListSolves(ctx, "room")
	if len(solves) != 0 {
		t.Fatalf("solves should be dropped with the registration, got %d", len(solves))
	}
	if removed, _ := s.RemoveRegistration(ctx, "room", "u1"); removed {
		t.Fatalf("second remove should report false")
	}
}

func TestMarkProblemUsedOnce(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	p := domain.Problem{ContestID: 1850, Index: "A", Name: "To My Critics", Rating: 800}
	_ = s.InsertProblem(ctx, p)
	_ = s.InsertProblem(ctx, domain.Problem{ContestID: 1850, Index: "A", Name: "dup", Rating: 800})

	if err := s.MarkProblemUsed(ctx, p.Key()); err != nil {
		t.Fatalf("MarkProblemUsed: %v", err)
	}
	if err := s.MarkProblemUsed(ctx, p.Key()); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected ErrAlreadyUsed, got %v", err)
	}
	if err := s.MarkProblemUsed(ctx, domain.ProblemKey{ContestID: 1, Index: "Z"}); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound, got %v", err)
	}
	unused, _ := s.UnusedProblems(ctx, 800)
	if len(unused) != 0 {
		t.Fatalf("used problem still listed: %+v", unused)
	}
}

func TestInsertPOTDOncePerDate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.InsertPOTD(ctx, domain.POTD{Date: "2024-05-02", ContestID: 1, Index: "A"}); err != nil {
		t.Fatalf("InsertPOTD: %v", err)
	}
	if err := s.InsertPOTD(ctx, domain.POTD{Date: "2024-05-02", ContestID: 2, Index: "B"}); !errors.Is(err, ErrPOTDExists) {
		t.Fatalf("expected ErrPOTDExists, got %v", err)
	}
	_ = s.InsertPOTD(ctx, domain.POTD{Date: "2024-05-01", ContestID: 3, Index: "C"})

	dates, _ := s.POTDDates(ctx)
	if len(dates) != 2 || dates[0] != "2024-05-01" || dates[1] != "2024-05-02" {
		t.Fatalf("dates not ascending: %v", dates)
	}
	got, _ := s.GetPOTD(ctx, "2024-05-02")
	if got == nil || got.ContestID != 1 {
		t.Fatalf("first insert should win: %+v", got)
	}
	if missing, _ := s.GetPOTD(ctx, "2020-01-01"); missing != nil {
		t.Fatalf("expected nil for missing date")
	}
}

func TestMarkSolvedReportsFirstOnly(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	first, _ := s.MarkSolved(ctx, "room", "u1", "2024-05-01", time.Now())
	second, _ := s.MarkSolved(ctx, "room", "u1", "2024-05-01", time.Now())
	if !first || second {
		t.Fatalf("MarkSolved first=%v second=%v", first, second)
	}
}
