// Package leaderboard derives streak and solve-count rankings from per-day solve flags.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/store"
)

type Kind string

const (
	KindStreak Kind = "streak"
	KindSolves Kind = "solves"
)

type Entry struct {
	MemberID string
	Handle   string
	Count    int
	Rank     int
}

// Streak counts trailing true flags (oldest first). A false in the most recent column
// is skipped, since today may simply not be solved yet; any earlier false ends the streak.
func Streak(flags []bool) int {
	n := 0
	for i := len(flags) - 1; i >= 0; i-- {
		if !flags[i] {
			if i == len(flags)-1 {
				continue
			}
			break
		}
		n++
	}
	return n
}

func Solved(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// Rank orders entries by Count descending then Handle, and assigns competition ranks:
// tied entries share the position of the first of them ([5,5,3,1] -> [1,1,3,4]).
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.ToLower(out[i].Handle) < strings.ToLower(out[j].Handle)
	})
	for i := range out {
		if i == 0 || out[i-1].Count != out[i].Count {
			out[i].Rank = i + 1
		} else {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}

// Flags expands the sparse solve set into one flag per POTD date, oldest first.
func Flags(dates []string, solved map[string]bool) []bool {
	flags := make([]bool, len(dates))
	for i, d := range dates {
		flags[i] = solved[d]
	}
	return flags
}

type source interface {
	ListRegistrations(ctx context.Context, communityID string) ([]domain.Registration, error)
	POTDDates(ctx context.Context) ([]string, error)
	ListSolves(ctx context.Context, communityID string) ([]domain.Solve, error)
}

var _ source = (store.Store)(nil)

type Builder struct {
	src source
}

func NewBuilder(src source) *Builder { return &Builder{src: src} }

// Build ranks every registration of community by kind.
func (b *Builder) Build(ctx context.Context, kind Kind, community string) ([]Entry, error) {
	regs, err := b.src.ListRegistrations(ctx, community)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	dates, err := b.src.POTDDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list potd dates: %w", err)
	}
	solves, err := b.src.ListSolves(ctx, community)
	if err != nil {
		return nil, fmt.Errorf("list solves: %w", err)
	}

	byMember := make(map[string]map[string]bool, len(regs))
	for _, s := range solves {
		m := byMember[s.MemberID]
		if m == nil {
			m = make(map[string]bool)
			byMember[s.MemberID] = m
		}
		m[s.Date] = true
	}

	entries := make([]Entry, 0, len(regs))
	for _, r := range regs {
		flags := Flags(dates, byMember[r.MemberID])
		var count int
		switch kind {
		case KindStreak:
			count = Streak(flags)
		case KindSolves:
			count = Solved(flags)
		default:
			return nil, fmt.Errorf("unknown leaderboard kind %q", kind)
		}
		entries = append(entries, Entry{MemberID: r.MemberID, Handle: r.Handle, Count: count})
	}
	return Rank(entries), nil
}
