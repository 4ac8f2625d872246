package presenter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/park285/codeforces-potd-bot/internal/codeforces"
	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/leaderboard"
	"github.com/park285/codeforces-potd-bot/internal/registry"
	"github.com/park285/codeforces-potd-bot/internal/store"
	"github.com/park285/codeforces-potd-bot/internal/verify"
)

type sent struct {
	room, text, image string
}

type fakeEgress struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeEgress) SendText(ctx context.Context, room, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{room: room, text: message})
	return nil
}

func (f *fakeEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{room: room, image: imageBase64})
	return nil
}

func newAnnouncer(images bool) (*RoomAnnouncer, *fakeEgress) {
	eg := &fakeEgress{}
	return NewRoomAnnouncer(eg, NewFormatter(nil, "!"), "potd-room", images), eg
}

var samplePOTD = &domain.POTD{Date: "2024-05-07", ContestID: 1850, Index: "A", Name: "To My Critics", Rating: 800}

func TestAnnouncePOTD(t *testing.T) {
	a, eg := newAnnouncer(false)
	if err := a.AnnouncePOTD(context.Background(), *samplePOTD, "Codeforces Round 886 (Div. 4)"); err != nil {
		t.Fatalf("AnnouncePOTD: %v", err)
	}
	if len(eg.out) != 1 || eg.out[0].room != "potd-room" {
		t.Fatalf("unexpected sends: %+v", eg.out)
	}
	msg := eg.out[0].text
	for _, want := range []string{"2024-05-07", "To My Critics (800)", "Div. 4", "https://codeforces.com/contest/1850/problem/A"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("announcement %q missing %q", msg, want)
		}
	}
}

func TestAnnounceSolve(t *testing.T) {
	a, eg := newAnnouncer(false)
	_ = a.AnnounceSolve(context.Background(), *samplePOTD, domain.Registration{MemberID: "u1", Handle: "tourist"})
	if len(eg.out) != 1 || !strings.Contains(eg.out[0].text, "tourist") {
		t.Fatalf("unexpected sends: %+v", eg.out)
	}
}

func TestNumberFormatting(t *testing.T) {
	f := NewFormatter(nil, "!")
	if got := f.Number(1234567); got != "1,234,567" {
		t.Fatalf("Number = %q", got)
	}
}

func TestLeaderboardTextIsFolded(t *testing.T) {
	f := NewFormatter(nil, "!")
	entries := []leaderboard.Entry{{Handle: "tourist", Count: 3, Rank: 1}, {Handle: "Petr", Count: 1, Rank: 2}}
	out := f.Leaderboard(leaderboard.KindStreak, entries)
	if !strings.Contains(out, strings.Repeat(kakaoZeroWidthSpace, kakaoSeeMorePadding)) {
		t.Fatalf("missing see-more padding")
	}
	head, body, ok := strings.Cut(out, "\n")
	if !ok || strings.Contains(head, "tourist") {
		t.Fatalf("rows must be below the fold: %q", head)
	}
	if !strings.Contains(body, "1. tourist - 3일") || !strings.Contains(body, "2. Petr - 1일") {
		t.Fatalf("rows missing: %q", body)
	}
	if strings.Contains(body, "연속 풀이 순위") {
		t.Fatalf("title repeated under the fold: %q", body)
	}
}

func TestLeaderboardEmpty(t *testing.T) {
	f := NewFormatter(nil, "!")
	out := f.Leaderboard(leaderboard.KindSolves, nil)
	if strings.Contains(out, kakaoZeroWidthSpace) || !strings.Contains(out, "누적 풀이 순위") {
		t.Fatalf("unexpected empty board: %q", out)
	}
}

func TestLeaderboardSendsCard(t *testing.T) {
	a, eg := newAnnouncer(true)
	entries := []leaderboard.Entry{{Handle: "tourist", Count: 12, Rank: 1}}
	if err := a.Leaderboard(context.Background(), "room", leaderboard.KindSolves, entries); err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(eg.out) != 2 || eg.out[1].image == "" {
		t.Fatalf("expected text then image, got %d sends", len(eg.out))
	}
	raw, err := base64.StdEncoding.DecodeString(eg.out[1].image)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("card is not a png: %v", err)
	}
}

func TestProfileWithoutJudgeData(t *testing.T) {
	f := NewFormatter(nil, "!")
	out := f.Profile("handle.current", "철수", &registry.Profile{Registration: domain.Registration{Handle: "tourist"}})
	if !strings.Contains(out, "unrated") || !strings.Contains(out, "https://codeforces.com/profile/tourist") {
		t.Fatalf("unexpected profile: %q", out)
	}
	out = f.Profile("handle.current", "철수", &registry.Profile{
		Registration: domain.Registration{Handle: "tourist"},
		User:         &codeforces.User{Handle: "tourist", Rank: "legendary grandmaster", Rating: 3800},
	})
	if !strings.Contains(out, "legendary grandmaster") || !strings.Contains(out, "3,800") {
		t.Fatalf("unexpected profile: %q", out)
	}
}

func TestVerifyOutcomeGoesToChallengeRoom(t *testing.T) {
	a, eg := newAnnouncer(false)
	ch := &verify.Challenge{CommunityID: "room-b", MemberName: "영희", Handle: "Petr"}
	_ = a.VerifyOutcome(context.Background(), verify.Outcome{Challenge: ch})
	_ = a.VerifyOutcome(context.Background(), verify.Outcome{Challenge: ch, Err: verify.ErrExpired})
	_ = a.VerifyOutcome(context.Background(), verify.Outcome{Challenge: ch, Err: errors.Join(verify.ErrRejected, store.ErrHandleInUse)})
	if len(eg.out) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(eg.out))
	}
	for _, s := range eg.out {
		if s.room != "room-b" {
			t.Fatalf("reply sent to %q", s.room)
		}
	}
	if !strings.Contains(eg.out[0].text, "Petr") || !strings.Contains(eg.out[1].text, "영희") {
		t.Fatalf("unexpected replies: %+v", eg.out)
	}
	if !strings.Contains(eg.out[2].text, "다른 멤버") {
		t.Fatalf("handle conflict not reported: %q", eg.out[2].text)
	}
}
