package domain

import (
	"fmt"
	"time"
)

// DayLayout is the calendar key format used for POTD dates and solve flags.
const DayLayout = "2006-01-02"

// DayKey formats t as a calendar day in t's location.
func DayKey(t time.Time) string { return t.Format(DayLayout) }

// Registration links a chat member to a Codeforces handle inside one community (room).
type Registration struct {
	CommunityID  string
	MemberID     string
	Handle       string
	Rating       int
	RegisteredAt time.Time
}

type Contest struct {
	ID   int
	Name string
}

// ProblemKey identifies a problem by contest id and index ("1850", "A").
type ProblemKey struct {
	ContestID int
	Index     string
}

func (k ProblemKey) String() string { return fmt.Sprintf("%d/%s", k.ContestID, k.Index) }

// URL returns the problem statement link on codeforces.com.
func (k ProblemKey) URL() string {
	return fmt.Sprintf("https://codeforces.com/contest/%d/problem/%s", k.ContestID, k.Index)
}

type Problem struct {
	ContestID int
	Index     string
	Name      string
	Type      string
	Rating    int
	Used      bool
}

func (p Problem) Key() ProblemKey { return ProblemKey{ContestID: p.ContestID, Index: p.Index} }

// POTD is the problem selected for one calendar day. Date is the natural key.
type POTD struct {
	Date        string
	ContestID   int
	Index       string
	Name        string
	Rating      int
	CommunityID string
	CreatedAt   time.Time
}

func (p POTD) Key() ProblemKey { return ProblemKey{ContestID: p.ContestID, Index: p.Index} }

// Solve records that a member solved the POTD of Date.
type Solve struct {
	CommunityID string
	MemberID    string
	Date        string
	SolvedAt    time.Time
}
