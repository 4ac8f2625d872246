package codeforces

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	// VerdictOK is the judge's accepted verdict.
	VerdictOK = "OK"
	// PhaseFinished marks a contest whose results are final.
	PhaseFinished = "FINISHED"

	statusOK     = "OK"
	statusFailed = "FAILED"
	limitComment = "limit exceeded"
)

// ErrUnavailable covers network failures, malformed bodies and exhausted rate-limit retries.
var ErrUnavailable = errors.New("codeforces api unavailable")

// RejectedError is a FAILED envelope; Comment is the judge's own text (e.g. unknown handle).
type RejectedError struct {
	Comment     string
	RateLimited bool
}

func (e *RejectedError) Error() string {
	if e.RateLimited {
		return "codeforces api rate limited: " + e.Comment
	}
	return "codeforces api rejected request: " + e.Comment
}

// Is lets a rate-limited rejection (retries exhausted) match ErrUnavailable.
func (e *RejectedError) Is(target error) bool {
	return e.RateLimited && target == ErrUnavailable
}

type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func (e *envelope) rateLimited() bool {
	return e.Status == statusFailed && strings.Contains(strings.ToLower(e.Comment), limitComment)
}

type User struct {
	Handle     string `json:"handle"`
	FirstName  string `json:"firstName,omitempty"`
	Rank       string `json:"rank,omitempty"`
	Rating     int    `json:"rating,omitempty"`
	MaxRating  int    `json:"maxRating,omitempty"`
	TitlePhoto string `json:"titlePhoto,omitempty"`
}

// RankOrUnrated returns the rank title, "unrated" for users without a rating.
func (u User) RankOrUnrated() string {
	if u.Rating == 0 || strings.TrimSpace(u.Rank) == "" {
		return "unrated"
	}
	return u.Rank
}

type Contest struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Phase string `json:"phase"`
}

type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Rating    int      `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Rated reports whether the judge assigned a difficulty.
func (p Problem) Rated() bool { return p.Rating > 0 }

type Submission struct {
	ID                  int64   `json:"id"`
	ContestID           int     `json:"contestId,omitempty"`
	CreationTimeSeconds int64   `json:"creationTimeSeconds"`
	Problem             Problem `json:"problem"`
	Verdict             string  `json:"verdict,omitempty"`
}

// Accepted reports whether the submission solved (contestID, index).
func (s Submission) Accepted(contestID int, index string) bool {
	return s.Verdict == VerdictOK && s.Problem.ContestID == contestID && s.Problem.Index == index
}

type problemSet struct {
	Problems []Problem `json:"problems"`
}
