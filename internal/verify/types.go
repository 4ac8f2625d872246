// Package verify runs the handle-ownership challenge: a one-time code the member places
// in their judge profile first name before the window closes.
package verify

import (
	"errors"
	"time"
)

type State string

const (
	StateIssued    State = "ISSUED"
	StateConfirmed State = "CONFIRMED"
	StateExpired   State = "EXPIRED"
)

// Challenge is stored as JSON under verify:ch:<community>:<member>.
type Challenge struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	MemberID    string    `json:"member_id"`
	MemberName  string    `json:"member_name,omitempty"`
	Handle      string    `json:"handle"`
	Code        string    `json:"code"`
	State       State     `json:"state"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c *Challenge) expiredAt(now time.Time) bool {
	return c.State == StateIssued && !now.Before(c.ExpiresAt)
}

// Outcome is one challenge settled by a sweep.
type Outcome struct {
	Challenge *Challenge
	Err       error
}

var (
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrNoChallenge   = errors.New("no verification in progress")
	ErrHandleClaimed = errors.New("handle is being verified by another member")
	ErrExpired       = errors.New("verification window expired")
	ErrNotPending    = errors.New("verification already settled")
	ErrRejected      = errors.New("verification rejected")
)
