package verify

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// settled challenges stay readable for a while so the member can see why it ended
const settledGrace = 10 * time.Minute

type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyChallenge(community, member string) string {
	return "verify:ch:" + strings.TrimSpace(community) + ":" + strings.TrimSpace(member)
}

func (s *Store) keyClaim(community, handle string) string {
	return "verify:claim:" + strings.TrimSpace(community) + ":" + strings.ToLower(strings.TrimSpace(handle))
}

func (s *Store) keyPending() string { return "verify:pending" }

func pendingMember(community, member string) string { return community + "|" + member }

func splitPending(v string) (community, member string, ok bool) {
	return strings.Cut(v, "|")
}

func (s *Store) Save(ctx context.Context, c *Challenge, ttl time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyChallenge(c.CommunityID, c.MemberID), raw, ttl).Err()
}

func (s *Store) Load(ctx context.Context, community, member string) (*Challenge, error) {
	raw, err := s.rdb.Get(ctx, s.keyChallenge(community, member)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Claim takes the handle for member with SETNX. Re-claiming by the same member succeeds.
func (s *Store) Claim(ctx context.Context, community, handle, member string, ttl time.Duration) (bool, error) {
	key := s.keyClaim(community, handle)
	ok, err := s.rdb.SetNX(ctx, key, member, ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	owner, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// released between SETNX and GET
		return s.rdb.SetNX(ctx, key, member, ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if owner != member {
		return false, nil
	}
	return true, s.rdb.Expire(ctx, key, ttl).Err()
}

// Release drops the claim only if member still owns it.
func (s *Store) Release(ctx context.Context, community, handle, member string) error {
	key := s.keyClaim(community, handle)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if owner != member {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

func (s *Store) AddPending(ctx context.Context, community, member string) error {
	return s.rdb.SAdd(ctx, s.keyPending(), pendingMember(community, member)).Err()
}

func (s *Store) RemovePending(ctx context.Context, community, member string) error {
	return s.rdb.SRem(ctx, s.keyPending(), pendingMember(community, member)).Err()
}

func (s *Store) Pending(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyPending()).Result()
}

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 15
	// bytes at or above this would favour the first 256%36 letters
	codeByteLimit = 256 - 256%len(codeLetters)
)

// codeGen returns 15 upper alnum characters, each uniform over the alphabet.
func codeGen() (string, error) { return codeFrom(rand.Reader) }

func codeFrom(r io.Reader) (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)
	for len(out) < codeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			out = append(out, codeLetters[int(b)%len(codeLetters)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}
