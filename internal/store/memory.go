package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/codeforces-potd-bot/internal/domain"
)

// memory is an in-process Store used by tests and local runs without DATABASE_URL.
type memory struct {
	mu sync.RWMutex

	registrations map[string]*domain.Registration // community|member
	contests      map[int]string
	problems      map[domain.ProblemKey]*domain.Problem
	potds         map[string]*domain.POTD
	solves        map[string]*domain.Solve // community|member|date
}

func NewMemory() Store {
	return &memory{
		registrations: make(map[string]*domain.Registration),
		contests:      make(map[int]string),
		problems:      make(map[domain.ProblemKey]*domain.Problem),
		potds:         make(map[string]*domain.POTD),
		solves:        make(map[string]*domain.Solve),
	}
}

func (m *memory) Close() error { return nil }

func (m *memory) GetRegistration(ctx context.Context, communityID, memberID string) (*domain.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.registrations[memberKey(communityID, memberID)]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, nil
}

func (m *memory) FindByHandle(ctx context.Context, communityID, handle string) (*domain.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r := m.findByHandleLocked(communityID, handle); r != nil {
		copy := *r
		return &copy, nil
	}
	return nil, nil
}

func (m *memory) findByHandleLocked(communityID, handle string) *domain.Registration {
	for _, r := range m.registrations {
		if r.CommunityID == communityID && strings.EqualFold(r.Handle, handle) {
			return r
		}
	}
	return nil
}

func (m *memory) InsertRegistration(ctx context.Context, reg domain.Registration) error {
	key := memberKey(reg.CommunityID, reg.MemberID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registrations[key]; exists {
		return ErrAlreadyRegistered
	}
	if m.findByHandleLocked(reg.CommunityID, reg.Handle) != nil {
		return ErrHandleInUse
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}
	m.registrations[key] = &reg
	return nil
}

func (m *memory) ListRegistrations(ctx context.Context, communityID string) ([]domain.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Registration, 0, len(m.registrations))
	for _, r := range m.registrations {
		if communityID != "" && r.CommunityID != communityID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

func (m *memory) RemoveRegistration(ctx context.Context, communityID, memberID string) (bool, error) {
	key := memberKey(communityID, memberID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registrations[key]; !ok {
		return false, nil
	}
	delete(m.registrations, key)
	for k, s := range m.solves {
		if s.CommunityID == communityID && s.MemberID == memberID {
			delete(m.solves, k)
		}
	}
	return true, nil
}

func (m *memory) ContestIDs(ctx context.Context) (map[int]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]struct{}, len(m.contests))
	for id := range m.contests {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memory) ContestName(ctx context.Context, contestID int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contests[contestID], nil
}

func (m *memory) InsertContest(ctx context.Context, c domain.Contest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contests[c.ID]; !ok {
		m.contests[c.ID] = c.Name
	}
	return nil
}

func (m *memory) ProblemKeys(ctx context.Context) (map[domain.ProblemKey]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.ProblemKey]struct{}, len(m.problems))
	for k := range m.problems {
		out[k] = struct{}{}
	}
	return out, nil
}

func (m *memory) InsertProblem(ctx context.Context, p domain.Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.problems[p.Key()]; !ok {
		m.problems[p.Key()] = &p
	}
	return nil
}

func (m *memory) UnusedProblems(ctx context.Context, rating int) ([]domain.Problem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Problem
	for _, p := range m.problems {
		if p.Rating == rating && !p.Used {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContestID != out[j].ContestID {
			return out[i].ContestID < out[j].ContestID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (m *memory) MarkProblemUsed(ctx context.Context, key domain.ProblemKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[key]
	if !ok {
		return ErrProblemNotFound
	}
	if p.Used {
		return ErrAlreadyUsed
	}
	p.Used = true
	return nil
}

func (m *memory) InsertPOTD(ctx context.Context, p domain.POTD) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.potds[p.Date]; exists {
		return ErrPOTDExists
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.potds[p.Date] = &p
	return nil
}

func (m *memory) GetPOTD(ctx context.Context, date string) (*domain.POTD, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.potds[date]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, nil
}

func (m *memory) POTDDates(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dates := make([]string, 0, len(m.potds))
	for d := range m.potds {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *memory) MarkSolved(ctx context.Context, communityID, memberID, date string, at time.Time) (bool, error) {
	key := memberKey(communityID, memberID) + "|" + date
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.solves[key]; exists {
		return false, nil
	}
	m.solves[key] = &domain.Solve{CommunityID: communityID, MemberID: memberID, Date: date, SolvedAt: at}
	return true, nil
}

func (m *memory) ListSolves(ctx context.Context, communityID string) ([]domain.Solve, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Solve
	for _, s := range m.solves {
		if communityID != "" && s.CommunityID != communityID {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

// memberKey matches ids exactly, as the Postgres primary keys do.
func memberKey(communityID, memberID string) string {
	return communityID + "|" + memberID
}
