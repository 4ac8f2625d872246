package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/codeforces-potd-bot/internal/domain"
)

const (
	uniqueViolation = "23505"

	registrationsPKey     = "registrations_pkey"
	registrationsHandleUQ = "registrations_community_handle_key"
)

type postgres struct {
	db *sql.DB
}

// OpenPostgres connects, applies pending migrations and returns a Store backed by databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &postgres{db: db}, nil
}

func (p *postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *postgres) GetRegistration(ctx context.Context, communityID, memberID string) (*domain.Registration, error) {
	const query = `
		SELECT community_id, member_id, handle, rating, registered_at
		FROM registrations
		WHERE community_id = $1 AND member_id = $2`
	return p.scanRegistration(p.db.QueryRowContext(ctx, query, communityID, memberID))
}

func (p *postgres) FindByHandle(ctx context.Context, communityID, handle string) (*domain.Registration, error) {
	const query = `
		SELECT community_id, member_id, handle, rating, registered_at
		FROM registrations
		WHERE community_id = $1 AND lower(handle) = lower($2)`
	return p.scanRegistration(p.db.QueryRowContext(ctx, query, communityID, handle))
}

func (p *postgres) scanRegistration(row *sql.Row) (*domain.Registration, error) {
	var r domain.Registration
	err := row.Scan(&r.CommunityID, &r.MemberID, &r.Handle, &r.Rating, &r.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select registration: %w", err)
	}
	return &r, nil
}

func (p *postgres) InsertRegistration(ctx context.Context, reg domain.Registration) error {
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}
	const query = `
		INSERT INTO registrations (community_id, member_id, handle, rating, registered_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.ExecContext(ctx, query, reg.CommunityID, reg.MemberID, reg.Handle, reg.Rating, reg.RegisteredAt)
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		switch pqErr.Constraint {
		case registrationsHandleUQ:
			return ErrHandleInUse
		case registrationsPKey:
			return ErrAlreadyRegistered
		}
		return ErrAlreadyRegistered
	}
	return fmt.Errorf("insert registration: %w", err)
}

func (p *postgres) ListRegistrations(ctx context.Context, communityID string) ([]domain.Registration, error) {
	const query = `
		SELECT community_id, member_id, handle, rating, registered_at
		FROM registrations
		WHERE $1 = '' OR community_id = $1
		ORDER BY registered_at, member_id`
	rows, err := p.db.QueryContext(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("select registrations: %w", err)
	}
	defer rows.Close()

	var out []domain.Registration
	for rows.Next() {
		var r domain.Registration
		if err := rows.Scan(&r.CommunityID, &r.MemberID, &r.Handle, &r.Rating, &r.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *postgres) RemoveRegistration(ctx context.Context, communityID, memberID string) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE community_id = $1 AND member_id = $2`, communityID, memberID)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM potd_solves WHERE community_id = $1 AND member_id = $2`, communityID, memberID); err != nil {
		return false, fmt.Errorf("delete solves: %w", err)
	}
	return true, tx.Commit()
}

func (p *postgres) ContestIDs(ctx context.Context) (map[int]struct{}, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT contest_id FROM contests`)
	if err != nil {
		return nil, fmt.Errorf("select contests: %w", err)
	}
	defer rows.Close()
	out := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (p *postgres) ContestName(ctx context.Context, contestID int) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx, `SELECT name FROM contests WHERE contest_id = $1`, contestID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (p *postgres) InsertContest(ctx context.Context, c domain.Contest) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO contests (contest_id, name) VALUES ($1, $2) ON CONFLICT (contest_id) DO NOTHING`,
		c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("insert contest: %w", err)
	}
	return nil
}

func (p *postgres) ProblemKeys(ctx context.Context) (map[domain.ProblemKey]struct{}, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT contest_id, problem_index FROM problems`)
	if err != nil {
		return nil, fmt.Errorf("select problems: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.ProblemKey]struct{})
	for rows.Next() {
		var k domain.ProblemKey
		if err := rows.Scan(&k.ContestID, &k.Index); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func (p *postgres) InsertProblem(ctx context.Context, pr domain.Problem) error {
	const query = `
		INSERT INTO problems (contest_id, problem_index, name, problem_type, rating, used)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (contest_id, problem_index) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, query, pr.ContestID, pr.Index, pr.Name, pr.Type, pr.Rating, pr.Used); err != nil {
		return fmt.Errorf("insert problem: %w", err)
	}
	return nil
}

func (p *postgres) UnusedProblems(ctx context.Context, rating int) ([]domain.Problem, error) {
	const query = `
		SELECT contest_id, problem_index, name, problem_type, rating, used
		FROM problems
		WHERE rating = $1 AND NOT used
		ORDER BY contest_id, problem_index`
	rows, err := p.db.QueryContext(ctx, query, rating)
	if err != nil {
		return nil, fmt.Errorf("select unused problems: %w", err)
	}
	defer rows.Close()
	var out []domain.Problem
	for rows.Next() {
		var pr domain.Problem
		if err := rows.Scan(&pr.ContestID, &pr.Index, &pr.Name, &pr.Type, &pr.Rating, &pr.Used); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *postgres) MarkProblemUsed(ctx context.Context, key domain.ProblemKey) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE problems SET used = TRUE WHERE contest_id = $1 AND problem_index = $2 AND NOT used`,
		key.ContestID, key.Index)
	if err != nil {
		return fmt.Errorf("mark problem used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var used bool
	err = p.db.QueryRowContext(ctx,
		`SELECT used FROM problems WHERE contest_id = $1 AND problem_index = $2`,
		key.ContestID, key.Index).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProblemNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyUsed
}

func (p *postgres) InsertPOTD(ctx context.Context, potd domain.POTD) error {
	if potd.CreatedAt.IsZero() {
		potd.CreatedAt = time.Now()
	}
	const query = `
		INSERT INTO potds (use_date, contest_id, problem_index, name, rating, community_id, created_at)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (use_date) DO NOTHING`
	res, err := p.db.ExecContext(ctx, query,
		potd.Date, potd.ContestID, potd.Index, potd.Name, potd.Rating, potd.CommunityID, potd.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert potd: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPOTDExists
	}
	return nil
}

func (p *postgres) GetPOTD(ctx context.Context, date string) (*domain.POTD, error) {
	const query = `
		SELECT to_char(use_date, 'YYYY-MM-DD'), contest_id, problem_index, name, rating, community_id, created_at
		FROM potds
		WHERE use_date = $1::date`
	var out domain.POTD
	err := p.db.QueryRowContext(ctx, query, date).Scan(
		&out.Date, &out.ContestID, &out.Index, &out.Name, &out.Rating, &out.CommunityID, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select potd: %w", err)
	}
	return &out, nil
}

func (p *postgres) POTDDates(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT to_char(use_date, 'YYYY-MM-DD') FROM potds ORDER BY use_date`)
	if err != nil {
		return nil, fmt.Errorf("select potd dates: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *postgres) MarkSolved(ctx context.Context, communityID, memberID, date string, at time.Time) (bool, error) {
	const query = `
		INSERT INTO potd_solves (community_id, member_id, use_date, solved_at)
		VALUES ($1, $2, $3::date, $4)
		ON CONFLICT (community_id, member_id, use_date) DO NOTHING`
	res, err := p.db.ExecContext(ctx, query, communityID, memberID, date, at)
	if err != nil {
		return false, fmt.Errorf("insert solve: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (p *postgres) ListSolves(ctx context.Context, communityID string) ([]domain.Solve, error) {
	const query = `
		SELECT community_id, member_id, to_char(use_date, 'YYYY-MM-DD'), solved_at
		FROM potd_solves
		WHERE $1 = '' OR community_id = $1
		ORDER BY use_date, member_id`
	rows, err := p.db.QueryContext(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("select solves: %w", err)
	}
	defer rows.Close()
	var out []domain.Solve
	for rows.Next() {
		var s domain.Solve
		if err := rows.Scan(&s.CommunityID, &s.MemberID, &s.Date, &s.SolvedAt); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
