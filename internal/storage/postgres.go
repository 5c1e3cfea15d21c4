package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"issuebot/internal/domain"
	logx "issuebot/pkg/logx"
)

//go:embed postgres_migrations.sql
var postgresMigrations string

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pcfg.MinConns = 0
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, unavailable("create postgres pool", err)
	}
	log = log.With(logx.String("comp", "storage.postgres"))

	// The database may come up after the bot (compose, systemd ordering).
	wait := cfg.ConnectTimeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = wait
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pctx); err != nil {
			log.Warn("postgres not ready", logx.Int("attempt", attempt), logx.Err(err))
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		pool.Close()
		return nil, unavailable("ping postgres", err)
	}

	if _, err := pool.Exec(ctx, postgresMigrations); err != nil {
		pool.Close()
		return nil, unavailable("postgres migrate", err)
	}
	log.Debug("postgres opened", logx.Int("attempts", attempt))
	return &pgStore{pool: pool, log: log}, nil
}

func (s *pgStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const pgUserCols = `user_id, COALESCE(username, ''), COALESCE(first_name, ''), role, status, created_at, last_seen,
	COALESCE(employee_id, ''), COALESCE(full_name, ''), COALESCE(department, ''), COALESCE(job_title, ''),
	COALESCE(phone_number, ''), manager_id`

func (s *pgStore) InsertUserIfAbsent(ctx context.Context, u domain.User) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users(user_id, username, first_name, role, status, created_at, last_seen)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT(user_id) DO NOTHING`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName), string(u.Role), string(u.Status), u.CreatedAt, u.LastSeen,
	)
	if err != nil {
		return false, unavailable("insert user", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) GetUser(ctx context.Context, id int64) (domain.User, bool, error) {
	var (
		u            domain.User
		role, status string
	)
	err := s.pool.QueryRow(ctx, `SELECT `+pgUserCols+` FROM users WHERE user_id = $1`, id).Scan(
		&u.ID, &u.Username, &u.FirstName, &role, &status, &u.CreatedAt, &u.LastSeen,
		&u.Profile.EmployeeID, &u.Profile.FullName, &u.Profile.Department, &u.Profile.JobTitle,
		&u.Profile.Phone, &u.Profile.ManagerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, unavailable("get user", err)
	}
	u.Role = domain.Role(role)
	u.Status = domain.Status(status)
	return u, true, nil
}

func (s *pgStore) TouchUser(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = $1 WHERE user_id = $2`, at, id); err != nil {
		return unavailable("touch user", err)
	}
	return nil
}

func (s *pgStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, "list users", `SELECT user_id FROM users ORDER BY user_id`)
}

func (s *pgStore) ListUserIDsByRole(ctx context.Context, roles ...domain.Role) ([]int64, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return s.queryIDs(ctx, "list users by role", `SELECT user_id FROM users WHERE role = ANY($1) ORDER BY user_id`, names)
}

func (s *pgStore) queryIDs(ctx context.Context, op, q string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, unavailable(op, err)
	}
	return ids, nil
}

func (s *pgStore) updateOne(ctx context.Context, op, q string, args ...any) (bool, error) {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, unavailable(op, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgStore) UpdateUserRole(ctx context.Context, id int64, role domain.Role) (bool, error) {
	return s.updateOne(ctx, "update role", `UPDATE users SET role = $1 WHERE user_id = $2`, string(role), id)
}

func (s *pgStore) UpdateUserStatus(ctx context.Context, id int64, status domain.Status) (bool, error) {
	return s.updateOne(ctx, "update status", `UPDATE users SET status = $1 WHERE user_id = $2`, string(status), id)
}

func (s *pgStore) UpdateUserProfile(ctx context.Context, id int64, p domain.Profile) (bool, error) {
	return s.updateOne(ctx, "update profile",
		`UPDATE users SET employee_id = $1, full_name = $2, department = $3, job_title = $4, phone_number = $5, manager_id = $6
		 WHERE user_id = $7`,
		nullStr(p.EmployeeID), nullStr(p.FullName), nullStr(p.Department), nullStr(p.JobTitle), nullStr(p.Phone),
		nullID(p.ManagerID), id,
	)
}

func (s *pgStore) UpsertUserRole(ctx context.Context, id int64, role domain.Role, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users(user_id, role, status, created_at, last_seen) VALUES($1,$2,$3,$4,$4)
		 ON CONFLICT(user_id) DO UPDATE SET role = EXCLUDED.role, status = EXCLUDED.status`,
		id, string(role), string(domain.StatusActive), at,
	)
	if err != nil {
		return unavailable("upsert role", err)
	}
	return nil
}

const pgIssueCols = `id, title, message, status, created_by, created_at, COALESCE(resolution, ''), COALESCE(closed_by, 0), closed_at`

func scanPGIssue(r pgx.Row) (domain.Issue, error) {
	var (
		iss      domain.Issue
		status   string
		closedAt *time.Time
	)
	if err := r.Scan(&iss.ID, &iss.Title, &iss.Description, &status, &iss.CreatedBy, &iss.CreatedAt,
		&iss.Resolution, &iss.ClosedBy, &closedAt); err != nil {
		return domain.Issue{}, err
	}
	iss.Status = domain.IssueStatus(status)
	if closedAt != nil {
		iss.ClosedAt = *closedAt
	}
	return iss, nil
}

func (s *pgStore) InsertIssue(ctx context.Context, title, description string, creator int64, at time.Time) (domain.Issue, error) {
	iss, err := scanPGIssue(s.pool.QueryRow(ctx,
		`INSERT INTO issues(title, message, created_by, status, created_at) VALUES($1,$2,$3,'open',$4)
		 RETURNING `+pgIssueCols,
		title, description, creator, at,
	))
	if err != nil {
		return domain.Issue{}, unavailable("insert issue", err)
	}
	return iss, nil
}

func (s *pgStore) GetIssue(ctx context.Context, id int64) (domain.Issue, bool, error) {
	iss, err := scanPGIssue(s.pool.QueryRow(ctx, `SELECT `+pgIssueCols+` FROM issues WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Issue{}, false, nil
	}
	if err != nil {
		return domain.Issue{}, false, unavailable("get issue", err)
	}
	return iss, true, nil
}

func (s *pgStore) ListOpenIssues(ctx context.Context, creator *int64) ([]domain.Issue, error) {
	q := `SELECT ` + pgIssueCols + ` FROM issues WHERE status = 'open'`
	var args []any
	if creator != nil {
		q += ` AND created_by = $1`
		args = append(args, *creator)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list issues", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Issue, error) {
		return scanPGIssue(r)
	})
	if err != nil {
		return nil, unavailable("list issues", err)
	}
	return out, nil
}

func (s *pgStore) CloseIssue(ctx context.Context, id int64, resolution string, closer int64, at time.Time) (domain.Issue, bool, error) {
	iss, err := scanPGIssue(s.pool.QueryRow(ctx,
		`UPDATE issues SET status = 'closed', resolution = $1, closed_by = $2, closed_at = $3
		 WHERE id = $4 AND status = 'open'
		 RETURNING `+pgIssueCols,
		resolution, closer, at, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Issue{}, false, nil
	}
	if err != nil {
		return domain.Issue{}, false, unavailable("close issue", err)
	}
	return iss, true, nil
}

func (s *pgStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit(at, actor_id, component, action, target, ok, fail, err, took_ms)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.At, e.ActorID, e.Component, e.Action, e.Target, e.OK, e.Fail, nullStr(e.Error), e.TookMS,
	)
	if err != nil {
		return unavailable("append audit", err)
	}
	return nil
}
