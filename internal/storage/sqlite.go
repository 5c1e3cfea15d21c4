package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"issuebot/internal/domain"
	logx "issuebot/pkg/logx"
)

//go:embed sqlite_migrations.sql
var sqliteMigrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, p := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, unavailable("sqlite pragma", err)
		}
	}

	st := &sqliteStore{db: db, log: log.With(logx.String("comp", "storage.sqlite"))}
	if _, err := db.ExecContext(ctx, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, unavailable("sqlite migrate", err)
	}
	st.log.Debug("sqlite opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

const sqliteUserCols = `user_id, COALESCE(username, ''), COALESCE(first_name, ''), role, status, created_at, last_seen,
	COALESCE(employee_id, ''), COALESCE(full_name, ''), COALESCE(department, ''), COALESCE(job_title, ''),
	COALESCE(phone_number, ''), manager_id`

func (s *sqliteStore) InsertUserIfAbsent(ctx context.Context, u domain.User) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_name, role, status, created_at, last_seen)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO NOTHING`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName), string(u.Role), string(u.Status), ms(u.CreatedAt), ms(u.LastSeen),
	)
	if err != nil {
		return false, unavailable("insert user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("insert user", err)
	}
	return n == 1, nil
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (domain.User, bool, error) {
	var (
		u                   domain.User
		role, status        string
		createdAt, lastSeen int64
		manager             sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+sqliteUserCols+` FROM users WHERE user_id = ?`, id).Scan(
		&u.ID, &u.Username, &u.FirstName, &role, &status, &createdAt, &lastSeen,
		&u.Profile.EmployeeID, &u.Profile.FullName, &u.Profile.Department, &u.Profile.JobTitle,
		&u.Profile.Phone, &manager,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, unavailable("get user", err)
	}
	u.Role = domain.Role(role)
	u.Status = domain.Status(status)
	u.CreatedAt = fromMS(createdAt)
	u.LastSeen = fromMS(lastSeen)
	if manager.Valid {
		m := manager.Int64
		u.Profile.ManagerID = &m
	}
	return u, true, nil
}

func (s *sqliteStore) TouchUser(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE user_id = ?`, ms(at), id); err != nil {
		return unavailable("touch user", err)
	}
	return nil
}

func (s *sqliteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, "list users", `SELECT user_id FROM users ORDER BY user_id`)
}

func (s *sqliteStore) ListUserIDsByRole(ctx context.Context, roles ...domain.Role) ([]int64, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = string(r)
	}
	q := `SELECT user_id FROM users WHERE role IN (?` + strings.Repeat(",?", len(roles)-1) + `) ORDER BY user_id`
	return s.queryIDs(ctx, "list users by role", q, args...)
}

func (s *sqliteStore) queryIDs(ctx context.Context, op, q string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func (s *sqliteStore) updateOne(ctx context.Context, op, q string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(op, err)
	}
	return n > 0, nil
}

func (s *sqliteStore) UpdateUserRole(ctx context.Context, id int64, role domain.Role) (bool, error) {
	return s.updateOne(ctx, "update role", `UPDATE users SET role = ? WHERE user_id = ?`, string(role), id)
}

func (s *sqliteStore) UpdateUserStatus(ctx context.Context, id int64, status domain.Status) (bool, error) {
	return s.updateOne(ctx, "update status", `UPDATE users SET status = ? WHERE user_id = ?`, string(status), id)
}

func (s *sqliteStore) UpdateUserProfile(ctx context.Context, id int64, p domain.Profile) (bool, error) {
	return s.updateOne(ctx, "update profile",
		`UPDATE users SET employee_id = ?, full_name = ?, department = ?, job_title = ?, phone_number = ?, manager_id = ?
		 WHERE user_id = ?`,
		nullStr(p.EmployeeID), nullStr(p.FullName), nullStr(p.Department), nullStr(p.JobTitle), nullStr(p.Phone),
		nullID(p.ManagerID), id,
	)
}

func (s *sqliteStore) UpsertUserRole(ctx context.Context, id int64, role domain.Role, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, role, status, created_at, last_seen) VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET role = excluded.role, status = excluded.status`,
		id, string(role), string(domain.StatusActive), ms(at), ms(at),
	)
	if err != nil {
		return unavailable("upsert role", err)
	}
	return nil
}

const sqliteIssueCols = `id, title, message, status, created_by, created_at, COALESCE(resolution, ''), COALESCE(closed_by, 0), closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteIssue(r rowScanner) (domain.Issue, error) {
	var (
		iss       domain.Issue
		status    string
		createdAt int64
		closedAt  sql.NullInt64
	)
	if err := r.Scan(&iss.ID, &iss.Title, &iss.Description, &status, &iss.CreatedBy, &createdAt,
		&iss.Resolution, &iss.ClosedBy, &closedAt); err != nil {
		return domain.Issue{}, err
	}
	iss.Status = domain.IssueStatus(status)
	iss.CreatedAt = fromMS(createdAt)
	if closedAt.Valid {
		iss.ClosedAt = fromMS(closedAt.Int64)
	}
	return iss, nil
}

func (s *sqliteStore) InsertIssue(ctx context.Context, title, description string, creator int64, at time.Time) (domain.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO issues(title, message, created_by, status, created_at) VALUES(?,?,?,?,?)
		 RETURNING `+sqliteIssueCols,
		title, description, creator, string(domain.IssueOpen), ms(at),
	)
	iss, err := scanSQLiteIssue(row)
	if err != nil {
		return domain.Issue{}, unavailable("insert issue", err)
	}
	return iss, nil
}

func (s *sqliteStore) GetIssue(ctx context.Context, id int64) (domain.Issue, bool, error) {
	iss, err := scanSQLiteIssue(s.db.QueryRowContext(ctx, `SELECT `+sqliteIssueCols+` FROM issues WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Issue{}, false, nil
	}
	if err != nil {
		return domain.Issue{}, false, unavailable("get issue", err)
	}
	return iss, true, nil
}

func (s *sqliteStore) ListOpenIssues(ctx context.Context, creator *int64) ([]domain.Issue, error) {
	q := `SELECT ` + sqliteIssueCols + ` FROM issues WHERE status = 'open'`
	var args []any
	if creator != nil {
		q += ` AND created_by = ?`
		args = append(args, *creator)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list issues", err)
	}
	defer rows.Close()
	var out []domain.Issue
	for rows.Next() {
		iss, err := scanSQLiteIssue(rows)
		if err != nil {
			return nil, unavailable("list issues", err)
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list issues", err)
	}
	return out, nil
}

func (s *sqliteStore) CloseIssue(ctx context.Context, id int64, resolution string, closer int64, at time.Time) (domain.Issue, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE issues SET status = 'closed', resolution = ?, closed_by = ?, closed_at = ?
		 WHERE id = ? AND status = 'open'
		 RETURNING `+sqliteIssueCols,
		resolution, closer, ms(at), id,
	)
	iss, err := scanSQLiteIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Issue{}, false, nil
	}
	if err != nil {
		return domain.Issue{}, false, unavailable("close issue", err)
	}
	return iss, true, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, component, action, target, ok, fail, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		ms(e.At), e.ActorID, e.Component, e.Action, e.Target, e.OK, e.Fail, nullStr(e.Error), e.TookMS,
	)
	if err != nil {
		return unavailable("append audit", err)
	}
	return nil
}
