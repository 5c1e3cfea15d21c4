package storage

import (
	"context"
	"fmt"
	"time"

	"issuebot/internal/domain"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): Path is the database file
//   - "postgres": DSN is a postgres connection string
type Config struct {
	Driver         string
	Path           string
	DSN            string
	BusyTimeout    time.Duration // sqlite only; 0 means default
	ConnectTimeout time.Duration // postgres only; total time spent retrying the first ping
	MaxConns       int32         // postgres only; 0 means pgxpool default
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At        time.Time
	ActorID   int64
	Component string
	Action    string
	Target    string
	OK        int
	Fail      int
	Error     string
	TookMS    int64
}

type UserStore interface {
	// InsertUserIfAbsent inserts u unless a row with the same id exists.
	// created is true only for the call that inserted the row.
	InsertUserIfAbsent(ctx context.Context, u domain.User) (created bool, err error)
	GetUser(ctx context.Context, id int64) (u domain.User, ok bool, err error)
	TouchUser(ctx context.Context, id int64, at time.Time) error
	ListUserIDs(ctx context.Context) ([]int64, error)
	ListUserIDsByRole(ctx context.Context, roles ...domain.Role) ([]int64, error)
	UpdateUserRole(ctx context.Context, id int64, role domain.Role) (ok bool, err error)
	UpdateUserStatus(ctx context.Context, id int64, status domain.Status) (ok bool, err error)
	UpdateUserProfile(ctx context.Context, id int64, p domain.Profile) (ok bool, err error)
	// UpsertUserRole creates or promotes a user to role with status active.
	UpsertUserRole(ctx context.Context, id int64, role domain.Role, at time.Time) error
}

type IssueStore interface {
	InsertIssue(ctx context.Context, title, description string, creator int64, at time.Time) (domain.Issue, error)
	GetIssue(ctx context.Context, id int64) (iss domain.Issue, ok bool, err error)
	// ListOpenIssues returns open issues newest first, optionally for one creator.
	ListOpenIssues(ctx context.Context, creator *int64) ([]domain.Issue, error)
	// CloseIssue applies open -> closed in one conditional update.
	// ok is false when the issue is missing or already closed.
	CloseIssue(ctx context.Context, id int64, resolution string, closer int64, at time.Time) (iss domain.Issue, ok bool, err error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the full persistence API.
type Store interface {
	UserStore
	IssueStore
	AuditStore
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
