// Package directory keeps the registered chat users and their roles.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"issuebot/internal/domain"
	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	logx "issuebot/pkg/logx"
)

var (
	// ErrForbidden is returned when the actor may not change roles or status.
	ErrForbidden = errors.New("directory: forbidden")
	// ErrUnknownUser is returned when the target user is not registered.
	ErrUnknownUser = errors.New("directory: unknown user")
)

type Directory struct {
	store storage.UserStore
	audit storage.AuditStore
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

type Option func(*Directory)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(d *Directory) { d.now = now } }

func WithAudit(a storage.AuditStore) Option { return func(d *Directory) { d.audit = a } }

func New(store storage.UserStore, bus eventbus.Bus, log logx.Logger, opts ...Option) *Directory {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	d := &Directory{store: store, bus: bus, log: log.With(logx.String("comp", "directory")), now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// RegisterIfAbsent adds the user with the default role and status.
// Re-registering is a no-op that reports created=false.
func (d *Directory) RegisterIfAbsent(ctx context.Context, id int64, displayName, handle string) (bool, error) {
	created, err := d.store.InsertUserIfAbsent(ctx, domain.NewUser(id, displayName, handle, d.now()))
	if err != nil {
		return false, fmt.Errorf("register user %d: %w", id, err)
	}
	if created {
		d.log.Info("user registered", logx.Int64("user_id", id), logx.String("username", handle))
		d.bus.Publish(eventbus.Event{Type: eventbus.TopicUserRegistered, Data: eventbus.UserEvent{UserID: id, Username: handle}})
	}
	return created, nil
}

// Get returns the user; ok is false for unknown users.
func (d *Directory) Get(ctx context.Context, id int64) (domain.User, bool, error) {
	return d.store.GetUser(ctx, id)
}

// Role returns the user's role; known is false for unregistered users.
func (d *Directory) Role(ctx context.Context, id int64) (domain.Role, bool, error) {
	u, ok, err := d.store.GetUser(ctx, id)
	if err != nil || !ok {
		return "", false, err
	}
	return u.Role, true, nil
}

// IsPrivileged reports whether the user is an admin or super admin.
// Unknown users are not privileged.
func (d *Directory) IsPrivileged(ctx context.Context, id int64) (bool, error) {
	role, _, err := d.Role(ctx, id)
	if err != nil {
		return false, err
	}
	return role.Privileged(), nil
}

// TouchActivity sets last_seen to now. Unknown users are ignored.
func (d *Directory) TouchActivity(ctx context.Context, id int64) error {
	return d.store.TouchUser(ctx, id, d.now())
}

// ListAllIdentities returns every registered user id.
func (d *Directory) ListAllIdentities(ctx context.Context) ([]int64, error) {
	return d.store.ListUserIDs(ctx)
}

// ListPrivilegedIdentities returns admins and super admins.
func (d *Directory) ListPrivilegedIdentities(ctx context.Context) ([]int64, error) {
	return d.store.ListUserIDsByRole(ctx, domain.RoleAdmin, domain.RoleSuperAdmin)
}

func (d *Directory) requireSuperAdmin(ctx context.Context, actor int64) error {
	role, _, err := d.Role(ctx, actor)
	if err != nil {
		return err
	}
	if role != domain.RoleSuperAdmin {
		return ErrForbidden
	}
	return nil
}

// SetRole changes target's role. Only super admins may do this.
func (d *Directory) SetRole(ctx context.Context, actor, target int64, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("set role: invalid role %q", role)
	}
	if err := d.requireSuperAdmin(ctx, actor); err != nil {
		return err
	}
	ok, err := d.store.UpdateUserRole(ctx, target, role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if !ok {
		return ErrUnknownUser
	}
	d.log.Info("role changed", logx.Int64("actor", actor), logx.Int64("user_id", target), logx.String("role", string(role)))
	d.appendAudit(ctx, actor, "set_role", fmt.Sprintf("%d:%s", target, role))
	return nil
}

// Approve marks target as active. Only super admins may do this.
func (d *Directory) Approve(ctx context.Context, actor, target int64) error {
	if err := d.requireSuperAdmin(ctx, actor); err != nil {
		return err
	}
	ok, err := d.store.UpdateUserStatus(ctx, target, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if !ok {
		return ErrUnknownUser
	}
	d.log.Info("user approved", logx.Int64("actor", actor), logx.Int64("user_id", target))
	d.appendAudit(ctx, actor, "approve", fmt.Sprintf("%d", target))
	return nil
}

// ForceRole sets a role without an acting user (operator CLI).
func (d *Directory) ForceRole(ctx context.Context, target int64, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("force role: invalid role %q", role)
	}
	if err := d.store.UpsertUserRole(ctx, target, role, d.now()); err != nil {
		return fmt.Errorf("force role: %w", err)
	}
	d.appendAudit(ctx, 0, "set_role", fmt.Sprintf("%d:%s", target, role))
	return nil
}

// SetProfile replaces the organizational profile of target (operator CLI).
func (d *Directory) SetProfile(ctx context.Context, target int64, p domain.Profile) error {
	if p.ManagerID != nil && *p.ManagerID == target {
		return errors.New("set profile: a user cannot manage themselves")
	}
	ok, err := d.store.UpdateUserProfile(ctx, target, p)
	if err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	if !ok {
		return ErrUnknownUser
	}
	return nil
}

// EnsureSuperAdmins promotes the configured operator ids to active super admins.
func (d *Directory) EnsureSuperAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if err := d.store.UpsertUserRole(ctx, id, domain.RoleSuperAdmin, d.now()); err != nil {
			return fmt.Errorf("bootstrap super admin %d: %w", id, err)
		}
	}
	if len(ids) > 0 {
		d.log.Debug("super admins ensured", logx.Int("count", len(ids)))
	}
	return nil
}

func (d *Directory) appendAudit(ctx context.Context, actor int64, action, target string) {
	if d.audit == nil {
		return
	}
	if err := d.audit.AppendAudit(ctx, storage.AuditEntry{
		At: d.now(), ActorID: actor, Component: "directory", Action: action, Target: target, OK: 1,
	}); err != nil {
		d.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}
