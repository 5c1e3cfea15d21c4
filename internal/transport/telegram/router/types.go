package router

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"issuebot/internal/domain"
	kit "issuebot/internal/transport"
	"issuebot/pkg/tgui"
	logx "issuebot/pkg/logx"
)

// Fixed replies.
const (
	DeniedText  = "⛔ You are not allowed to do that."
	UnknownText = "Unrecognized command. Send /help to see what I can do."
	FailureText = "⚠️ Something went wrong, please try again later."
	BusyText    = "⏳ Busy, please try again in a moment."
)

// ErrNotHandled is returned by the fallback when it did not consume the text.
var ErrNotHandled = errors.New("not handled")

type Access int

const (
	AccessEveryone Access = iota
	// AccessPrivileged: admin or super admin.
	AccessPrivileged
	AccessSuperAdmin
)

// Allows reports whether a user with role may use something gated by a.
func (a Access) Allows(role domain.Role) bool {
	switch a {
	case AccessEveryone:
		return true
	case AccessPrivileged:
		return role.Privileged()
	case AccessSuperAdmin:
		return role == domain.RoleSuperAdmin
	}
	return false
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name    string   // without the leading slash
	Aliases []string // extra slash names, e.g. "new_issue"
	// Buttons are reply-keyboard labels that trigger this command as plain text.
	Buttons     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	// Hidden commands work but are left out of /help and the menu.
	Hidden bool
	Handle HandlerFunc
}

// CallbackRoute handles inline-button data "namespace:action:payload".
type CallbackRoute struct {
	Namespace string
	Action    string
	Access    Access
	Timeout   time.Duration
	Handle    HandlerFunc
}

// RolePort is the directory view the router needs.
type RolePort interface {
	Role(ctx context.Context, id int64) (domain.Role, bool, error)
	TouchActivity(ctx context.Context, id int64) error
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	From    kit.Sender
	Command string   // command name, "cb:<ns>:<action>" or "text"
	Args    []string // tokens after the command word
	Payload string   // callback payload
	Text    string   // raw message text (trimmed)
	ReqID   string

	Role  domain.Role
	Known bool // sender is a registered user

	Adapter kit.Adapter
	Logger  logx.Logger

	answered atomic.Bool
}

// Reply sends m to the request chat.
func (r *Request) Reply(ctx context.Context, m tgui.Message) error {
	_, err := m.Send(ctx, r.Adapter, r.Chat)
	return err
}

// ReplyText sends plain text to the request chat.
func (r *Request) ReplyText(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Edit replaces the message the callback button belongs to.
// For message updates it sends a new message instead.
func (r *Request) Edit(ctx context.Context, m tgui.Message) error {
	if cb := r.Update.Callback; cb != nil && cb.MessageID != 0 {
		return m.Edit(ctx, r.Adapter, kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID})
	}
	return r.Reply(ctx, m)
}

// Answer acknowledges the callback with an optional toast. Only the first
// answer is sent; later calls are no-ops.
func (r *Request) Answer(ctx context.Context, text string, alert bool) error {
	cb := r.Update.Callback
	if cb == nil || !r.answered.CompareAndSwap(false, true) {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, cb.ID, text, alert)
}

func (r *Request) IsCallback() bool { return r.Update.Callback != nil }
