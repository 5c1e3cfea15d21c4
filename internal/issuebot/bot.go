// Package issuebot holds the chat handlers: it glues the router to the user
// directory, the issue service, the conversation controller and the
// broadcast dispatcher.
package issuebot

import (
	"context"
	"errors"
	"time"

	"issuebot/internal/broadcast"
	"issuebot/internal/conversation"
	"issuebot/internal/directory"
	"issuebot/internal/issues"
	"issuebot/internal/transport/telegram/router"
	logx "issuebot/pkg/logx"
)

const defaultPageSize = 5

// Bot owns no state of its own; everything lives in the services.
type Bot struct {
	dir    *directory.Directory
	issues *issues.Service
	conv   *conversation.Controller
	bc     *broadcast.Dispatcher
	log    logx.Logger

	pageSize int
	now      func() time.Time
}

type Deps struct {
	Directory    *directory.Directory
	Issues       *issues.Service
	Conversation *conversation.Controller
	Broadcast    *broadcast.Dispatcher
	Logger       logx.Logger
}

type Option func(*Bot)

// WithPageSize sets how many issues one list page shows.
func WithPageSize(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

func New(d Deps, opts ...Option) *Bot {
	b := &Bot{
		dir:      d.Directory,
		issues:   d.Issues,
		conv:     d.Conversation,
		bc:       d.Broadcast,
		log:      d.Logger.With(logx.String("comp", "issuebot")),
		pageSize: defaultPageSize,
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register installs the commands, callbacks and the conversation fallback.
func (b *Bot) Register(m *router.CommandManager) {
	m.SetRegistry(b.commands(m), b.callbacks())
	m.SetFallback(b.onText)
}

func (b *Bot) commands(m *router.CommandManager) []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "join the announcement list",
			Access:      router.AccessEveryone,
			Handle:      b.cmdStart,
		},
		{
			Name:        "help",
			Buttons:     []string{btnHelp},
			Description: "show what I can do",
			Usage:       "/help [command]",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, m.Help(req.Role, req.Args))
			},
		},
		{
			Name:        "menu",
			Description: "show the quick-action keyboard",
			Access:      router.AccessEveryone,
			Handle:      b.cmdMenu,
		},
		{
			Name:        "hide",
			Description: "hide the quick-action keyboard",
			Access:      router.AccessEveryone,
			Handle:      b.cmdHide,
		},
		{
			Name:        "whoami",
			Buttons:     []string{btnWhoAmI},
			Description: "show your id and role",
			Access:      router.AccessEveryone,
			Handle:      b.cmdWhoAmI,
		},
		{
			Name:        "cancel",
			Buttons:     []string{conversation.CancelLabel},
			Description: "abort the current step",
			Access:      router.AccessEveryone,
			Handle:      b.cmdCancel,
		},
		{
			Name:        "broadcast",
			Aliases:     []string{"new_issue", "newissue"},
			Buttons:     []string{btnNewIssue},
			Description: "report a new issue to everyone",
			Access:      router.AccessPrivileged,
			Handle:      b.cmdBroadcast,
		},
		{
			Name:        "issues",
			Buttons:     []string{btnOpenIssues},
			Description: "list open issues",
			Access:      router.AccessPrivileged,
			Handle:      b.listHandler(scopeAll),
		},
		{
			Name:        "myissues",
			Aliases:     []string{"my_issues"},
			Buttons:     []string{btnMyIssues},
			Description: "list open issues you reported",
			Access:      router.AccessPrivileged,
			Handle:      b.listHandler(scopeMine),
		},
		{
			Name:        "close",
			Description: "resolve an issue",
			Usage:       "/close ISSUE-007",
			Access:      router.AccessPrivileged,
			Handle:      b.cmdClose,
		},
		{
			Name:        "setrole",
			Description: "change a user's role",
			Usage:       "/setrole <user id> <employee|admin|super_admin>",
			Access:      router.AccessSuperAdmin,
			Handle:      b.cmdSetRole,
		},
		{
			Name:        "approve",
			Description: "approve a pending user",
			Usage:       "/approve <user id>",
			Access:      router.AccessSuperAdmin,
			Handle:      b.cmdApprove,
		},
	}
}

// onText feeds free text into the sender's conversation.
func (b *Bot) onText(ctx context.Context, req *router.Request) error {
	// Only admins ever have a pending conversation.
	if !req.Role.Privileged() {
		return router.ErrNotHandled
	}
	// Registered commands never get here; any other text, slashes included,
	// belongs to the pending step.

	res, err := b.conv.HandleText(ctx, req.From.ID, req.Text)
	if errors.Is(err, conversation.ErrStateChanged) {
		return req.ReplyText(ctx, "That step was already handled.")
	}
	if err != nil {
		return err
	}
	if res.Outcome == conversation.OutcomeIdle {
		return router.ErrNotHandled
	}
	return req.Reply(ctx, b.outcomeMessage(req.Role, res))
}
