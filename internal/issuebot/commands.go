package issuebot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"issuebot/internal/directory"
	"issuebot/internal/domain"
	"issuebot/internal/issues"
	"issuebot/internal/transport/telegram/router"
	"issuebot/pkg/tgui"
	logx "issuebot/pkg/logx"
)

const (
	promptTitle       = "Send the issue title (3-255 characters)."
	promptDescription = "Now send the description (at least 10 characters)."
	promptResolution  = "Send the resolution for %s (at least 10 characters)."
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	created, err := b.dir.RegisterIfAbsent(ctx, req.From.ID, req.From.FirstName, req.From.Username)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(req.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := "You are already on the list."
	if created {
		text = fmt.Sprintf("Hello %s! You have been added to the broadcast list.", name)
	}
	msg := tgui.New().Line(text)
	if req.Role.Privileged() {
		msg.Markup(menuKeyboard(req.Role))
	}
	return req.Reply(ctx, msg.Build())
}

func (b *Bot) cmdMenu(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, tgui.New().Line("Quick actions are below the input field.").Markup(menuKeyboard(req.Role)).Build())
}

func (b *Bot) cmdHide(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, tgui.New().Line("Keyboard hidden. Send /menu to bring it back.").Markup(tgui.RemoveKeyboard()).Build())
}

func (b *Bot) cmdWhoAmI(ctx context.Context, req *router.Request) error {
	u, ok, err := b.dir.Get(ctx, req.From.ID)
	if err != nil {
		return err
	}
	if !ok {
		return req.ReplyText(ctx, "You are not registered yet. Send /start to join.")
	}
	msg := tgui.New().Title("👤", u.DisplayName()).
		KV("ID", strconv.FormatInt(u.ID, 10)).
		KV("Role", string(u.Role)).
		KV("Status", string(u.Status)).
		KV("Since", u.CreatedAt.Format("2006-01-02"))
	if p := u.Profile; p.Department != "" || p.JobTitle != "" {
		msg.KV("Department", p.Department).KV("Job title", p.JobTitle)
	}
	return req.Reply(ctx, msg.Build())
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	had, err := b.conv.Cancel(ctx, req.From.ID)
	if err != nil {
		return err
	}
	text := "Nothing to cancel."
	if had {
		text = "Cancelled."
	}
	return req.Reply(ctx, tgui.New().Line(text).Markup(menuKeyboard(req.Role)).Build())
}

func (b *Bot) cmdBroadcast(ctx context.Context, req *router.Request) error {
	if err := b.conv.BeginIssue(ctx, req.From.ID); err != nil {
		return err
	}
	return req.Reply(ctx, tgui.New().Title("📢", "New issue").Line(promptTitle).Markup(cancelKeyboard()).Build())
}

func (b *Bot) cmdClose(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.ReplyText(ctx, "Usage: /close ISSUE-007")
	}
	id, err := domain.ParseReference(req.Args[0])
	if err != nil {
		return req.ReplyText(ctx, "Usage: /close ISSUE-007")
	}
	return b.beginClose(ctx, req, id)
}

func (b *Bot) beginClose(ctx context.Context, req *router.Request, id int64) error {
	iss, err := b.conv.BeginClose(ctx, req.From.ID, id)
	if errors.Is(err, issues.ErrNotFoundOrClosed) {
		return req.ReplyText(ctx, notFoundText(id))
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, tgui.New().
		Title("✅", "Close "+iss.Reference()).
		KV("Title", iss.Title).
		Line(fmt.Sprintf(promptResolution, iss.Reference())).
		Markup(cancelKeyboard()).
		Build())
}

func notFoundText(id int64) string {
	return domain.Reference(id) + " was not found or is already closed."
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id != 0
}

func (b *Bot) cmdSetRole(ctx context.Context, req *router.Request) error {
	const usage = "Usage: /setrole <user id> <employee|admin|super_admin>"
	if len(req.Args) != 2 {
		return req.ReplyText(ctx, usage)
	}
	target, ok := parseUserID(req.Args[0])
	if !ok {
		return req.ReplyText(ctx, usage)
	}
	role, err := domain.ParseRole(req.Args[1])
	if err != nil {
		return req.ReplyText(ctx, usage)
	}
	switch err := b.dir.SetRole(ctx, req.From.ID, target, role); {
	case errors.Is(err, directory.ErrUnknownUser):
		return req.ReplyText(ctx, fmt.Sprintf("User %d is not registered.", target))
	case errors.Is(err, directory.ErrForbidden):
		return req.ReplyText(ctx, router.DeniedText)
	case err != nil:
		return err
	}
	req.Logger.Info("role set via chat", logx.Int64("target", target), logx.String("role", string(role)))
	return req.ReplyText(ctx, fmt.Sprintf("User %d is now %s.", target, role))
}

func (b *Bot) cmdApprove(ctx context.Context, req *router.Request) error {
	const usage = "Usage: /approve <user id>"
	if len(req.Args) != 1 {
		return req.ReplyText(ctx, usage)
	}
	target, ok := parseUserID(req.Args[0])
	if !ok {
		return req.ReplyText(ctx, usage)
	}
	switch err := b.dir.Approve(ctx, req.From.ID, target); {
	case errors.Is(err, directory.ErrUnknownUser):
		return req.ReplyText(ctx, fmt.Sprintf("User %d is not registered.", target))
	case errors.Is(err, directory.ErrForbidden):
		return req.ReplyText(ctx, router.DeniedText)
	case err != nil:
		return err
	}
	return req.ReplyText(ctx, fmt.Sprintf("User %d is approved.", target))
}
