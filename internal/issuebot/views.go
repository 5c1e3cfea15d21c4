package issuebot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"issuebot/internal/broadcast"
	"issuebot/internal/conversation"
	"issuebot/internal/domain"
	"issuebot/internal/issues"
	"issuebot/internal/transport/telegram/router"
	"issuebot/pkg/tgui"
)

const callbackNS = "issue"

const (
	scopeAll  = "all"
	scopeMine = "mine"
)

func validScope(s string) string {
	if s == scopeMine {
		return scopeMine
	}
	return scopeAll
}

// buttons builds issue:* inline buttons and keeps the first callback data
// error; ids and scope names always fit, so an error means a bug.
type buttons struct{ err error }

func (bs *buttons) btn(label, action, payload string) tele.Btn {
	data := tgui.Data(callbackNS, action, payload)
	if err := tgui.CheckData(data); err != nil && bs.err == nil {
		bs.err = fmt.Errorf("%s button: %w", action, err)
	}
	return tgui.Btn(label, data)
}

func (b *Bot) callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Namespace: callbackNS, Action: "view", Access: router.AccessPrivileged, Handle: b.cbView},
		{Namespace: callbackNS, Action: "page", Access: router.AccessPrivileged, Handle: b.cbPage},
		{Namespace: callbackNS, Action: "back", Access: router.AccessPrivileged, Handle: b.cbBack},
		{Namespace: callbackNS, Action: "close", Access: router.AccessPrivileged, Handle: b.cbClose},
	}
}

func (b *Bot) listHandler(scope string) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		msg, err := b.listView(ctx, req.From.ID, scope, 0)
		if err != nil {
			return err
		}
		return req.Reply(ctx, msg)
	}
}

func (b *Bot) listView(ctx context.Context, viewer int64, scope string, page int) (tgui.Message, error) {
	var creator *int64
	title := "Open issues"
	if scope == scopeMine {
		creator = &viewer
		title = "My open issues"
	}
	all, err := b.issues.ListOpen(ctx, creator)
	if err != nil {
		return tgui.Message{}, err
	}

	msg := tgui.New().Title("📋", title)
	if len(all) == 0 {
		return msg.Line("No open issues. 🎉").Build(), nil
	}

	items, page, hasPrev, hasNext := tgui.PaginateSlice(all, page, b.pageSize)
	msg.Line(tgui.PageLabel(page, b.pageSize, len(all)))
	var bs buttons
	kb := tgui.NewInline()
	for _, iss := range items {
		label := iss.Reference() + " · " + tgui.TruncRunes(iss.Title, 40)
		kb.Row(bs.btn(label, "view", fmt.Sprintf("%d.%s", iss.ID, scope)))
	}
	var nav []tele.Btn
	if hasPrev {
		nav = append(nav, bs.btn("◀️ Prev", "page", fmt.Sprintf("%s.%d", scope, page-1)))
	}
	if hasNext {
		nav = append(nav, bs.btn("Next ▶️", "page", fmt.Sprintf("%s.%d", scope, page+1)))
	}
	kb.Row(nav...)
	if bs.err != nil {
		return tgui.Message{}, bs.err
	}
	return msg.Inline(kb).Build(), nil
}

func detailView(iss domain.Issue, scope string) (tgui.Message, error) {
	msg := tgui.New().
		Title("🔎", iss.Reference()).
		KV("Title", iss.Title).
		Block(iss.Description).
		KV("Status", string(iss.Status)).
		KV("Reported", iss.CreatedAt.Format("2006-01-02 15:04"))
	var bs buttons
	kb := tgui.NewInline()
	if iss.Open() {
		kb.Row(
			bs.btn("✅ Close", "close", strconv.FormatInt(iss.ID, 10)),
			bs.btn("⬅️ Back", "back", scope),
		)
	} else {
		msg.KV("Resolution", iss.Resolution)
		kb.Row(bs.btn("⬅️ Back", "back", scope))
	}
	if bs.err != nil {
		return tgui.Message{}, bs.err
	}
	return msg.Inline(kb).Build(), nil
}

// cbView payload: "<id>" or "<id>.<scope>".
func (b *Bot) cbView(ctx context.Context, req *router.Request) error {
	idPart, scope, _ := strings.Cut(req.Payload, ".")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return req.Answer(ctx, "Unknown issue.", false)
	}
	iss, ok, err := b.issues.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return req.Answer(ctx, notFoundText(id), true)
	}
	msg, err := detailView(iss, validScope(scope))
	if err != nil {
		return err
	}
	return req.Edit(ctx, msg)
}

// cbPage payload: "<scope>.<page>".
func (b *Bot) cbPage(ctx context.Context, req *router.Request) error {
	scope, p, _ := strings.Cut(req.Payload, ".")
	page, _ := strconv.Atoi(p)
	msg, err := b.listView(ctx, req.From.ID, validScope(scope), page)
	if err != nil {
		return err
	}
	return req.Edit(ctx, msg)
}

func (b *Bot) cbBack(ctx context.Context, req *router.Request) error {
	msg, err := b.listView(ctx, req.From.ID, validScope(req.Payload), 0)
	if err != nil {
		return err
	}
	return req.Edit(ctx, msg)
}

func (b *Bot) cbClose(ctx context.Context, req *router.Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		return req.Answer(ctx, "Unknown issue.", false)
	}
	_ = req.Answer(ctx, "", false)
	return b.beginClose(ctx, req, id)
}

func deliveryLine(sum broadcast.Summary, err error) string {
	if err != nil {
		return "The announcement could not be sent."
	}
	s := fmt.Sprintf("Announcement delivered to %d of %d users.", sum.Sent, sum.Total)
	if sum.Failed > 0 {
		s += fmt.Sprintf(" %d failed.", sum.Failed)
	}
	return s
}

func invalidText(ve *issues.ValidationError) string {
	return "⚠️ " + strings.ToUpper(ve.Error()[:1]) + ve.Error()[1:] + "."
}

// outcomeMessage renders the reply to one conversation step.
func (b *Bot) outcomeMessage(role domain.Role, res conversation.Result) tgui.Message {
	msg := tgui.New()
	switch res.Outcome {
	case conversation.OutcomeCancelled:
		if res.Prev == conversation.StepIdle {
			msg.Line("Nothing to cancel.")
		} else {
			msg.Line("Cancelled.")
		}
		msg.Markup(menuKeyboard(role))
	case conversation.OutcomeReprompt:
		if res.Invalid != nil {
			msg.Line(invalidText(res.Invalid))
		}
		switch res.Step {
		case conversation.StepAwaitingTitle:
			msg.Line(promptTitle)
		case conversation.StepAwaitingDescription:
			msg.Line(promptDescription)
		case conversation.StepAwaitingResolution:
			msg.Line("Send the resolution (at least 10 characters).")
		}
	case conversation.OutcomeAdvanced:
		msg.Line("Title saved.").Line(promptDescription)
	case conversation.OutcomeCreated:
		msg.Title("✅", res.Issue.Reference()+" created").
			Line(deliveryLine(res.Delivery, res.DeliveryErr)).
			Markup(menuKeyboard(role))
	case conversation.OutcomeClosed:
		msg.Title("✅", res.Issue.Reference()+" closed").
			Line(deliveryLine(res.Delivery, res.DeliveryErr)).
			Markup(menuKeyboard(role))
	case conversation.OutcomeNotFound:
		msg.Line(notFoundText(res.Issue.ID)).Markup(menuKeyboard(role))
	}
	return msg.Build()
}
