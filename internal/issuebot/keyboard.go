package issuebot

import (
	tele "gopkg.in/telebot.v4"

	"issuebot/internal/conversation"
	"issuebot/internal/domain"
	"issuebot/pkg/tgui"
)

// Reply-keyboard labels. Pressing one sends the label as text; the router
// maps it back to the command.
const (
	btnNewIssue   = "📢 New issue"
	btnOpenIssues = "📋 Open issues"
	btnMyIssues   = "🗂 My issues"
	btnWhoAmI     = "👤 Who am I"
	btnHelp       = "❓ Help"
)

func menuKeyboard(role domain.Role) *tele.ReplyMarkup {
	if role.Privileged() {
		return tgui.ReplyKeyboard(
			[]string{btnNewIssue, btnOpenIssues},
			[]string{btnMyIssues, btnHelp},
		)
	}
	return tgui.ReplyKeyboard([]string{btnWhoAmI, btnHelp})
}

func cancelKeyboard() *tele.ReplyMarkup {
	return tgui.ReplyKeyboard([]string{conversation.CancelLabel})
}
