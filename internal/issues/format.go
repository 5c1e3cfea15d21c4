package issues

import (
	"issuebot/internal/domain"
	"issuebot/pkg/tgui"
)

const timeLayout = "2006-01-02 15:04 MST"

// NewIssueAnnouncement is broadcast to every user when an issue is created.
func NewIssueAnnouncement(iss domain.Issue) tgui.Message {
	return tgui.New().
		Title("📢", "New issue "+iss.Reference()).
		KV("Title", iss.Title).
		Block(iss.Description).
		KV("Reported", iss.CreatedAt.Format(timeLayout)).
		Build()
}

// ResolvedAnnouncement is broadcast to every user when an issue is closed.
func ResolvedAnnouncement(iss domain.Issue) tgui.Message {
	return tgui.New().
		Title("✅", "Resolved "+iss.Reference()).
		KV("Title", iss.Title).
		KV("Resolution", iss.Resolution).
		KV("Closed", iss.ClosedAt.Format(timeLayout)).
		Build()
}
