package issuebot

import (
	"context"
	"fmt"
	"time"

	"issuebot/internal/broadcast"
	"issuebot/pkg/tgui"
)

const digestMax = 15

// SendDigest sends the list of open issues to every admin. Nothing is sent
// when no issue is open.
func (b *Bot) SendDigest(ctx context.Context) (broadcast.Summary, error) {
	open, err := b.issues.ListOpen(ctx, nil)
	if err != nil {
		return broadcast.Summary{}, err
	}
	if len(open) == 0 {
		return broadcast.Summary{Name: "digest"}, nil
	}
	ids, err := b.dir.ListPrivilegedIdentities(ctx)
	if err != nil {
		return broadcast.Summary{}, err
	}

	items := make([]string, 0, min(len(open), digestMax))
	for _, iss := range open[:min(len(open), digestMax)] {
		age := b.now().Sub(iss.CreatedAt).Truncate(time.Minute)
		items = append(items, fmt.Sprintf("%s %s (open %s)", iss.Reference(), tgui.TruncRunes(iss.Title, 60), age))
	}
	msg := tgui.New().Title("🗓", fmt.Sprintf("%d open issue(s)", len(open))).Bullets(items...)
	if len(open) > digestMax {
		msg.Line(fmt.Sprintf("… and %d more. Send /issues for the full list.", len(open)-digestMax))
	}
	m := msg.Build()
	return b.bc.SendTo(ctx, "digest", ids, m.Text, m.Opt), nil
}
