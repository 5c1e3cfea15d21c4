package router

import (
	"sort"
	"strings"

	"issuebot/internal/domain"
	"issuebot/pkg/tgui"
)

// Help renders /help for role. With args it shows one command in detail.
func (m *CommandManager) Help(role domain.Role, args []string) tgui.Message {
	m.mu.RLock()
	cmds := append([]Command(nil), m.cmds...)
	byName := m.byName
	m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args[0]), "/"))
		if c, ok := byName[name]; ok && c.Access.Allows(role) {
			return helpCommand(*c)
		}
		return tgui.New().Title("❓", "Unknown command").
			RawLine(tgui.H("Send "+tgui.Code("/help").String()+" for the list.")).Build()
	}

	visible := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Hidden || !c.Access.Allows(role) {
			continue
		}
		visible = append(visible, c)
	}
	// Everyone's commands first, then the gated ones; alphabetical inside.
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].Access != visible[j].Access {
			return visible[i].Access < visible[j].Access
		}
		return visible[i].Name < visible[j].Name
	})

	b := tgui.New().Title("📚", "Commands")
	for _, c := range visible {
		line := "• " + tgui.Code("/"+c.Name).String()
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + tgui.Esc(d).String()
		}
		if c.Access != AccessEveryone {
			line = "• 🔒" + strings.TrimPrefix(line, "•")
		}
		b.RawLine(tgui.H(line))
	}
	b.Blank().RawLine(tgui.H("Send " + tgui.Code("/help <command>").String() + " for details."))
	return b.Build()
}

func helpCommand(c Command) tgui.Message {
	b := tgui.New().Title("📚", "/"+c.Name)
	if d := strings.TrimSpace(c.Description); d != "" {
		b.Line(d)
	}
	switch c.Access {
	case AccessPrivileged:
		b.RawLine(tgui.I("🔒 admins only"))
	case AccessSuperAdmin:
		b.RawLine(tgui.I("🔒 super admins only"))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		b.Blank().RawLine(tgui.B("Usage")).RawLine(tgui.Code(u))
	}
	if len(c.Aliases) > 0 || len(c.Buttons) > 0 {
		b.Blank().RawLine(tgui.B("Shortcuts"))
		for _, a := range c.Aliases {
			b.RawLine(tgui.H("• " + tgui.Code("/"+a).String()))
		}
		for _, btn := range c.Buttons {
			b.RawLine(tgui.H("• button " + tgui.Esc(btn).String()))
		}
	}
	return b.Build()
}
