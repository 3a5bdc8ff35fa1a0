package telegram

import (
	"html"
	"strings"

	"turing-game/internal/game"
)

const parseModeHTML = "HTML"

// renderAnnouncement formats an announcement for Telegram. With HTML parse
// mode every user-provided piece is escaped; otherwise plain text is produced.
func renderAnnouncement(a game.Announcement, parseMode string) string {
	esc := func(s string) string { return s }
	bold := func(s string) string { return s }
	italic := func(s string) string { return s }
	if strings.EqualFold(parseMode, parseModeHTML) {
		esc = html.EscapeString
		bold = func(s string) string { return "<b>" + s + "</b>" }
		italic = func(s string) string { return "<i>" + s + "</i>" }
	}

	var b strings.Builder
	b.WriteString(bold(esc(a.Title)))
	if a.Description != "" {
		b.WriteString("\n")
		b.WriteString(esc(a.Description))
	}
	if len(a.Fields) > 0 {
		b.WriteString("\n")
	}
	for _, f := range a.Fields {
		b.WriteString("\n")
		b.WriteString(bold(esc(f.Label) + ":"))
		b.WriteString(" ")
		b.WriteString(esc(f.Text))
	}
	if a.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(italic(esc(a.Footer)))
	}
	return b.String()
}
