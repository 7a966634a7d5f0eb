// Package notify renders edit and deletion notifications as Telegram HTML.
package notify

import "msgwatch/pkg/tgui"

// Placeholders used when the cache has no prior snapshot.
const (
	EditMissing   = "[content not saved in cache]"
	DeleteMissing = "[content not in cache]"
	UnknownName   = "?"
)

// Edit renders an edit notification. All fields are escaped.
func Edit(scope, sender, before, after string) string {
	return tgui.Lines(
		"✏️ "+tgui.B("Message edited"),
		header(scope, sender),
		"",
		"📝 "+tgui.B("Before:"),
		tgui.Pre(before),
		"",
		"📝 "+tgui.B("After:"),
		tgui.Pre(after),
	).String()
}

// Delete renders a deletion notification. All fields are escaped.
func Delete(scope, sender, content string) string {
	return tgui.Lines(
		"🗑️ "+tgui.B("Message deleted"),
		header(scope, sender),
		"",
		"📝 "+tgui.B("Content:"),
		tgui.Pre(content),
	).String()
}

func header(scope, sender string) tgui.H {
	return tgui.Lines(
		"💬 Chat: "+tgui.B(orUnknown(scope)),
		"👤 From: "+tgui.B(orUnknown(sender)),
	)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownName
	}
	return s
}
