package snapshot

import (
	"strings"

	"msgwatch/internal/transport"
	"msgwatch/pkg/tgui"
)

const (
	MaxTextRunes    = 500
	MaxCaptionRunes = 300

	EmptyMessage = "[empty message]"
	partSep      = " | "
)

// Describe renders a lossy, human-readable one-liner of c.
func Describe(c transport.Content) string {
	parts := make([]string, 0, 3)

	if c.Text != "" {
		parts = append(parts, strings.ReplaceAll(tgui.TruncRunes(c.Text, MaxTextRunes), "\n", " "))
	}
	if c.Caption != "" {
		parts = append(parts, "[caption: "+tgui.TruncRunes(c.Caption, MaxCaptionRunes)+"]")
	}
	if c.Photo != nil {
		parts = append(parts, "[📷 Photo]")
	}
	if c.Video != nil {
		parts = append(parts, "[🎬 Video]")
	}
	if c.VideoNote != nil {
		parts = append(parts, "[📹 Video message]")
	}
	if c.Voice != nil {
		parts = append(parts, "[🎤 Voice]")
	}
	if c.Audio != nil {
		parts = append(parts, "[🎵 "+orDefault(c.Audio.Title, "Audio")+"]")
	}
	if c.Document != nil {
		parts = append(parts, "[📎 "+orDefault(c.Document.FileName, "Document")+"]")
	}
	if c.Sticker != nil {
		parts = append(parts, strings.TrimRight("[Sticker "+c.Sticker.Emoji, " ")+"]")
	}
	if c.Animation != nil {
		parts = append(parts, "[GIF]")
	}
	if c.Poll != nil {
		parts = append(parts, "[Poll: "+c.Poll.Question+"]")
	}
	if c.Contact != nil {
		parts = append(parts, "[Contact: "+c.Contact.FirstName+"]")
	}
	if c.Location != nil {
		parts = append(parts, "[📍 Location]")
	}
	if c.Venue != nil {
		parts = append(parts, "[📍 Venue: "+c.Venue.Title+"]")
	}
	if c.Dice != nil {
		parts = append(parts, "[Dice: "+c.Dice.Emoji+"]")
	}

	if len(parts) == 0 {
		return EmptyMessage
	}
	return strings.Join(parts, partSep)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
