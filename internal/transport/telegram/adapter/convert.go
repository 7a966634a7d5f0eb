package adapter

import (
	tele "gopkg.in/telebot.v4"

	"msgwatch/internal/transport"
)

func convertMessage(m *tele.Message, isSelf func(int64) bool) transport.Message {
	out := transport.Message{
		ID:      m.ID,
		Chat:    convertChat(m.Chat),
		Date:    m.Time(),
		Content: convertContent(m),
	}
	switch {
	case m.Sender != nil:
		out.Sender = &transport.Sender{
			ID:        m.Sender.ID,
			FirstName: m.Sender.FirstName,
			LastName:  m.Sender.LastName,
			Username:  m.Sender.Username,
		}
		out.Outgoing = isSelf != nil && isSelf(m.Sender.ID)
	case m.SenderChat != nil:
		out.Sender = &transport.Sender{ID: m.SenderChat.ID, IsChat: true, Title: m.SenderChat.Title}
	}
	return out
}

func convertChat(c *tele.Chat) *transport.Chat {
	if c == nil {
		return nil
	}
	return &transport.Chat{ID: c.ID, Title: c.Title, FirstName: c.FirstName, LastName: c.LastName}
}

// convertDeleted builds the deletion batch. chat may be nil.
func convertDeleted(chat *tele.Chat, ids []int) []transport.Message {
	out := make([]transport.Message, 0, len(ids))
	c := convertChat(chat)
	for _, id := range ids {
		out = append(out, transport.Message{ID: id, Chat: c})
	}
	return out
}

func file(id string) *transport.File {
	if id == "" {
		return nil
	}
	return &transport.File{ID: id}
}

func convertContent(m *tele.Message) transport.Content {
	c := transport.Content{Text: m.Text, Caption: m.Caption}
	if m.Photo != nil {
		c.Photo = file(m.Photo.FileID)
	}
	if m.Video != nil {
		c.Video = file(m.Video.FileID)
	}
	if m.VideoNote != nil {
		c.VideoNote = file(m.VideoNote.FileID)
	}
	if m.Voice != nil {
		c.Voice = file(m.Voice.FileID)
	}
	if m.Animation != nil {
		c.Animation = file(m.Animation.FileID)
	}
	if m.Audio != nil {
		c.Audio = &transport.Audio{File: transport.File{ID: m.Audio.FileID}, Title: m.Audio.Title}
	}
	// The Bot API repeats an animation as a document; only the animation counts.
	if m.Document != nil && m.Animation == nil {
		c.Document = &transport.Document{File: transport.File{ID: m.Document.FileID}, FileName: m.Document.FileName}
	}
	if m.Sticker != nil {
		c.Sticker = &transport.Sticker{File: transport.File{ID: m.Sticker.FileID}, Emoji: m.Sticker.Emoji}
	}
	if m.Poll != nil {
		c.Poll = &transport.Poll{Question: m.Poll.Question}
	}
	if m.Contact != nil {
		c.Contact = &transport.Contact{FirstName: m.Contact.FirstName}
	}
	if m.Location != nil {
		c.Location = &transport.Location{Lat: float64(m.Location.Lat), Lng: float64(m.Location.Lng)}
	}
	if m.Venue != nil {
		c.Venue = &transport.Venue{Title: m.Venue.Title}
	}
	if m.Dice != nil {
		c.Dice = &transport.Dice{Emoji: string(m.Dice.Type), Value: m.Dice.Value}
	}
	return c
}
