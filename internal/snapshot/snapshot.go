package snapshot

import (
	"strconv"
	"strings"
	"time"

	"msgwatch/internal/transport"
)

// Key identifies a cached message. Message IDs are only unique within a scope.
type Key struct {
	ScopeID   int64
	MessageID int
}

// Attachment is an opaque file reference plus its kind.
// Ref is non-empty iff Kind != KindNone; use NewAttachment to keep it that way.
type Attachment struct {
	Ref  string
	Kind Kind
}

func NewAttachment(ref string, kind Kind) Attachment {
	if ref == "" || !kind.Deliverable() {
		return Attachment{}
	}
	return Attachment{Ref: ref, Kind: kind}
}

func (a Attachment) IsZero() bool { return a.Kind == KindNone }

// Snapshot is how a message looked when it was last observed. Never mutated;
// an edit produces a new Snapshot under the same Key.
type Snapshot struct {
	ScopeID    int64
	MessageID  int
	SenderName string
	ScopeName  string
	Text       string
	Timestamp  time.Time
	Attachment Attachment
}

func (s Snapshot) Key() Key { return Key{ScopeID: s.ScopeID, MessageID: s.MessageID} }

// FromMessage builds a snapshot of m. It reports false when m has no chat,
// since such a message cannot be keyed.
func FromMessage(m *transport.Message) (Snapshot, bool) {
	if m == nil || m.Chat == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		ScopeID:    m.Chat.ID,
		MessageID:  m.ID,
		SenderName: SenderName(m.Sender),
		ScopeName:  ScopeName(m.Chat),
		Text:       Describe(m.Content),
		Timestamp:  m.Date,
		Attachment: AttachmentOf(m.Content),
	}, true
}

// AttachmentOf picks the downloadable media of c, in a fixed priority order.
func AttachmentOf(c transport.Content) Attachment {
	switch {
	case c.Photo != nil:
		return NewAttachment(c.Photo.ID, KindPhoto)
	case c.Video != nil:
		return NewAttachment(c.Video.ID, KindVideo)
	case c.Document != nil:
		return NewAttachment(c.Document.ID, KindDocument)
	case c.Voice != nil:
		return NewAttachment(c.Voice.ID, KindVoice)
	case c.VideoNote != nil:
		return NewAttachment(c.VideoNote.ID, KindVideoNote)
	case c.Audio != nil:
		return NewAttachment(c.Audio.ID, KindAudio)
	case c.Sticker != nil:
		return NewAttachment(c.Sticker.ID, KindSticker)
	case c.Animation != nil:
		return NewAttachment(c.Animation.ID, KindAnimation)
	}
	return Attachment{}
}

// SenderName renders a display name: "First Last", then username, then the numeric id.
func SenderName(s *transport.Sender) string {
	if s == nil {
		return "Unknown"
	}
	if s.IsChat {
		if s.Title != "" {
			return s.Title
		}
		return "Channel"
	}
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name != "" {
		return name
	}
	if s.Username != "" {
		return s.Username
	}
	return strconv.FormatInt(s.ID, 10)
}

// ScopeName renders a chat title, the private chat's person name, or the chat id.
func ScopeName(c *transport.Chat) string {
	if c == nil {
		return "?"
	}
	if c.Title != "" {
		return c.Title
	}
	if c.FirstName != "" {
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return strconv.FormatInt(c.ID, 10)
}
