package snapshot

// Kind tags the attachment carried by a snapshot.
type Kind uint8

const (
	KindNone Kind = iota
	KindPhoto
	KindVideo
	KindDocument
	KindVoice
	KindVideoNote
	KindAudio
	KindSticker
	KindAnimation

	kindCount
)

type kindInfo struct {
	name    string
	method  string // Bot API upload method
	caption bool   // method accepts a caption
	ext     string // file extension for downloaded copies
}

// kindTable is indexed by Kind. Adding a Kind without a row breaks the build (see below).
var kindTable = [...]kindInfo{
	KindNone:      {name: "none"},
	KindPhoto:     {name: "photo", method: "sendPhoto", caption: true, ext: ".jpg"},
	KindVideo:     {name: "video", method: "sendVideo", caption: true, ext: ".mp4"},
	KindDocument:  {name: "document", method: "sendDocument", caption: true},
	KindVoice:     {name: "voice", method: "sendVoice", caption: true, ext: ".ogg"},
	KindVideoNote: {name: "video_note", method: "sendVideoNote", ext: ".mp4"},
	KindAudio:     {name: "audio", method: "sendAudio", caption: true, ext: ".mp3"},
	KindSticker:   {name: "sticker", method: "sendSticker", ext: ".webp"},
	KindAnimation: {name: "animation", method: "sendAnimation", caption: true, ext: ".mp4"},
}

var _ = [1]struct{}{}[len(kindTable)-int(kindCount)]

func (k Kind) info() kindInfo {
	if k >= kindCount {
		return kindTable[KindNone]
	}
	return kindTable[k]
}

// String returns the Bot API name of the kind, which doubles as the multipart field name.
func (k Kind) String() string { return k.info().name }

// Method returns the Bot API method used to upload this kind ("" for KindNone).
func (k Kind) Method() string { return k.info().method }

// Captioned reports whether the upload method accepts a caption.
func (k Kind) Captioned() bool { return k.info().caption }

// Ext is the extension used for a local copy ("" when unknown, as for documents).
func (k Kind) Ext() string { return k.info().ext }

// Deliverable reports whether k is a known media kind.
func (k Kind) Deliverable() bool { return k != KindNone && k < kindCount }

// ParseKind is the inverse of String. Unknown names map to KindNone.
func ParseKind(s string) Kind {
	for i := KindPhoto; i < kindCount; i++ {
		if kindTable[i].name == s {
			return i
		}
	}
	return KindNone
}
