package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateObserved UpdateKind = "observed"
	UpdateEdited   UpdateKind = "edited"
	UpdateDeleted  UpdateKind = "deleted"
	UpdateCommand  UpdateKind = "command"
)

// Update is one event from the source transport.
//
// Observed/Edited carry Message; Deleted carries the batch in Deleted;
// Command carries Command.
type Update struct {
	Kind    UpdateKind
	Message *Message
	Deleted []Message
	Command *Command
}

// Message is a transport-neutral view of a chat message.
//
// Chat and Sender are nil when the transport cannot attribute the message
// (deletion events in particular may carry nothing but an ID).
type Message struct {
	ID       int
	Chat     *Chat
	Sender   *Sender
	Outgoing bool
	Date     time.Time
	Content  Content
}

type Chat struct {
	ID        int64
	Title     string
	FirstName string
	LastName  string
}

// Sender is either a user or, for channel/anonymous admin posts, a chat (IsChat=true).
type Sender struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsChat    bool
	Title     string
}

// Content lists the structured fields msgwatch can describe.
type Content struct {
	Text      string
	Caption   string
	Photo     *File
	Video     *File
	VideoNote *File
	Voice     *File
	Animation *File
	Audio     *Audio
	Document  *Document
	Sticker   *Sticker
	Poll      *Poll
	Contact   *Contact
	Location  *Location
	Venue     *Venue
	Dice      *Dice
}

// File is an opaque, transport-specific reference to a stored binary.
type File struct {
	ID string
}

type Audio struct {
	File
	Title string
}

type Document struct {
	File
	FileName string
}

type Sticker struct {
	File
	Emoji string
}

type Poll struct {
	Question string
}

type Contact struct {
	FirstName string
}

type Location struct {
	Lat float64
	Lng float64
}

type Venue struct {
	Title string
}

type Dice struct {
	Emoji string
	Value int
}

type Command struct {
	Name   string // without leading slash, lowercased
	Args   string
	ChatID int64
	FromID int64
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// MediaRef identifies a stored file by reference plus the Bot API kind name
// ("photo", "video", ...).
type MediaRef struct {
	FileID string
	Kind   string
}

// Adapter is the source transport: it streams updates and exposes the
// operations msgwatch needs for self-delivery.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, media MediaRef, caption string, opt *SendOptions) (MessageRef, error)
	Download(ctx context.Context, fileID, localPath string) error
}
