// Package telegram holds what the telebot source adapter and the Bot API
// delivery channel share.
package telegram

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"msgwatch/internal/snapshot"
)

// Sendable wraps f in the telebot media type for kind. f may be a stored file
// (FileID) or a local one (tele.FromDisk). The caption is dropped for kinds
// that cannot carry one.
func Sendable(kind snapshot.Kind, f tele.File, caption string) (interface{}, error) {
	if !kind.Captioned() {
		caption = ""
	}
	switch kind {
	case snapshot.KindPhoto:
		return &tele.Photo{File: f, Caption: caption}, nil
	case snapshot.KindVideo:
		return &tele.Video{File: f, Caption: caption}, nil
	case snapshot.KindDocument:
		return &tele.Document{File: f, Caption: caption}, nil
	case snapshot.KindVoice:
		return &tele.Voice{File: f, Caption: caption}, nil
	case snapshot.KindVideoNote:
		return &tele.VideoNote{File: f}, nil
	case snapshot.KindAudio:
		return &tele.Audio{File: f, Caption: caption}, nil
	case snapshot.KindSticker:
		return &tele.Sticker{File: f}, nil
	case snapshot.KindAnimation:
		return &tele.Animation{File: f, Caption: caption}, nil
	}
	return nil, fmt.Errorf("unsupported media kind %q", kind.String())
}
