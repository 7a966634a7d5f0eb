package adapter

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"msgwatch/internal/snapshot"
	"msgwatch/internal/transport"
	"msgwatch/internal/transport/telegram"
)

// textLimit stays under Telegram's 4096-character message cap.
const textLimit = 4000

func sendOptions(to transport.ChatTarget, opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
}

// SendText sends text, split into several messages when it is too long. The
// returned ref points at the first chunk.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	so := sendOptions(to, opt)
	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, string(so.ParseMode)) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			if i > 0 {
				return first, fmt.Errorf("chunk %d: %w", i+1, err)
			}
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendMedia re-sends a stored file by reference. The caption is dropped for
// kinds that cannot carry one.
func (a *Adapter) SendMedia(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	what, err := telegram.Sendable(snapshot.ParseKind(media.Kind), tele.File{FileID: media.FileID}, caption)
	if err != nil {
		return transport.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(to, opt))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

// Download saves the file behind fileID to localPath.
func (a *Adapter) Download(ctx context.Context, fileID, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("empty file id")
	}
	return a.bot.Download(&tele.File{FileID: fileID}, localPath)
}

// splitText cuts s into chunks of at most limit runes. It cuts after a newline
// when one falls in the last two thirds of the window and, in HTML mode, never
// inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, string(tele.ModeHTML))

	var out []string
	for len(rs) > 0 {
		if len(rs) <= limit {
			out = append(out, string(rs))
			break
		}
		end := limit
		for i := limit - 1; i >= limit/3; i-- {
			if rs[i] == '\n' {
				end = i + 1
				break
			}
		}
		if html {
			if open := lastIndex(rs[:end], '<'); open > 0 && open > lastIndex(rs[:end], '>') {
				end = open
			}
		}
		if chunk := strings.TrimRight(string(rs[:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		rs = rs[end:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	return out
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
