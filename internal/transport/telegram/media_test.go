package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"msgwatch/internal/snapshot"
)

func TestSendableDropsCaptionWhereUnsupported(t *testing.T) {
	v, err := Sendable(snapshot.KindPhoto, tele.File{FileID: "f"}, "cap")
	require.NoError(t, err)
	require.Equal(t, "cap", v.(*tele.Photo).Caption)

	v, err = Sendable(snapshot.KindSticker, tele.File{FileID: "f"}, "cap")
	require.NoError(t, err)
	require.Equal(t, "f", v.(*tele.Sticker).FileID)

	_, err = Sendable(snapshot.KindNone, tele.File{FileID: "f"}, "")
	require.Error(t, err)
}

func TestSendableKeepsLocalFile(t *testing.T) {
	v, err := Sendable(snapshot.KindVoice, tele.FromDisk("/tmp/x.ogg"), "c")
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.ogg", v.(*tele.Voice).FileLocal)
}
