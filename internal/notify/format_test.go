package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEditShape(t *testing.T) {
	got := Edit("Team", "Alice", "hello", "hello world")
	want := "✏️ <b>Message edited</b>\n" +
		"💬 Chat: <b>Team</b>\n" +
		"👤 From: <b>Alice</b>\n\n" +
		"📝 <b>Before:</b>\n<pre>hello</pre>\n\n" +
		"📝 <b>After:</b>\n<pre>hello world</pre>"
	require.Equal(t, want, got)
}

func TestDeleteShape(t *testing.T) {
	got := Delete("Team", "Alice", "bye")
	want := "🗑️ <b>Message deleted</b>\n" +
		"💬 Chat: <b>Team</b>\n" +
		"👤 From: <b>Alice</b>\n\n" +
		"📝 <b>Content:</b>\n<pre>bye</pre>"
	require.Equal(t, want, got)
}

func TestEscapesEveryField(t *testing.T) {
	got := Edit("<chat>", "A&B", "<b>x</b>", "1 > 0")
	require.Contains(t, got, "<b>&lt;chat&gt;</b>")
	require.Contains(t, got, "<b>A&amp;B</b>")
	require.Contains(t, got, "<pre>&lt;b&gt;x&lt;/b&gt;</pre>")
	require.Contains(t, got, "<pre>1 &gt; 0</pre>")

	del := Delete("a<b", "c>d", "e&f")
	require.False(t, strings.Contains(del, "a<b"))
	require.Contains(t, del, "<pre>e&amp;f</pre>")
}

func TestEmptyNamesBecomeUnknown(t *testing.T) {
	got := Delete("", "", DeleteMissing)
	require.Contains(t, got, "Chat: <b>?</b>")
	require.Contains(t, got, "From: <b>?</b>")
	require.Contains(t, got, "<pre>[content not in cache]</pre>")
}
