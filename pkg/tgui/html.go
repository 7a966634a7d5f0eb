package tgui

import "strings"

// ParseModeHTML is the parse_mode value for Telegram HTML.
const ParseModeHTML = "HTML"

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
type H string

func (h H) String() string { return string(h) }

// Telegram HTML only requires these three; quotes stay readable.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(escaper.Replace(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }
func Pre(s string) H  { return wrap("pre", Esc(s)) }

// Lines joins parts with newlines. Empty parts produce blank lines.
func Lines(parts ...H) H {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = p.String()
	}
	return H(strings.Join(ss, "\n"))
}
