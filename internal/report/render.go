package report

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"msgwatch/internal/reconcile"
	"msgwatch/internal/storage"
	"msgwatch/pkg/tgui"
)

// topScopes bounds the per-scope listing.
const topScopes = 5

// Summary is everything a stats report shows. Counts and Recent are optional.
type Summary struct {
	Title  string
	Stats  reconcile.Stats
	Counts map[int64]int
	Recent []storage.JournalEntry
	Loc    *time.Location
}

// Render formats s as Telegram HTML.
func Render(s Summary) string {
	loc := s.Loc
	if loc == nil {
		loc = time.Local
	}
	st := s.Stats
	title := s.Title
	if title == "" {
		title = "msgwatch stats"
	}

	lines := []tgui.H{
		tgui.B(title),
		tgui.H(fmt.Sprintf("Cached: %d in %d scopes (cap %d per scope, evicted %d)",
			st.Cache.Entries, st.Cache.Scopes, st.Cache.MaxPerScope, st.Cache.Evicted)),
		tgui.H(fmt.Sprintf("Seen: %d, ignored: %d", st.Seen, st.Ignored)),
		tgui.H(fmt.Sprintf("Edits: %d, deletes: %d, cache misses: %d", st.Edits, st.Deletes, st.Misses)),
		tgui.H(fmt.Sprintf("Delivered: %d, failed: %d", st.Delivered, st.Failed)),
	}
	if st.Panics > 0 {
		lines = append(lines, tgui.H(fmt.Sprintf("Handler panics: %d", st.Panics)))
	}
	last := "never"
	if !st.LastEvent.IsZero() {
		last = st.LastEvent.In(loc).Format("2006-01-02 15:04:05")
	}
	lines = append(lines, tgui.H("Last event: ")+tgui.Esc(last))

	if len(s.Counts) > 0 {
		lines = append(lines, "", tgui.B("Busiest scopes"))
		for _, sc := range busiest(s.Counts, topScopes) {
			lines = append(lines, tgui.Code(strconv.FormatInt(sc.id, 10))+tgui.H(fmt.Sprintf(": %d", sc.n)))
		}
	}

	if len(s.Recent) > 0 {
		lines = append(lines, "", tgui.B("Recent notifications"))
		for _, e := range s.Recent {
			lines = append(lines, journalLine(e, loc))
		}
	}
	return tgui.Lines(lines...).String()
}

func journalLine(e storage.JournalEntry, loc *time.Location) tgui.H {
	hit := "miss"
	if e.CacheHit {
		hit = "hit"
	}
	status := "✓ " + e.Path
	if !e.Delivered {
		status = "✗ failed"
	}
	line := fmt.Sprintf("%s %s %s / %s (%s", e.At.In(loc).Format("01-02 15:04"), e.Event, e.ScopeName, e.SenderName, hit)
	if e.Media != "" {
		line += ", " + e.Media
	}
	return tgui.Esc(line + ") " + status)
}

type scopeCount struct {
	id int64
	n  int
}

func busiest(counts map[int64]int, limit int) []scopeCount {
	out := make([]scopeCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, scopeCount{id: id, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].id < out[j].id
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
