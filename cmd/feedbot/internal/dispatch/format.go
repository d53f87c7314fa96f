// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package dispatch

import (
	"cmp"
	"html"
	"strings"
	"unicode/utf8"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/i18n"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/telegram"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// SummaryLength is the maximum length of a summary in a message, in runes.
const SummaryLength = 300

const ellipsis = "..."

var stripTags = bluemonday.StrictPolicy()

// PlainText converts an HTML fragment to plain text with collapsed
// whitespace.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	text := s
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
		text = doc.Text()
	}
	return strings.Join(strings.Fields(text), " ")
}

// Truncate shortens s to n runes, adding an ellipsis if anything was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 0 {
		return ellipsis
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimRightFunc(s[:pos], isSpace) + ellipsis
		}
		i++
	}
	return s
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }

// sanitizeAnalysis removes any markup from a generated commentary. The result
// is plain text.
func sanitizeAnalysis(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(stripTags.Sanitize(s))), " ")
}

type message struct {
	lang     string
	source   string
	title    string
	summary  string
	link     string
	analysis string
}

func (m *message) render() string {
	var sb strings.Builder
	esc := html.EscapeString

	sb.WriteString("<b>" + esc(i18n.T(m.lang, i18n.MsgHeader)) + "</b>\n\n")
	sb.WriteString("📰 <b>" + esc(i18n.T(m.lang, i18n.MsgSource)) + ":</b> " + esc(m.source) + "\n")
	sb.WriteString("📝 <b>" + esc(i18n.T(m.lang, i18n.MsgTitle)) + ":</b> " + esc(m.title) + "\n\n")
	summary := cmp.Or(m.summary, i18n.T(m.lang, i18n.MsgNoSummary))
	sb.WriteString("📄 <b>" + esc(i18n.T(m.lang, i18n.MsgSummary)) + ":</b> " + esc(summary) + "\n\n")
	if m.analysis != "" {
		sb.WriteString("💡 <b>" + esc(i18n.T(m.lang, i18n.MsgAnalysis)) + ":</b> " + esc(m.analysis) + "\n\n")
	}
	if m.link != "" {
		sb.WriteString(`🔗 <a href="` + esc(m.link) + `">` + esc(i18n.T(m.lang, i18n.MsgReadMore)) + "</a>")
	}
	return strings.TrimSpace(sb.String())
}

// Format renders an item as an HTML message in the given language. The result
// is never longer than [telegram.MaxMessageLength] runes.
func Format(lang string, it *news.Item, analysis string) string {
	m := &message{
		lang:     lang,
		source:   it.SourceName,
		title:    cmp.Or(it.Title, it.Link),
		summary:  Truncate(PlainText(it.SummaryRaw), SummaryLength),
		link:     it.Link,
		analysis: sanitizeAnalysis(analysis),
	}

	text := m.render()
	// Shrink the free-form parts until the message fits, starting with the
	// least important one.
	for {
		over := utf8.RuneCountInString(text) - telegram.MaxMessageLength
		if over <= 0 {
			return text
		}
		switch {
		case m.analysis != "":
			m.analysis = shrink(m.analysis, over)
		case m.summary != "":
			m.summary = shrink(m.summary, over)
		case utf8.RuneCountInString(m.title) > len(ellipsis):
			m.title = Truncate(m.title, max(utf8.RuneCountInString(m.title)-over-len(ellipsis), 0))
		default:
			// Only a huge link or source is left. Drop the link.
			if m.link == "" {
				return Truncate(text, telegram.MaxMessageLength-len(ellipsis))
			}
			m.link = ""
		}
		text = m.render()
	}
}

// shrink cuts over runes off s, or returns an empty string if nothing
// meaningful is left.
func shrink(s string, over int) string {
	keep := utf8.RuneCountInString(s) - over - len(ellipsis)
	if keep <= 0 {
		return ""
	}
	return Truncate(s, keep)
}
