package chunking

import (
	"strings"

	"github.com/tutorstack/backend/pkg/tokens"
)

// Page is one segment of the source text and the minimum splitting unit.
// Spans are contiguous: page i ends exactly where page i+1 starts, and the
// pages together cover the whole document text.
type Page struct {
	Index int
	Start int
	End   int
	Text  string
}

// Blank reports whether the page holds no visible content. Blank pages get
// no topic-detection call and never open a topic boundary.
func (p Page) Blank() bool {
	return strings.TrimSpace(p.Text) == ""
}

// SplitPages segments the document text into pages. Text extracted from
// paginated formats carries form feeds as page separators; when present they
// define the pages. Otherwise paragraphs are grouped into synthetic pages of
// at most maxPageTokens tokens.
func SplitPages(text string, counter tokens.Counter, maxPageTokens int) []Page {
	if text == "" {
		return nil
	}

	if strings.ContainsRune(text, '\f') {
		return splitFormFeedPages(text)
	}
	return groupParagraphPages(text, counter, maxPageTokens)
}

func splitFormFeedPages(text string) []Page {
	var pages []Page
	start := 0
	for start < len(text) {
		end := len(text)
		if idx := strings.IndexByte(text[start:], '\f'); idx >= 0 {
			// The separator belongs to the page it closes so that page
			// spans reconstruct the text exactly.
			end = start + idx + 1
		}
		pages = append(pages, Page{
			Index: len(pages),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		start = end
	}
	return pages
}

func groupParagraphPages(text string, counter tokens.Counter, maxPageTokens int) []Page {
	var pages []Page

	pageStart := 0
	pageTokens := 0
	paraStart := 0

	flush := func(end int) {
		if end <= pageStart {
			return
		}
		pages = append(pages, Page{
			Index: len(pages),
			Start: pageStart,
			End:   end,
			Text:  text[pageStart:end],
		})
		pageStart = end
		pageTokens = 0
	}

	for paraStart < len(text) {
		paraEnd := len(text)
		if idx := strings.Index(text[paraStart:], "\n\n"); idx >= 0 {
			paraEnd = paraStart + idx
			// Trailing blank lines belong to the paragraph they close.
			for paraEnd < len(text) && text[paraEnd] == '\n' {
				paraEnd++
			}
		}

		paraTokens := counter.Count(text[paraStart:paraEnd])
		if pageTokens > 0 && pageTokens+paraTokens > maxPageTokens {
			flush(paraStart)
		}
		pageTokens += paraTokens
		paraStart = paraEnd
	}
	flush(len(text))

	return pages
}
