package chunking

import (
	"strings"
	"testing"
)

func TestSplitPagesFormFeed(t *testing.T) {
	text := "first page\ftwo words here\fthird"
	pages := SplitPages(text, wordCounter{}, 400)

	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if !strings.HasSuffix(pages[0].Text, "\f") {
		t.Error("separator should close the first page")
	}

	var rebuilt strings.Builder
	for i, page := range pages {
		if page.Index != i {
			t.Errorf("page %d: index %d", i, page.Index)
		}
		if page.Text != text[page.Start:page.End] {
			t.Errorf("page %d: text does not match its span", i)
		}
		rebuilt.WriteString(page.Text)
	}
	if rebuilt.String() != text {
		t.Error("page spans do not reconstruct the text")
	}
}

func TestSplitPagesParagraphGrouping(t *testing.T) {
	paras := []string{
		repeatWords("one", 30),
		repeatWords("two", 30),
		repeatWords("three", 30),
		repeatWords("four", 30),
	}
	text := strings.Join(paras, "\n\n")
	pages := SplitPages(text, wordCounter{}, 70)

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages of two paragraphs each, got %d", len(pages))
	}
	for i, page := range pages {
		if n := (wordCounter{}).Count(page.Text); n > 70 {
			t.Errorf("page %d: %d tokens over the cap", i, n)
		}
	}

	var rebuilt strings.Builder
	for _, page := range pages {
		rebuilt.WriteString(page.Text)
	}
	if rebuilt.String() != text {
		t.Error("page spans do not reconstruct the text")
	}
}

func TestSplitPagesOversizedParagraph(t *testing.T) {
	text := repeatWords("long", 200)
	pages := SplitPages(text, wordCounter{}, 50)

	if len(pages) != 1 {
		t.Fatalf("an indivisible paragraph must stay one page, got %d pages", len(pages))
	}
	if pages[0].Text != text {
		t.Error("page text altered")
	}
}

func TestSplitPagesEmpty(t *testing.T) {
	if pages := SplitPages("", wordCounter{}, 50); pages != nil {
		t.Errorf("expected nil for empty text, got %v", pages)
	}
}

func TestPageBlank(t *testing.T) {
	blank := Page{Text: " \n\f \t"}
	if !blank.Blank() {
		t.Error("whitespace-only page should be blank")
	}
	if (Page{Text: "word"}).Blank() {
		t.Error("page with content reported blank")
	}
}
