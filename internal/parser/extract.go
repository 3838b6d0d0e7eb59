package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"campusinfo/internal/storage"
)

// minSectionRunes is how much trimmed text <main> or <article> must hold to be
// preferred over the whole body.
const minSectionRunes = 50

// Page is the readable part of a fetched HTML document.
type Page struct {
	Title   string
	Content string
}

// Extract pulls the title and main text out of htmlBody. Unparseable input
// yields an empty Page.
func Extract(htmlBody []byte) Page {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return Page{}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript").Remove()

	text := ""
	for _, sel := range []string{"main", "article"} {
		candidate := strings.TrimSpace(doc.Find(sel).First().Text())
		if utf8.RuneCountInString(candidate) > minSectionRunes {
			text = candidate
			break
		}
	}
	if text == "" {
		doc.Find("header, footer, nav").Remove()
		body := doc.Find("body").First()
		if body.Length() > 0 {
			text = body.Text()
		} else {
			text = doc.Text()
		}
	}

	return Page{
		Title:   collapseSpace(title),
		Content: storage.CapContent(collapseSpace(text)),
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
