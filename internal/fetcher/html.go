package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText extracts plain text from an HTML fragment. Feed descriptions
// frequently arrive as HTML; the pipeline stores plain text bodies.
func htmlToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Text()), " "))
}
