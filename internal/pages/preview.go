package pages

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const maxExcerptRunes = 280

var previewBase = &url.URL{Scheme: "file", Path: "/uploads/"}

// extractPreview pulls a title and a short excerpt out of generated markup.
// Anything readability cannot parse yields empty strings.
func extractPreview(html string) (title, excerpt string) {
	if strings.TrimSpace(html) == "" {
		return "", ""
	}
	article, err := readability.FromReader(strings.NewReader(html), previewBase)
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(article.Title)
	excerpt = strings.Join(strings.Fields(article.Excerpt), " ")
	if excerpt == "" {
		excerpt = strings.Join(strings.Fields(article.TextContent), " ")
	}
	return title, truncateRunes(excerpt, maxExcerptRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
