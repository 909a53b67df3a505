package parser

import (
	stdhtml "html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/asergian/beacon-sub001/internal/utils"
)

const blockSelectors = "p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre, table, ul, ol, section, article"

// htmlToText reduces an HTML body to readable text. Block elements end a line, scripts and styles are
// dropped.
func htmlToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return utils.CollapseWhitespace(html)
	}

	doc.Find("script, style, head, noscript, title").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		if strings.HasPrefix(href, "http") && text != "" && text != href {
			s.AppendHtml(" (" + stdhtml.EscapeString(href) + ")")
		}
	})

	return utils.CollapseWhitespace(doc.Text())
}

