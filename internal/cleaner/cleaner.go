package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Cleaner struct{}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// CleanHTML reduces an HTML page to readable text: script/style and obvious
// chrome are dropped wholesale, remaining tags are stripped, whitespace is
// collapsed.
func (c *Cleaner) CleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stripTags(html)
	}
	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()

	var blocks []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 0 {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) > 0 {
		return strings.Join(blocks, "\n\n")
	}

	bodyText := strings.TrimSpace(doc.Find("body").Text())
	if len(bodyText) > 0 {
		return collapseWhitespace(bodyText)
	}

	return collapseWhitespace(doc.Text())
}

// ExtractFenced returns the contents of the first fenced code block in a model
// response, or the trimmed response itself when no fence is present. Used as
// the second stage of JSON parsing when direct unmarshalling fails.
func (c *Cleaner) ExtractFenced(response string) string {
	if !strings.Contains(response, "```") {
		return strings.TrimSpace(response)
	}

	start := strings.Index(response, "```")
	rest := response[start+3:]
	// Skip a language tag like ```json on the opening fence.
	if nl := strings.Index(rest, "\n"); nl != -1 && !strings.Contains(rest[:nl], "{") {
		rest = rest[nl+1:]
	}

	end := strings.LastIndex(rest, "```")
	if end > 0 {
		return strings.TrimSpace(rest[:end])
	}

	return strings.TrimSpace(rest)
}

func stripTags(html string) string {
	re := regexp.MustCompile("<[^>]*>")
	return collapseWhitespace(re.ReplaceAllString(html, " "))
}

func collapseWhitespace(text string) string {
	re := regexp.MustCompile(`\s+`)
	return strings.TrimSpace(re.ReplaceAllString(text, " "))
}
