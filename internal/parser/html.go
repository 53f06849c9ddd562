package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRun = regexp.MustCompile(`[^\S\n]+`)
	// zero-width spaces, soft hyphens and friends
	invisible = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}\x{FE00}-\x{FE0F}]+`)
)

// StripHTML renders an HTML email body as plain text: scripts, styles and
// metadata dropped, block elements separated by newlines, whitespace
// collapsed.
func StripHTML(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block boundaries become line breaks so the text keeps its shape.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, sel *goquery.Selection) {
		sel.PrependHtml("\n")
	})

	text := doc.Text()
	text = invisible.ReplaceAllString(text, "")
	text = spaceRun.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
