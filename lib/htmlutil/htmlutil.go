package htmlutil

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

func dropInvisible(r rune) rune {
	if unicode.IsPrint(r) || unicode.IsSpace(r) {
		return r
	}
	return -1
}

// CleanText is the text of a selection the way a browser shows it: invisible
// characters removed and every run of whitespace collapsed to one space.
func CleanText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	text := strings.Map(dropInvisible, sel.Text())
	return strings.Join(strings.Fields(text), " ")
}

// Title is the cleaned text of the page's <title>.
func Title(doc *goquery.Document) string {
	return CleanText(doc.Find("title").First())
}
