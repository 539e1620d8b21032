// Package htmlutil turns rendered markup into the text locator patterns are
// matched against.
package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Text concatenates every text node below node.
func Text(node *html.Node) string {
	var b strings.Builder
	writeText(node, &b)
	return b.String()
}

func writeText(node *html.Node, b *strings.Builder) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		b.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeText(child, b)
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeText collapses whitespace runs into one space, drops
// non-printable runes and trims the result.
func NormalizeText(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}
