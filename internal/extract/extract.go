// Package extract pulls the readable text out of page markup for
// summarization and tag suggestion. Extraction is a pure function of
// the markup: no network access, no shared state.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Boilerplate elements stripped before any text is collected.
const boilerplateSelector = "script, style, header, footer, nav"

// MainContent returns the main readable text of the document: the
// first <article> if present, else the first <main>, else the body.
// Text nodes are trimmed, internal whitespace runs collapsed, and the
// pieces joined with single spaces. Unparseable or text-free markup
// yields the empty string.
func MainContent(markup []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return ""
	}

	doc.Find(boilerplateSelector).Remove()

	for _, root := range []string{"article", "main", "body"} {
		sel := doc.Find(root).First()
		if sel.Length() > 0 {
			return collapseText(sel)
		}
	}
	return ""
}

func collapseText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

// collectText walks the subtree in document order appending each
// non-empty text node with its whitespace runs collapsed.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if fields := strings.Fields(n.Data); len(fields) > 0 {
			*parts = append(*parts, strings.Join(fields, " "))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
