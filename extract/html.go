// Package extract converts fetched documents into plain text plus
// document metadata. Extractors report failures as errors; the fetcher
// layer wraps them into failed FetchResults so nothing above this
// package ever sees a panic or a raw parser error.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Metadata keys shared by the extractors and handlers.
const (
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaDate        = "meta_date"
	MetaPageCount   = "page_count"
	MetaAuthor      = "author"
	MetaSubject     = "subject"
	MetaCreated     = "creation_date"
	MetaModified    = "mod_date"
)

// contentClassRe matches div class attributes which commonly wrap the
// main content of government pages.
var contentClassRe = regexp.MustCompile(`(?i)(content|main|article|post|entry|body)`)

// stripSelector removes chrome elements that never carry policy text.
const stripSelector = "script, style, nav, header, footer, aside"

// blockTags are elements treated as paragraph boundaries when emitting
// text.
var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figure": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true,
	"ul": true,
}

var htmlNewlineRunRe = regexp.MustCompile(`\n{3,}`)

// HTML parses an HTML document and returns the text of its main
// content region along with document-level metadata.
//
// The content region is the first present of: <main>, <article>, a
// <div> whose class names a content container, <body>, the whole
// document. Sibling blocks are separated by newlines; runs of three or
// more newlines collapse to two to preserve paragraph boundaries.
func HTML(body []byte) (string, map[string]interface{}, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parsing html: %w", err)
	}

	meta := htmlMetadata(doc)

	doc.Find(stripSelector).Remove()

	container := contentRegion(doc)

	var sb strings.Builder
	for _, node := range container.Nodes {
		emitText(node, &sb)
	}

	text := htmlNewlineRunRe.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(text), meta, nil
}

// contentRegion selects the semantic container to extract from.
func contentRegion(doc *goquery.Document) *goquery.Selection {
	if sel := doc.Find("main").First(); sel.Length() > 0 {
		return sel
	}
	if sel := doc.Find("article").First(); sel.Length() > 0 {
		return sel
	}

	div := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && contentClassRe.MatchString(class)
	}).First()
	if div.Length() > 0 {
		return div
	}

	if sel := doc.Find("body").First(); sel.Length() > 0 {
		return sel
	}
	return doc.Selection
}

// emitText walks the node tree writing text content, inserting newlines
// at block element boundaries and <br> tags.
func emitText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteString("\n")
		}
		if blockTags[n.Data] {
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		emitText(c, sb)
	}

	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteString("\n")
	}
}

// htmlMetadata collects the page title, description and the first
// modification date tag present, in priority order last-modified,
// article:modified_time, date.
func htmlMetadata(doc *goquery.Document) map[string]interface{} {
	meta := make(map[string]interface{})

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta[MetaTitle] = title
	}

	if desc, ok := metaContent(doc, `meta[name="description"]`); ok {
		meta[MetaDescription] = desc
	}

	for _, sel := range []string{
		`meta[name="last-modified"]`,
		`meta[property="article:modified_time"]`,
		`meta[name="date"]`,
	} {
		if date, ok := metaContent(doc, sel); ok {
			meta[MetaDate] = date
			break
		}
	}

	return meta
}

func metaContent(doc *goquery.Document, selector string) (string, bool) {
	content, ok := doc.Find(selector).First().Attr("content")
	content = strings.TrimSpace(content)
	return content, ok && content != ""
}
