package adapter

import (
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "ul": true, "ol": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "tr": true,
}

// extractText converts an HTML or HTML-encoded fragment to plain text.
// Entities are unescaped first (Greenhouse double-encodes its content), then
// each block element becomes its own line.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(unescaped), ctx)
	if err != nil {
		return tidyLines(unescaped)
	}

	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n, nil)
	}
	return tidyLines(b.String())
}

// writeText appends the text under n to b. Elements named in skip are dropped
// with their children; list items are prefixed with "- ".
func writeText(b *strings.Builder, n *html.Node, skip map[string]bool) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skip[n.Data] || n.Data == "script" || n.Data == "style" {
			return
		}
		if n.Data == "li" {
			b.WriteString("\n- ")
		} else if blockElements[n.Data] {
			b.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c, skip)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteString("\n")
	}
}

// tidyLines collapses whitespace within each line and drops empty lines.
func tidyLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || line == "-" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// cutoffDay returns the first day still inside the lookback window, or the
// zero time when there is no window.
func cutoffDay(now time.Time, lookback time.Duration) time.Time {
	if lookback <= 0 {
		return time.Time{}
	}
	c := now.Add(-lookback).UTC()
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
}
