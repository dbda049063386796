// Package structure fingerprints the DOM shape of scraped pages and detects
// layout drift before it silently breaks extraction.
package structure

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// volatileTags are stripped before fingerprinting: their content changes
// without the page structure meaningfully changing.
var volatileTags = map[string]bool{
	"script":   true,
	"style":    true,
	"meta":     true,
	"link":     true,
	"noscript": true,
}

// Fingerprint reduces the DOM tree to its structural shape (tag names,
// sorted class lists, ids, child counts and ordered child tags), serializes
// it and returns the SHA-256 hex digest. Text content and volatile
// attributes do not contribute, so two renders of the same layout hash
// identically.
func Fingerprint(root *html.Node) string {
	var b strings.Builder
	reduce(root, &b)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func reduce(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if volatileTags[n.Data] {
			return
		}
		b.WriteString(n.Data)
		b.WriteByte('(')

		if classes := sortedClasses(n); classes != "" {
			b.WriteString("class=")
			b.WriteString(classes)
			b.WriteByte(';')
		}
		if id := attr(n, "id"); id != "" {
			b.WriteString("id=")
			b.WriteString(id)
			b.WriteByte(';')
		}

		children := elementChildren(n)
		b.WriteString("n=")
		b.WriteString(strconv.Itoa(len(children)))
		b.WriteByte(')')

		b.WriteByte('[')
		for _, c := range children {
			b.WriteString(c.Data)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		reduce(c, b)
	}
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !volatileTags[c.Data] {
			out = append(out, c)
		}
	}
	return out
}

func sortedClasses(n *html.Node) string {
	raw := attr(n, "class")
	if raw == "" {
		return ""
	}
	classes := strings.Fields(raw)
	sort.Strings(classes)
	return strings.Join(classes, ",")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
