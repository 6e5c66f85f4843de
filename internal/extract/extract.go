// Package extract pulls image references and headings out of notebook cell
// content. Every function is pure and works on strings.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ImageRef is one image referenced by a cell.
type ImageRef struct {
	Source   string // as written in the cell
	Resolved string // loadable URI, filled in by the caller
	CellID   string
	HasAlt   bool
}

// Content is everything a single scan of one cell needs.
type Content struct {
	Images     []ImageRef
	MissingAlt bool
}

var (
	// imageNoAltPattern matches markdown images with an empty alt text.
	imageNoAltPattern = regexp.MustCompile(`!\[\](\([^)]+\))`)
	// imagePattern matches every markdown image; group 1 is the source.
	imagePattern = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)
)

// MarkdownImages finds markdown image syntax in src. missingAlt reports
// whether any image has empty alt text.
func MarkdownImages(src, cellID string) (refs []ImageRef, missingAlt bool) {
	for _, m := range imagePattern.FindAllStringSubmatchIndex(src, -1) {
		source := src[m[2]:m[3]]
		if source == "" {
			continue
		}
		refs = append(refs, ImageRef{
			Source: source,
			CellID: cellID,
			HasAlt: !strings.HasPrefix(src[m[0]:m[1]], "![]"),
		})
	}
	return refs, imageNoAltPattern.MatchString(src)
}

// HTMLImages parses markup as an HTML document and returns its img elements.
// An image whose alt attribute is absent or empty has HasAlt false.
func HTMLImages(markup, cellID string) []ImageRef {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var refs []ImageRef
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			refs = append(refs, ImageRef{
				Source: strings.TrimSpace(getAttr(n, "src")),
				CellID: cellID,
				HasAlt: getAttr(n, "alt") != "",
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// MarkdownCell extracts images from a markdown cell, reading the source both
// as markdown and as HTML.
func MarkdownCell(source, cellID string) Content {
	mdRefs, missing := MarkdownImages(source, cellID)
	htmlRefs := HTMLImages(source, cellID)

	c := Content{MissingAlt: missing}
	for _, r := range htmlRefs {
		if !r.HasAlt {
			c.MissingAlt = true
		}
	}
	c.Images = append(htmlRefs, mdRefs...)
	return c
}

// CodeCell extracts images from the rendered output markup of a code cell.
func CodeCell(outputHTML, cellID string) Content {
	refs := HTMLImages(outputHTML, cellID)
	c := Content{Images: refs}
	for _, r := range refs {
		if !r.HasAlt {
			c.MissingAlt = true
		}
	}
	return c
}
