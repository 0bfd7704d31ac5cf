package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
	"golang.org/x/net/html"
)

// TextExtractor scans the biography for pole lexicon keywords in every
// supported language (biography_text_analysis).
type TextExtractor struct {
	tables *tables.Tables
}

// NewTextExtractor creates a biography extractor
func NewTextExtractor(t *tables.Tables) *TextExtractor {
	return &TextExtractor{tables: t}
}

// Name returns "biography"
func (e *TextExtractor) Name() string {
	return "biography"
}

// Extract adds PerHit for every distinct keyword found in the biography.
// Absent or short biographies skip the extractor entirely; a long enough
// biography without matches still fires with zero deltas. Length is counted
// in runes after markup stripping and case folding.
func (e *TextExtractor) Extract(facts model.EntityFacts) (model.Contribution, error) {
	c := model.Contribution{Provenance: model.ProvenanceBiography}

	if strings.TrimSpace(facts.Biography) == "" {
		return c, nil
	}

	text := tables.Fold(visibleText(facts.Biography))
	length := utf8.RuneCountInString(text)
	if length <= e.tables.Text.MinLength {
		c.Note(fmt.Sprintf("biography too short for text analysis (%d characters, need more than %d)", length, e.tables.Text.MinLength))
		return c, nil
	}

	perHit := e.tables.Text.PerHit
	c.Fired = true
	c.Weight = perHit

	for _, pole := range model.AllPoles() {
		var matched []string
		for _, kw := range e.tables.Keywords(pole) {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		c.Hits += len(matched)
		c.Add(pole, perHit*len(matched))
		c.Note(fmt.Sprintf("biography matched %d %s keyword(s) [%s]: +%d", len(matched), pole, strings.Join(matched, ", "), perHit*len(matched)))
	}

	if c.Hits == 0 {
		c.Note(fmt.Sprintf("biography analysed (%d characters) with no lexicon matches", length))
	}

	return c, nil
}

// isBlock reports whether an element breaks words apart; inline markup
// joins its text directly
func isBlock(tag string) bool {
	switch tag {
	case "address", "article", "aside", "blockquote", "br", "dd", "div", "dl", "dt",
		"figcaption", "figure", "footer", "h1", "h2", "h3", "h4", "h5", "h6",
		"header", "hr", "li", "main", "nav", "ol", "p", "pre", "section",
		"table", "td", "th", "tr", "ul":
		return true
	}
	return false
}

// visibleText strips markup from biographies that arrive as HTML fragments,
// skipping script and style content. Plain text passes through unchanged.
func visibleText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		block := false
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
			block = isBlock(n.Data)
		}
		if block {
			buf.WriteString(" ")
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if block {
			buf.WriteString(" ")
		}
	}
	walk(doc)

	return buf.String()
}
