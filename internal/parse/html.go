package parse

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser extracts visible text from HTML documents. Script and style
// contents are skipped; block elements become paragraph boundaries.
type HTMLParser struct{}

func (p *HTMLParser) Parse(path string) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing html %s: %w", path, err)
	}

	var sb strings.Builder
	collectText(doc, &sb)

	pieces := chunkText(sb.String())
	chunks := make([]Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = Chunk{Text: text, PageNumber: 1}
	}
	return numberChunks(chunks), nil
}

var skipElements = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "br": true, "blockquote": true, "pre": true,
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteString("\n\n")
	}
}
