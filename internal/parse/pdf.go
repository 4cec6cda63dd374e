package parse

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts text from PDF files page by page, so every chunk
// carries the page it came from.
type PDFParser struct{}

func (p *PDFParser) Parse(path string) ([]Chunk, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	var chunks []Chunk
	total := reader.NumPage()
	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		for _, piece := range chunkText(text) {
			chunks = append(chunks, Chunk{Text: piece, PageNumber: pageNum})
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("pdf %s contains no extractable text", path)
	}
	return numberChunks(chunks), nil
}
