package parse

import "strings"

// maxChunkRunes bounds a chunk's size. Paragraphs are merged up to the
// bound; a single oversized paragraph is split hard at the bound.
const maxChunkRunes = 1500

// chunkText splits text into paragraph-based chunks. Paragraphs are
// separated by blank lines; consecutive small paragraphs are merged so
// chunks stay close to the size bound without crossing it.
func chunkText(text string) []string {
	var chunks []string
	var current []rune

	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = current[:0]
	}

	for _, para := range splitParagraphs(text) {
		runes := []rune(para)
		for len(runes) > maxChunkRunes {
			flush()
			chunks = append(chunks, strings.TrimSpace(string(runes[:maxChunkRunes])))
			runes = runes[maxChunkRunes:]
		}
		if len(runes) == 0 {
			continue
		}

		if len(current) > 0 && len(current)+len(runes)+2 > maxChunkRunes {
			flush()
		}
		if len(current) > 0 {
			current = append(current, '\n', '\n')
		}
		current = append(current, runes...)
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(normalized, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
