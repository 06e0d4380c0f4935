package ingest

import "strings"

// Block is one BEGIN/END component from a file.
type Block struct {
	Type string
	Text string
}

// SplitBlocks cuts text into top-level BEGIN:<type> ... END:<type> blocks.
// Nested components stay inside their parent. Lines outside any block are
// discarded; a block missing its END is still returned so the decoder can
// reject it.
func SplitBlocks(text string) []Block {
	var (
		blocks []Block
		cur    []string
		typ    string
		depth  int
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		key, val, _ := strings.Cut(line, ":")
		key = strings.ToUpper(strings.TrimSpace(key))

		switch {
		case key == "BEGIN":
			if depth == 0 {
				typ = strings.ToUpper(strings.TrimSpace(val))
				cur = cur[:0]
			}
			depth++
		case depth == 0:
			continue
		}

		cur = append(cur, line)

		if key == "END" {
			depth--
			if depth == 0 {
				blocks = append(blocks, Block{Type: typ, Text: strings.Join(cur, "\r\n") + "\r\n"})
				cur = nil
			}
		}
	}
	if depth > 0 && len(cur) > 0 {
		blocks = append(blocks, Block{Type: typ, Text: strings.Join(cur, "\r\n") + "\r\n"})
	}

	return blocks
}
