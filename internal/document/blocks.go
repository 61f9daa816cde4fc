package document

import "strings"

// BlockKind identifies the type of a document block.
type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	Bullet
)

func (k BlockKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Bullet:
		return "bullet"
	default:
		return "paragraph"
	}
}

// Block is one classified line of generated text. Level is only set for headings.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string
}

var headingPrefixes = []struct {
	prefix string
	level  int
}{
	{"### ", 3},
	{"## ", 2},
	{"# ", 1},
}

// Parse classifies each line of Markdown-like text. Blank lines are dropped.
func Parse(text string) []Block {
	var blocks []Block

	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		blocks = append(blocks, classify(line))
	}

	return blocks
}

func classify(line string) Block {
	for _, h := range headingPrefixes {
		if rest, ok := strings.CutPrefix(line, h.prefix); ok {
			return Block{Kind: Heading, Level: h.level, Text: strings.TrimSpace(rest)}
		}
	}

	if rest, ok := strings.CutPrefix(line, "* "); ok {
		return Block{Kind: Bullet, Text: strings.TrimSpace(rest)}
	}

	return Block{Kind: Paragraph, Text: strings.TrimSpace(line)}
}
