package document

import (
	"bytes"
	"fmt"

	"github.com/gomutex/godocx"
)

const (
	Filename = "release_notes.docx"
	MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	bulletStyle = "List Bullet"
)

// Result contains the rendered document.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Build parses text and renders it as a DOCX file headed by title.
func Build(title, text string) (*Result, error) {
	data, err := RenderDOCX(title, Parse(text))
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Filename: Filename, MimeType: MimeType}, nil
}

// RenderDOCX writes blocks to a new Word document. A non-empty title is
// added as a level 0 heading, which Word shows in the Title style.
func RenderDOCX(title string, blocks []Block) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	if title != "" {
		if _, err := doc.AddHeading(title, 0); err != nil {
			return nil, fmt.Errorf("failed to add title: %w", err)
		}
	}

	for _, block := range blocks {
		switch block.Kind {
		case Heading:
			if _, err := doc.AddHeading(block.Text, uint(block.Level)); err != nil {
				return nil, fmt.Errorf("failed to add heading %q: %w", block.Text, err)
			}
		case Bullet:
			doc.AddParagraph(block.Text).Style(bulletStyle)
		default:
			doc.AddParagraph(block.Text)
		}
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	return buf.Bytes(), nil
}
