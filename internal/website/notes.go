package website

import "github.com/wolfeidau/docsplain/internal/document"

// parseNotes classifies generated notes for the on-page preview.
func parseNotes(text string) []document.Block {
	if text == "" {
		return nil
	}
	return document.Parse(text)
}
