package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfeidau/docsplain/internal/models"
)

const instructions = `You are a technical writer producing customer facing release notes.
Group every item under the product category whose keywords or aliases best match it.
Follow the style guide exactly and apply every terminology rule.
Format the output using "#", "##" and "###" headings, "* " bullet points and plain paragraphs only.`

// BuildPrompt renders the knowledge base and uploaded tables into a single prompt.
func BuildPrompt(content *models.KnowledgeBaseContent, tables []*Table) (string, error) {
	kb := content.Clone()
	kb.Normalize()

	styleGuide, err := json.MarshalIndent(kb.WritingStyleGuide, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode style guide: %w", err)
	}

	categories, err := json.MarshalIndent(kb.ProductCategories, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode categories: %w", err)
	}

	var b strings.Builder

	b.WriteString(instructions)
	fmt.Fprintf(&b, "\n\nCompany name: %s\n", kb.CompanyName)
	fmt.Fprintf(&b, "\nWriting style guide:\n%s\n", styleGuide)
	fmt.Fprintf(&b, "\nProduct categories:\n%s\n", categories)

	b.WriteString("\nCSV data:\n")
	for _, table := range tables {
		rows, err := json.MarshalIndent(table.Rows, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode %s rows: %w", table.Name, err)
		}
		fmt.Fprintf(&b, "\n%s (%d rows):\n%s\n", table.Name, len(table.Rows), rows)
	}

	return b.String(), nil
}
