package kbeditor

import (
	"slices"
	"strings"

	"github.com/wolfeidau/docsplain/internal/models"
)

const defaultToneRule = "Adopt a neutral, professional tone (Microsoft Style Guide). State facts directly."

// CategoryRow is one editable product category. Keywords is a comma separated list.
type CategoryRow struct {
	Name        string
	Description string
	Keywords    string
}

// TermRow is one terminology correction.
type TermRow struct {
	Term        string
	Replacement string
}

// Form is the editable representation of a knowledge base.
type Form struct {
	CompanyName string
	Categories  []CategoryRow
	ToneRule    string
	Terminology []TermRow
}

// DefaultForm returns the starting profile shown to a new organization.
func DefaultForm(orgName string) *Form {
	return &Form{
		CompanyName: orgName,
		Categories: []CategoryRow{
			{
				Name:        "Platform",
				Description: "Core infrastructure, performance, and backend updates.",
				Keywords:    "performance, infrastructure, upgrade",
			},
			{
				Name:        "UI/UX",
				Description: "Changes to the user interface and user experience.",
				Keywords:    "UI, design, frontend, usability",
			},
		},
		ToneRule: defaultToneRule,
		Terminology: []TermRow{
			{Term: "OldName", Replacement: "New Product Name"},
		},
	}
}

// FormFromContent builds a form for editing saved content.
// Categories and terms are sorted by name since the stored mappings are unordered.
func FormFromContent(content *models.KnowledgeBaseContent) *Form {
	form := &Form{
		CompanyName: content.CompanyName,
		ToneRule:    content.WritingStyleGuide.ProfessionalToneRule,
	}

	for _, name := range sortedKeys(content.ProductCategories) {
		cat := content.ProductCategories[name]
		form.Categories = append(form.Categories, CategoryRow{
			Name:        name,
			Description: cat.Description,
			Keywords:    strings.Join(cat.KeywordsAndAliases, ", "),
		})
	}

	for _, term := range sortedKeys(content.WritingStyleGuide.TerminologyRules) {
		form.Terminology = append(form.Terminology, TermRow{
			Term:        term,
			Replacement: content.WritingStyleGuide.TerminologyRules[term],
		})
	}

	return form
}

// Build assembles the stored content from the form.
// An empty company name falls back to orgName. Rows without a name or term are skipped.
func (f *Form) Build(orgName string) (*models.KnowledgeBaseContent, error) {
	content := &models.KnowledgeBaseContent{
		CompanyName:       strings.TrimSpace(f.CompanyName),
		ProductCategories: map[string]models.ProductCategory{},
		WritingStyleGuide: models.WritingStyleGuide{
			ProfessionalToneRule: strings.TrimSpace(f.ToneRule),
			TerminologyRules:     map[string]string{},
		},
	}

	if content.CompanyName == "" {
		content.CompanyName = strings.TrimSpace(orgName)
	}

	for _, row := range f.Categories {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			continue
		}
		content.ProductCategories[name] = models.ProductCategory{
			Description:        strings.TrimSpace(row.Description),
			KeywordsAndAliases: SplitKeywords(row.Keywords),
		}
	}

	for _, row := range f.Terminology {
		term := strings.TrimSpace(row.Term)
		if term == "" {
			continue
		}
		content.WritingStyleGuide.TerminologyRules[term] = strings.TrimSpace(row.Replacement)
	}

	if err := content.Validate(); err != nil {
		return nil, err
	}

	return content, nil
}

// SplitKeywords splits a comma separated list, trimming whitespace and dropping empty entries.
func SplitKeywords(s string) []string {
	keywords := []string{}
	for part := range strings.SplitSeq(s, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
