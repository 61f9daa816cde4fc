package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

var ErrCompanyNameRequired = errors.New("company name is required")

// KnowledgeBaseContent is the structured document stored for a knowledge base.
// It is persisted as a single JSON blob and fully replaced on every save.
type KnowledgeBaseContent struct {
	CompanyName       string                     `json:"company_name" yaml:"company_name"`
	ProductCategories map[string]ProductCategory `json:"product_categories" yaml:"product_categories"`
	WritingStyleGuide WritingStyleGuide          `json:"writing_style_guide" yaml:"writing_style_guide"`
}

// ProductCategory describes one category release-note items are grouped under.
type ProductCategory struct {
	Description        string   `json:"description" yaml:"description"`
	KeywordsAndAliases []string `json:"keywords_and_aliases" yaml:"keywords_and_aliases"`
}

// WritingStyleGuide holds the tone rule and terminology corrections.
type WritingStyleGuide struct {
	ProfessionalToneRule string            `json:"professional_tone_rule" yaml:"professional_tone_rule"`
	TerminologyRules     map[string]string `json:"terminology_rules" yaml:"terminology_rules"`
}

// Clone returns a deep copy of the content.
func (c *KnowledgeBaseContent) Clone() *KnowledgeBaseContent {
	clone := &KnowledgeBaseContent{
		CompanyName: c.CompanyName,
		WritingStyleGuide: WritingStyleGuide{
			ProfessionalToneRule: c.WritingStyleGuide.ProfessionalToneRule,
			TerminologyRules:     maps.Clone(c.WritingStyleGuide.TerminologyRules),
		},
	}
	if c.ProductCategories != nil {
		clone.ProductCategories = make(map[string]ProductCategory, len(c.ProductCategories))
		for name, cat := range c.ProductCategories {
			cat.KeywordsAndAliases = slices.Clone(cat.KeywordsAndAliases)
			clone.ProductCategories[name] = cat
		}
	}
	return clone
}

// Normalize replaces nil maps and slices with empty ones so the content
// serializes to the same shape it is parsed back from.
func (c *KnowledgeBaseContent) Normalize() {
	if c.ProductCategories == nil {
		c.ProductCategories = map[string]ProductCategory{}
	}
	for name, cat := range c.ProductCategories {
		if cat.KeywordsAndAliases == nil {
			cat.KeywordsAndAliases = []string{}
			c.ProductCategories[name] = cat
		}
	}
	if c.WritingStyleGuide.TerminologyRules == nil {
		c.WritingStyleGuide.TerminologyRules = map[string]string{}
	}
}

// Validate checks the content is complete enough to steer generation.
func (c *KnowledgeBaseContent) Validate() error {
	if c.CompanyName == "" {
		return ErrCompanyNameRequired
	}
	return nil
}

// MarshalContent encodes content for storage.
func MarshalContent(c *KnowledgeBaseContent) ([]byte, error) {
	clone := c.Clone()
	clone.Normalize()
	data, err := json.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal knowledge base content: %w", err)
	}
	return data, nil
}

// UnmarshalContent decodes stored content and re-validates its shape.
func UnmarshalContent(data []byte) (*KnowledgeBaseContent, error) {
	var c KnowledgeBaseContent
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal knowledge base content: %w", err)
	}
	c.Normalize()
	return &c, nil
}
