package kbeditor

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/store"
)

// Editor loads and saves an organization's knowledge base.
type Editor struct {
	store store.KnowledgeBaseStore
}

// NewEditor creates an editor backed by kbStore.
func NewEditor(kbStore store.KnowledgeBaseStore) *Editor {
	return &Editor{store: kbStore}
}

// Load returns the form for the organization's saved content, or the defaults when none is saved.
func (e *Editor) Load(ctx context.Context, orgID uuid.UUID, orgName string) (*Form, error) {
	content, err := e.store.GetKnowledgeBase(ctx, orgID)
	if errors.Is(err, store.ErrKnowledgeBaseNotFound) {
		return DefaultForm(orgName), nil
	}
	if err != nil {
		return nil, err
	}
	return FormFromContent(content), nil
}

// Save builds content from form and stores it, replacing any previous content.
func (e *Editor) Save(ctx context.Context, orgID uuid.UUID, orgName string, form *Form) (*models.KnowledgeBaseContent, error) {
	content, err := form.Build(orgName)
	if err != nil {
		return nil, err
	}

	if err := e.SaveContent(ctx, orgID, content); err != nil {
		return nil, err
	}

	return content, nil
}

// SaveContent validates and stores content as is.
func (e *Editor) SaveContent(ctx context.Context, orgID uuid.UUID, content *models.KnowledgeBaseContent) error {
	content.Normalize()
	if err := content.Validate(); err != nil {
		return err
	}

	if err := e.store.SaveKnowledgeBase(ctx, orgID, content); err != nil {
		return err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Int("categories", len(content.ProductCategories)).
		Int("terms", len(content.WritingStyleGuide.TerminologyRules)).
		Msg("Knowledge base saved")

	return nil
}

// ExportYAML encodes content as a YAML document.
func ExportYAML(content *models.KnowledgeBaseContent) ([]byte, error) {
	clone := *content
	clone.Normalize()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&clone); err != nil {
		return nil, fmt.Errorf("failed to encode knowledge base: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode knowledge base: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportYAML decodes a YAML document produced by ExportYAML. Unknown fields are rejected.
func ImportYAML(data []byte) (*models.KnowledgeBaseContent, error) {
	var content models.KnowledgeBaseContent

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base: %w", err)
	}

	content.Normalize()
	if err := content.Validate(); err != nil {
		return nil, err
	}
	return &content, nil
}
