package document

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stackl-io/stackl-core/internal/catalog"
)

// GetService fetches and decodes the named Service document.
func GetService(ctx context.Context, s Store, name string) (catalog.Service, error) {
	var out catalog.Service
	return out, getTyped(ctx, s, catalog.DocTypeService, name, &out)
}

// GetFunctionalRequirement fetches and decodes the named
// FunctionalRequirement document.
func GetFunctionalRequirement(ctx context.Context, s Store, name string) (catalog.FunctionalRequirement, error) {
	var out catalog.FunctionalRequirement
	return out, getTyped(ctx, s, catalog.DocTypeFunctionalRequirement, name, &out)
}

// GetInfraBase fetches and decodes a named infrastructure base document of
// the given type (environment, location, or zone).
func GetInfraBase(ctx context.Context, s Store, docType catalog.DocType, name string) (catalog.InfraBaseDoc, error) {
	var out catalog.InfraBaseDoc
	return out, getTyped(ctx, s, docType, name, &out)
}

// GetSAT fetches and decodes the named StackApplicationTemplate document.
func GetSAT(ctx context.Context, s Store, name string) (catalog.StackApplicationTemplate, error) {
	var out catalog.StackApplicationTemplate
	return out, getTyped(ctx, s, catalog.DocTypeStackApplicationTemplate, name, &out)
}

// GetSIT fetches and decodes the named StackInfrastructureTemplate
// document.
func GetSIT(ctx context.Context, s Store, name string) (catalog.StackInfrastructureTemplate, error) {
	var out catalog.StackInfrastructureTemplate
	return out, getTyped(ctx, s, catalog.DocTypeStackInfrastructureTemplate, name, &out)
}

// WriteSIT encodes and persists sit.
func WriteSIT(ctx context.Context, s Store, sit catalog.StackInfrastructureTemplate) error {
	body, err := yaml.Marshal(sit)
	if err != nil {
		return fmt.Errorf("marshaling SIT %q: %w", sit.Name, err)
	}
	return s.Write(ctx, catalog.DocTypeStackInfrastructureTemplate, sit.Name, body, "stack infrastructure template")
}

func getTyped(ctx context.Context, s Store, docType catalog.DocType, name string, out any) error {
	doc, err := s.Get(ctx, docType, name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(doc.Body, out); err != nil {
		return fmt.Errorf("unmarshaling %s %q: %w", docType, name, err)
	}
	return nil
}
