package template

import "context"

// Repository is the persistence port for templates.
type Repository interface {
	// Find returns the active template for (event, language) or ErrNotFound.
	Find(ctx context.Context, event EventType, language string) (*Template, error)

	// Upsert creates or replaces the template of (event, language).
	Upsert(ctx context.Context, t *Template) error
}
