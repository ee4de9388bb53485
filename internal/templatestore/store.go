package templatestore

import (
	"context"
	"errors"
)

// ErrNotFound reports that no template with the requested name exists.
var ErrNotFound = errors.New("template not found")

// Template is a stored named template. Subject is the default subject
// kept alongside the body; dispatch overrides it per batch.
type Template struct {
	Name    string
	HTML    string
	Subject string
}

// Store is the external template collaborator. Templates are read-only
// during a dispatch run.
type Store interface {
	// List returns all stored template names.
	List(ctx context.Context) ([]string, error)

	// Get fetches a template by name, or ErrNotFound.
	Get(ctx context.Context, name string) (Template, error)

	// CreateOrUpdate stores the template under name, replacing any
	// existing body.
	CreateOrUpdate(ctx context.Context, name, html, subjectDefault string) error

	// Delete removes the named template. Deleting a missing template
	// returns ErrNotFound.
	Delete(ctx context.Context, name string) error
}
