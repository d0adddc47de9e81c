// Package document implements the Document Store Gateway: typed read/write
// of catalog documents by (type,name), plus a type-specialized path for
// Stack Instances, backed by a pluggable Store implementation.
package document

import (
	"context"

	"github.com/stackl-io/stackl-core/internal/catalog"
)

// Document is a single stored (type,name) body, opaque to the Store
// itself; Get/Write callers marshal/unmarshal the Body against the
// concrete catalog type they expect.
type Document struct {
	Type        catalog.DocType
	Name        string
	Body        []byte
	Revision    string
	Description string
}

// Store is the sole serialization boundary for the engine: all other
// components operate on in-memory documents and never touch storage
// directly.
type Store interface {
	// Get fetches the document named (docType,name). Returns a NotFound
	// stackerrors.Error if it does not exist.
	Get(ctx context.Context, docType catalog.DocType, name string) (Document, error)

	// Write persists body under (docType,name) with the given
	// description, creating or overwriting it.
	Write(ctx context.Context, docType catalog.DocType, name string, body []byte, description string) error

	// List returns every document of the given type.
	List(ctx context.Context, docType catalog.DocType) ([]Document, error)

	// GetStackInstance fetches the named StackInstance.
	GetStackInstance(ctx context.Context, name string) (catalog.StackInstance, error)

	// ListStackInstances returns every persisted StackInstance.
	ListStackInstances(ctx context.Context) ([]catalog.StackInstance, error)

	// WriteStackInstance persists instance, bumping its Version. Returns a
	// ConflictError if the stored version has advanced past the version
	// the caller last read (optimistic CAS); callers that do not care
	// about conflicts pass an instance with Version 0 to force the write.
	WriteStackInstance(ctx context.Context, instance *catalog.StackInstance) error

	// DeleteStackInstance removes the named instance document entirely.
	DeleteStackInstance(ctx context.Context, name string) error

	// Close releases any resources held by the store.
	Close() error
}
