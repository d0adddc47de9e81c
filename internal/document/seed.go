package document

import (
	"context"

	"github.com/stackl-io/stackl-core/internal/catalog"
)

// Seed is a test convenience that writes a typed document into s without
// the caller needing to marshal it by hand.
func Seed(ctx context.Context, s Store, docType catalog.DocType, name string, v any) error {
	return s.Write(ctx, docType, name, marshalOrPanic(v), "seeded")
}
