package remote

import (
	"context"

	"github.com/lensmirror/backend/internal/lens"
)

// Record is an authoritative remote payload. The platform returns lens
// metadata and unlock fields in a single document; Unlock is nil when the
// payload carried no activation data.
type Record struct {
	Lens   lens.Lens
	Unlock *lens.Unlock
}

// HasUnlock reports whether the record carries a usable activation payload.
func (r Record) HasUnlock() bool {
	return r.Unlock != nil && r.Unlock.Complete()
}

// Fetcher is the capability contract of the remote content platform.
type Fetcher interface {
	// FetchByHash resolves a content hash to an authoritative record.
	// A missing hash yields (nil, nil), not an error.
	FetchByHash(ctx context.Context, hash string) (*Record, error)

	// SearchByKeyword performs a free-text search returning partial lenses.
	SearchByKeyword(ctx context.Context, term string) ([]lens.Lens, error)

	// ListByCreator pages through a creator's published lenses.
	ListByCreator(ctx context.Context, slug string, offset, limit int) ([]lens.Lens, error)
}
