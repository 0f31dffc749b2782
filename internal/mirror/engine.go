// Package mirror orchestrates store-first / remote-fallback search and the
// merge-and-persist mirroring protocol for remote lens records.
package mirror

import (
	"context"
	"errors"

	"github.com/lensmirror/backend/internal/cache"
	"github.com/lensmirror/backend/internal/lens"
	"github.com/lensmirror/backend/internal/remote"
	"github.com/lensmirror/backend/internal/store"
	"go.uber.org/zap"
)

const (
	// creatorPageSize is the fixed page size for creator listings.
	creatorPageSize = 100
	// creatorScanCap bounds how many items a creator listing may scan.
	// Defensive bound against unbounded remote result sets.
	creatorScanCap = 1000
)

var (
	errMissingStore   = errors.New("mirror: record store is required")
	errMissingFetcher = errors.New("mirror: remote fetcher is required")
)

// Config describes the dependencies of the synchronization engine.
type Config struct {
	Store   *store.Store
	Fetcher remote.Fetcher
	// Cache memoizes remote search responses. Optional; nil disables
	// memoization.
	Cache  *cache.ResultCache
	Logger *zap.Logger
}

// Engine is the synchronization engine.
type Engine struct {
	store   *store.Store
	fetcher remote.Fetcher
	cache   *cache.ResultCache
	logger  *zap.Logger
}

// New constructs the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		cache:   cfg.Cache,
		logger:  logger,
	}, nil
}

// Search routes a term to the matching remote capability: creator profile
// links go to the paginated creator listing, content hashes to a hash
// lookup, everything else to free-text search. Results are annotated with
// locally known creator slugs and marked web-sourced. Search never fails;
// it degrades to an empty slice.
func (e *Engine) Search(ctx context.Context, term string) []lens.Lens {
	if slug := lens.CreatorProfileSlug(term); slug != "" {
		return e.SearchByCreatorSlug(ctx, slug)
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(term); ok {
			return cached
		}
	}

	var results []lens.Lens
	if uuid := lens.ParseUUID(term); uuid != "" {
		record, err := e.fetcher.FetchByHash(ctx, uuid)
		if err != nil {
			e.logger.Error("remote hash lookup failed", zap.String("uuid", uuid), zap.Error(err))
			return []lens.Lens{}
		}
		if record != nil {
			results = []lens.Lens{record.Lens}
		}
	} else {
		var err error
		results, err = e.fetcher.SearchByKeyword(ctx, term)
		if err != nil {
			e.logger.Error("remote keyword search failed", zap.String("term", term), zap.Error(err))
			return []lens.Lens{}
		}
	}

	results = e.annotate(ctx, results)
	if e.cache != nil {
		e.cache.Set(term, results)
	}
	return results
}

// SearchByUserName resolves a creator display name to a locally known slug
// and lists that creator's lenses. Unknown creators yield an empty slice.
func (e *Engine) SearchByUserName(ctx context.Context, displayName string) []lens.Lens {
	slug := e.store.CreatorSlugByDisplayName(ctx, displayName)
	if slug == "" {
		return []lens.Lens{}
	}
	return e.SearchByCreatorSlug(ctx, slug)
}

// SearchByCreatorSlug pages through the creator listing, stopping at the
// first short page or once the scan cap is reached.
func (e *Engine) SearchByCreatorSlug(ctx context.Context, slug string) []lens.Lens {
	collected := make([]lens.Lens, 0, creatorPageSize)
	for offset := 0; offset < creatorScanCap; offset += creatorPageSize {
		page, err := e.fetcher.ListByCreator(ctx, slug, offset, creatorPageSize)
		if err != nil {
			e.logger.Error("creator listing failed",
				zap.String("slug", slug),
				zap.Int("offset", offset),
				zap.Error(err))
			break
		}
		collected = append(collected, page...)
		if len(page) < creatorPageSize {
			break
		}
	}

	for i := range collected {
		collected[i].IsWebSourced = true
	}
	return collected
}

// GetByHash is a direct pass-through hash lookup.
func (e *Engine) GetByHash(ctx context.Context, uuid string) (*remote.Record, error) {
	return e.fetcher.FetchByHash(ctx, uuid)
}

// GetUnlockByHash resolves unlock data for a hash. The platform serves lens
// metadata and unlock fields in one document, so this is the same lookup.
func (e *Engine) GetUnlockByHash(ctx context.Context, uuid string) (*remote.Record, error) {
	return e.GetByHash(ctx, uuid)
}

// MirrorSearchResults persists each candidate carrying a content hash. The
// candidate is re-resolved through an authoritative hash lookup; when that
// lookup yields a complete lens it wins, otherwise the original lightweight
// candidate is persisted as-is. Candidates missing required fields in the
// fallback branch are skipped rather than half-written. There is no
// fallback source for unlock data.
//
// One candidate's failure never aborts its siblings.
func (e *Engine) MirrorSearchResults(ctx context.Context, candidates []lens.Lens) {
	for _, candidate := range candidates {
		if candidate.UUID == "" {
			continue
		}

		record, err := e.fetcher.FetchByHash(ctx, candidate.UUID)
		if err != nil {
			e.logger.Error("authoritative lookup failed", zap.String("uuid", candidate.UUID), zap.Error(err))
			continue
		}

		switch {
		case record != nil && record.Lens.Complete():
			if err := e.store.InsertLens(ctx, record.Lens, false); err != nil {
				e.logger.Error("mirror insert failed", zap.Int64("id", record.Lens.ID), zap.Error(err))
			}
		case candidate.Complete():
			if err := e.store.InsertLens(ctx, candidate, false); err != nil {
				e.logger.Error("mirror fallback insert failed", zap.Int64("id", candidate.ID), zap.Error(err))
			}
		default:
			e.logger.Debug("skipping incomplete mirror candidate", zap.String("uuid", candidate.UUID))
		}

		if record != nil && record.HasUnlock() {
			if err := e.store.InsertUnlock(ctx, *record.Unlock, false); err != nil {
				e.logger.Error("mirror unlock insert failed", zap.Int64("lens_id", record.Unlock.LensID), zap.Error(err))
			}
		}
	}
}

// annotate resolves locally known creator slugs onto remote candidates and
// flags their origin. Slug absence is not an error.
func (e *Engine) annotate(ctx context.Context, results []lens.Lens) []lens.Lens {
	if results == nil {
		results = []lens.Lens{}
	}
	for i := range results {
		if results[i].CreatorDisplayName != "" && results[i].CreatorSlug == "" {
			results[i].CreatorSlug = e.store.CreatorSlugByDisplayName(ctx, results[i].CreatorDisplayName)
		}
		results[i].IsWebSourced = true
	}
	return results
}
