package store

import (
	"context"
	"errors"
	"strings"

	"github.com/lensmirror/backend/internal/lens"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// searchLimit caps every multi-row read.
const searchLimit = 250

var (
	errMissingDatabase = errors.New("store: database handle is required")

	// ErrInvalidLens indicates an insert candidate missing id, name or
	// creator display name.
	ErrInvalidLens = errors.New("store: lens missing required fields")
	// ErrInvalidUnlock indicates an insert candidate missing lens id or url.
	ErrInvalidUnlock = errors.New("store: unlock missing required fields")
	// ErrInvalidUser indicates a user candidate missing slug or display name.
	ErrInvalidUser = errors.New("store: user missing required fields")
)

// AssetDownloader mirrors a record's binary media into local storage. It is
// best-effort: implementations log their own failures and report nothing back.
type AssetDownloader interface {
	DownloadLensAssets(ctx context.Context, record lens.Lens)
	DownloadUnlockAssets(ctx context.Context, lensID int64, lensURL string)
}

// Options control read-path filtering.
type Options struct {
	// EnableWebSource includes remote-origin rows in read results.
	EnableWebSource bool
	// IgnoreAltMedia drops standard and sequence media on read.
	IgnoreAltMedia bool
	// IgnoreImageSequence drops sequence media on read.
	IgnoreImageSequence bool
}

// Config describes the dependencies of the record store.
type Config struct {
	Database   *gorm.DB
	Downloader AssetDownloader
	Options    Options
	Logger     *zap.Logger
}

// Store owns the persistent representation of lenses, unlocks and users.
type Store struct {
	db         *gorm.DB
	downloader AssetDownloader
	opts       Options
	logger     *zap.Logger
}

// New constructs the record store.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	downloader := cfg.Downloader
	if downloader == nil {
		downloader = noopDownloader{}
	}
	return &Store{
		db:         cfg.Database,
		downloader: downloader,
		opts:       cfg.Options,
		logger:     logger,
	}, nil
}

type noopDownloader struct{}

func (noopDownloader) DownloadLensAssets(context.Context, lens.Lens)       {}
func (noopDownloader) DownloadUnlockAssets(context.Context, int64, string) {}

// webSourceFilter excludes remote-origin rows unless configured otherwise.
func webSourceFilter[T any](s *Store, rows []T, sourced func(T) bool) []T {
	if s.opts.EnableWebSource {
		return rows
	}
	kept := rows[:0]
	for _, row := range rows {
		if !sourced(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func (s *Store) filterLenses(rows []lens.Lens) []lens.Lens {
	rows = webSourceFilter(s, rows, func(l lens.Lens) bool { return l.IsWebSourced })
	return s.mediaFilter(rows)
}

func (s *Store) filterUnlocks(rows []lens.Unlock) []lens.Unlock {
	return webSourceFilter(s, rows, func(u lens.Unlock) bool { return u.IsWebSourced })
}

// mediaFilter collapses alternate and sequence media into the thumbnail
// field when configured, to reduce payload size for constrained clients.
func (s *Store) mediaFilter(rows []lens.Lens) []lens.Lens {
	if !s.opts.IgnoreAltMedia && !s.opts.IgnoreImageSequence {
		return rows
	}
	for i := range rows {
		if rows[i].ThumbnailMediaURL == "" {
			rows[i].ThumbnailMediaURL = rows[i].ThumbnailMediaPosterURL
		}
		if s.opts.IgnoreAltMedia {
			rows[i].StandardMediaURL = ""
			rows[i].StandardMediaPosterURL = ""
		}
		rows[i].ImageSequence = lens.JSONMap{}
	}
	return rows
}

// queryLenses runs a read and degrades to an empty slice on failure.
func (s *Store) queryLenses(ctx context.Context, operation string, apply func(*gorm.DB) *gorm.DB) []lens.Lens {
	var rows []lens.Lens
	if err := apply(s.db.WithContext(ctx).Limit(searchLimit)).Find(&rows).Error; err != nil {
		s.logger.Error("lens query failed", zap.String("operation", operation), zap.Error(err))
		return []lens.Lens{}
	}
	filtered := s.filterLenses(rows)
	if filtered == nil {
		filtered = []lens.Lens{}
	}
	return filtered
}

// SearchByName matches a case-insensitive substring against the lens name
// and the creator display name.
func (s *Store) SearchByName(ctx context.Context, term string) []lens.Lens {
	wildcard := "%" + term + "%"
	return s.queryLenses(ctx, "search_by_name", func(db *gorm.DB) *gorm.DB {
		return db.Where("name LIKE ? OR creator_display_name LIKE ?", wildcard, wildcard)
	})
}

// SearchByTags matches any tag in the list.
func (s *Store) SearchByTags(ctx context.Context, tags []string) []lens.Lens {
	if len(tags) == 0 {
		return []lens.Lens{}
	}
	return s.queryLenses(ctx, "search_by_tags", func(db *gorm.DB) *gorm.DB {
		scoped := db
		for i, tag := range tags {
			pattern := "%" + tag + "%"
			if i == 0 {
				scoped = scoped.Where("tags LIKE ?", pattern)
			} else {
				scoped = scoped.Or("tags LIKE ?", pattern)
			}
		}
		return scoped
	})
}

// SearchByUUID returns the lens with the given content hash, if any.
func (s *Store) SearchByUUID(ctx context.Context, uuid string) []lens.Lens {
	return s.queryLenses(ctx, "search_by_uuid", func(db *gorm.DB) *gorm.DB {
		return db.Where("uuid = ?", uuid).Limit(1)
	})
}

// GetByIDs returns the lenses matching the given identifiers.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) []lens.Lens {
	if len(ids) == 0 {
		return []lens.Lens{}
	}
	return s.queryLenses(ctx, "get_by_ids", func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	})
}

// GetByID returns zero or one lens, as a list for uniformity with the
// other lookups.
func (s *Store) GetByID(ctx context.Context, id int64) []lens.Lens {
	return s.queryLenses(ctx, "get_by_id", func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id).Limit(1)
	})
}

// GetUnlockByLensID returns the unlock paired with the lens, if any.
func (s *Store) GetUnlockByLensID(ctx context.Context, id int64) []lens.Unlock {
	var rows []lens.Unlock
	err := s.db.WithContext(ctx).Where("lens_id = ?", id).Limit(1).Find(&rows).Error
	if err != nil {
		s.logger.Error("unlock query failed", zap.Int64("lens_id", id), zap.Error(err))
		return []lens.Unlock{}
	}
	return s.filterUnlocks(rows)
}

// CreatorSlugByDisplayName resolves a creator display name to a slug.
// Returns "" when the creator is unknown.
func (s *Store) CreatorSlugByDisplayName(ctx context.Context, displayName string) string {
	var row lens.User
	err := s.db.WithContext(ctx).Where("creator_display_name = ?", displayName).Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("user query failed", zap.String("display_name", displayName), zap.Error(err))
		}
		return ""
	}
	return row.CreatorSlug
}

// FilterExisting returns the subset of candidate ids already present in the
// store, after web-source filtering. Used to skip expensive remote re-fetches.
func (s *Store) FilterExisting(ctx context.Context, ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{}
	}
	var rows []lens.Lens
	err := s.db.WithContext(ctx).
		Select("id", "is_web_sourced").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		s.logger.Error("duplicate check failed", zap.Int64s("ids", ids), zap.Error(err))
		return []int64{}
	}
	rows = webSourceFilter(s, rows, func(l lens.Lens) bool { return l.IsWebSourced })
	existing := make([]int64, 0, len(rows))
	for _, row := range rows {
		existing = append(existing, row.ID)
	}
	return existing
}

// InsertLens persists a single lens. See InsertLenses.
func (s *Store) InsertLens(ctx context.Context, record lens.Lens, forceAssetDownload bool) error {
	return s.InsertLenses(ctx, []lens.Lens{record}, forceAssetDownload)
}

// InsertLenses persists lenses one at a time, in order. The sequential loop
// is a deliberate throttle tied to the connection-pool ceiling; do not
// parallelize it without revisiting pool sizing.
//
// A record that collides on id leaves the stored row untouched; with
// forceAssetDownload the collision still re-triggers the asset download so
// a damaged mirror can be repaired without a metadata write.
func (s *Store) InsertLenses(ctx context.Context, records []lens.Lens, forceAssetDownload bool) error {
	var firstErr error
	for _, record := range records {
		if !record.Complete() {
			s.logger.Error("rejecting lens missing required fields",
				zap.Int64("id", record.ID),
				zap.String("name", record.Name))
			return errors.Join(firstErr, ErrInvalidLens)
		}

		normalized := normalizeLens(record)
		err := s.db.WithContext(ctx).Create(&normalized).Error
		switch {
		case err == nil:
			if normalized.CreatorSlug != "" {
				if userErr := s.InsertUser(ctx, lens.User{
					CreatorSlug:        normalized.CreatorSlug,
					CreatorDisplayName: normalized.CreatorDisplayName,
				}); userErr != nil {
					s.logger.Warn("user insert failed", zap.Error(userErr))
				}
			}
			s.downloader.DownloadLensAssets(ctx, normalized)
			s.logger.Info("saved lens", zap.Int64("id", normalized.ID), zap.String("name", normalized.Name))
		case errors.Is(err, gorm.ErrDuplicatedKey):
			if forceAssetDownload {
				s.downloader.DownloadLensAssets(ctx, normalized)
			}
		default:
			s.logger.Error("lens insert failed",
				zap.Int64("id", normalized.ID),
				zap.String("name", normalized.Name),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// InsertUnlock persists a single unlock. See InsertUnlocks.
func (s *Store) InsertUnlock(ctx context.Context, record lens.Unlock, forceAssetDownload bool) error {
	return s.InsertUnlocks(ctx, []lens.Unlock{record}, forceAssetDownload)
}

// InsertUnlocks persists unlocks with the same sequential, idempotent
// semantics as InsertLenses.
func (s *Store) InsertUnlocks(ctx context.Context, records []lens.Unlock, forceAssetDownload bool) error {
	var firstErr error
	for _, record := range records {
		if !record.Complete() {
			s.logger.Error("rejecting unlock missing required fields", zap.Int64("lens_id", record.LensID))
			return errors.Join(firstErr, ErrInvalidUnlock)
		}

		normalized := record
		if normalized.AdditionalHintIDs == nil {
			normalized.AdditionalHintIDs = lens.JSONMap{}
		}
		err := s.db.WithContext(ctx).Create(&normalized).Error
		switch {
		case err == nil:
			s.downloader.DownloadUnlockAssets(ctx, normalized.LensID, normalized.LensURL)
			s.logger.Info("unlocked lens", zap.Int64("lens_id", normalized.LensID))
		case errors.Is(err, gorm.ErrDuplicatedKey):
			if forceAssetDownload {
				s.downloader.DownloadUnlockAssets(ctx, normalized.LensID, normalized.LensURL)
			}
		default:
			s.logger.Error("unlock insert failed", zap.Int64("lens_id", normalized.LensID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// InsertUser opportunistically caches a creator identity. Duplicates are a
// silent no-op.
func (s *Store) InsertUser(ctx context.Context, record lens.User) error {
	if strings.TrimSpace(record.CreatorSlug) == "" || strings.TrimSpace(record.CreatorDisplayName) == "" {
		return ErrInvalidUser
	}
	err := s.db.WithContext(ctx).Create(&record).Error
	if err == nil {
		s.logger.Info("new user", zap.String("display_name", record.CreatorDisplayName))
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// MarkLensMirrored records that the lens assets finished downloading.
// Bookkeeping only; failures are logged and never propagated.
func (s *Store) MarkLensMirrored(ctx context.Context, id int64) {
	err := s.db.WithContext(ctx).Model(&lens.Lens{}).
		Where("id = ?", id).
		Update("is_mirrored", true).Error
	if err != nil {
		s.logger.Warn("mark lens mirrored failed", zap.Int64("id", id), zap.Error(err))
	}
}

// MarkUnlockMirrored records that the unlock asset finished downloading.
func (s *Store) MarkUnlockMirrored(ctx context.Context, id int64) {
	err := s.db.WithContext(ctx).Model(&lens.Unlock{}).
		Where("lens_id = ?", id).
		Update("is_mirrored", true).Error
	if err != nil {
		s.logger.Warn("mark unlock mirrored failed", zap.Int64("lens_id", id), zap.Error(err))
	}
}

// normalizeLens fills safe defaults so the row written is fully determined
// by the fields the schema names.
func normalizeLens(record lens.Lens) lens.Lens {
	if record.UUID == "" {
		record.UUID = lens.ParseUUID(record.Deeplink)
	}
	if record.Status == "" {
		record.Status = lens.StatusLive
	}
	if record.ImageSequence == nil {
		record.ImageSequence = lens.JSONMap{}
	}
	return record
}
