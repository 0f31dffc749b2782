package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lensmirror/backend/internal/database"
	"github.com/lensmirror/backend/internal/lens"
)

type recordedDownload struct {
	lensID  int64
	lensURL string
}

type fakeDownloader struct {
	lensDownloads   []recordedDownload
	unlockDownloads []recordedDownload
}

func (f *fakeDownloader) DownloadLensAssets(_ context.Context, record lens.Lens) {
	f.lensDownloads = append(f.lensDownloads, recordedDownload{lensID: record.ID})
}

func (f *fakeDownloader) DownloadUnlockAssets(_ context.Context, lensID int64, lensURL string) {
	f.unlockDownloads = append(f.unlockDownloads, recordedDownload{lensID: lensID, lensURL: lensURL})
}

var testDBSequence int

func newTestStore(t *testing.T, opts Options) (*Store, *fakeDownloader) {
	t.Helper()
	testDBSequence++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", testDBSequence)
	db, err := database.OpenSQLite(dsn, 1, nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	downloader := &fakeDownloader{}
	recordStore, err := New(Config{Database: db, Downloader: downloader, Options: opts})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, dbErr := db.DB()
		if dbErr == nil {
			sqlDB.Close()
		}
	})
	return recordStore, downloader
}

func testLens(id int64) lens.Lens {
	return lens.Lens{
		ID:                 id,
		UUID:               fmt.Sprintf("%032x", id),
		Name:               fmt.Sprintf("Lens %d", id),
		CreatorDisplayName: "Ada",
		Tags:               "rainbow color",
	}
}

func TestInsertLensIsIdempotent(t *testing.T) {
	recordStore, downloader := newTestStore(t, Options{})
	ctx := context.Background()

	first := testLens(1)
	if err := recordStore.InsertLens(ctx, first, false); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := testLens(1)
	second.Name = "Renamed"
	if err := recordStore.InsertLens(ctx, second, false); err != nil {
		t.Fatalf("duplicate insert should be a silent no-op, got %v", err)
	}

	stored := recordStore.GetByID(ctx, 1)
	if len(stored) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(stored))
	}
	if stored[0].Name != "Lens 1" {
		t.Fatalf("duplicate insert mutated the row: %q", stored[0].Name)
	}
	if len(downloader.lensDownloads) != 1 {
		t.Fatalf("expected one asset download, got %d", len(downloader.lensDownloads))
	}
}

func TestForcedRepairIsMetadataInert(t *testing.T) {
	recordStore, downloader := newTestStore(t, Options{})
	ctx := context.Background()

	if err := recordStore.InsertLens(ctx, testLens(7), false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	repair := testLens(7)
	repair.Name = "Corrupted Name"
	if err := recordStore.InsertLens(ctx, repair, true); err != nil {
		t.Fatalf("forced repair: %v", err)
	}

	stored := recordStore.GetByID(ctx, 7)
	if len(stored) != 1 || stored[0].Name != "Lens 7" {
		t.Fatalf("forced repair changed stored metadata: %+v", stored)
	}
	if len(downloader.lensDownloads) != 2 {
		t.Fatalf("forced repair should re-trigger asset download, got %d downloads", len(downloader.lensDownloads))
	}
}

func TestInsertLensRejectsMissingRequiredFields(t *testing.T) {
	recordStore, downloader := newTestStore(t, Options{})
	ctx := context.Background()

	err := recordStore.InsertLens(ctx, lens.Lens{}, false)
	if !errors.Is(err, ErrInvalidLens) {
		t.Fatalf("expected ErrInvalidLens, got %v", err)
	}
	if len(downloader.lensDownloads) != 0 {
		t.Fatalf("rejected insert must not download assets")
	}
	if existing := recordStore.FilterExisting(ctx, []int64{0}); len(existing) != 0 {
		t.Fatalf("rejected insert must not write: %v", existing)
	}
}

func TestInsertLensNormalizesDefaults(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	record := lens.Lens{
		ID:                 3,
		Name:               "Minimal",
		CreatorDisplayName: "Ada",
		Deeplink:           "https://www.snapchat.com/unlock/?type=SNAPCODE&uuid=00000000000000000000000000000003",
	}
	if err := recordStore.InsertLens(ctx, record, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stored := recordStore.GetByID(ctx, 3)
	if len(stored) != 1 {
		t.Fatalf("expected one row")
	}
	if stored[0].UUID != "00000000000000000000000000000003" {
		t.Fatalf("uuid not derived from deeplink: %q", stored[0].UUID)
	}
	if stored[0].Status != lens.StatusLive {
		t.Fatalf("status not defaulted: %q", stored[0].Status)
	}
	if stored[0].ImageSequence == nil || len(stored[0].ImageSequence) != 0 {
		t.Fatalf("image sequence not defaulted: %#v", stored[0].ImageSequence)
	}
}

func TestInsertLensCachesCreatorIdentity(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	record := testLens(9)
	record.CreatorSlug = "slug-ada"
	if err := recordStore.InsertLens(ctx, record, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if slug := recordStore.CreatorSlugByDisplayName(ctx, "Ada"); slug != "slug-ada" {
		t.Fatalf("expected opportunistic user insert, got slug %q", slug)
	}
	if slug := recordStore.CreatorSlugByDisplayName(ctx, "Unknown"); slug != "" {
		t.Fatalf("expected empty slug for unknown creator, got %q", slug)
	}
}

func TestWebSourceGating(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	local := testLens(1)
	remote := testLens(2)
	remote.IsWebSourced = true
	if err := recordStore.InsertLenses(ctx, []lens.Lens{local, remote}, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	results := recordStore.SearchByName(ctx, "Lens")
	if len(results) != 1 || results[0].ID != 1 {
		t.Fatalf("web-sourced row leaked into read results: %+v", results)
	}
	if existing := recordStore.FilterExisting(ctx, []int64{1, 2, 3}); len(existing) != 1 || existing[0] != 1 {
		t.Fatalf("unexpected existing ids: %v", existing)
	}
}

func TestWebSourceIncludedWhenEnabled(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{EnableWebSource: true})
	ctx := context.Background()

	remote := testLens(2)
	remote.IsWebSourced = true
	if err := recordStore.InsertLens(ctx, remote, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if results := recordStore.SearchByName(ctx, "Lens"); len(results) != 1 {
		t.Fatalf("expected web-sourced row to be included, got %d rows", len(results))
	}
}

func TestSearchByNameMatchesCreator(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	if err := recordStore.InsertLens(ctx, testLens(5), false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if results := recordStore.SearchByName(ctx, "ada"); len(results) != 1 {
		t.Fatalf("expected case-insensitive creator match, got %d rows", len(results))
	}
	if results := recordStore.SearchByName(ctx, "nothing"); len(results) != 0 {
		t.Fatalf("expected no match, got %d rows", len(results))
	}
}

func TestSearchByTags(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	if err := recordStore.InsertLens(ctx, testLens(6), false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if results := recordStore.SearchByTags(ctx, []string{"missing", "rainbow"}); len(results) != 1 {
		t.Fatalf("expected tag OR match, got %d rows", len(results))
	}
	if results := recordStore.SearchByTags(ctx, nil); len(results) != 0 {
		t.Fatalf("expected empty result for empty tag list")
	}
}

func TestMediaFilterCollapsesAlternateMedia(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{IgnoreAltMedia: true})
	ctx := context.Background()

	record := testLens(8)
	record.ThumbnailMediaPosterURL = "https://cdn.example.com/poster.jpg"
	record.StandardMediaURL = "https://cdn.example.com/standard.mp4"
	record.ImageSequence = lens.JSONMap{"0": "https://cdn.example.com/0.webp"}
	if err := recordStore.InsertLens(ctx, record, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	results := recordStore.GetByID(ctx, 8)
	if len(results) != 1 {
		t.Fatalf("expected one row")
	}
	if results[0].ThumbnailMediaURL != "https://cdn.example.com/poster.jpg" {
		t.Fatalf("thumbnail not collapsed from poster: %q", results[0].ThumbnailMediaURL)
	}
	if results[0].StandardMediaURL != "" || len(results[0].ImageSequence) != 0 {
		t.Fatalf("alternate media not dropped: %+v", results[0])
	}
}

func TestInsertUnlockIdempotentWithForcedDownload(t *testing.T) {
	recordStore, downloader := newTestStore(t, Options{})
	ctx := context.Background()

	unlock := lens.Unlock{LensID: 11, LensURL: "https://cdn.example.com/11.lns"}
	if err := recordStore.InsertUnlock(ctx, unlock, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := recordStore.InsertUnlock(ctx, unlock, false); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if len(downloader.unlockDownloads) != 1 {
		t.Fatalf("expected one unlock download, got %d", len(downloader.unlockDownloads))
	}

	if err := recordStore.InsertUnlock(ctx, unlock, true); err != nil {
		t.Fatalf("forced insert: %v", err)
	}
	if len(downloader.unlockDownloads) != 2 {
		t.Fatalf("forced duplicate should re-download, got %d", len(downloader.unlockDownloads))
	}

	if err := recordStore.InsertUnlock(ctx, lens.Unlock{LensID: 12}, false); !errors.Is(err, ErrInvalidUnlock) {
		t.Fatalf("expected ErrInvalidUnlock, got %v", err)
	}
}

func TestMarkMirroredTransitions(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	if err := recordStore.InsertLens(ctx, testLens(20), false); err != nil {
		t.Fatalf("insert lens: %v", err)
	}
	unlock := lens.Unlock{LensID: 20, LensURL: "https://cdn.example.com/20.lns"}
	if err := recordStore.InsertUnlock(ctx, unlock, false); err != nil {
		t.Fatalf("insert unlock: %v", err)
	}

	recordStore.MarkLensMirrored(ctx, 20)
	recordStore.MarkUnlockMirrored(ctx, 20)

	if stored := recordStore.GetByID(ctx, 20); len(stored) != 1 || !stored[0].IsMirrored {
		t.Fatalf("lens not marked mirrored: %+v", stored)
	}
	if unlocks := recordStore.GetUnlockByLensID(ctx, 20); len(unlocks) != 1 || !unlocks[0].IsMirrored {
		t.Fatalf("unlock not marked mirrored: %+v", unlocks)
	}
}

func TestGetByIDsAndUnlockLookup(t *testing.T) {
	recordStore, _ := newTestStore(t, Options{})
	ctx := context.Background()

	if err := recordStore.InsertLenses(ctx, []lens.Lens{testLens(31), testLens(32)}, false); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if results := recordStore.GetByIDs(ctx, []int64{31, 32, 33}); len(results) != 2 {
		t.Fatalf("expected two rows, got %d", len(results))
	}
	if results := recordStore.GetByIDs(ctx, nil); len(results) != 0 {
		t.Fatalf("expected empty result for empty id list")
	}
	if unlocks := recordStore.GetUnlockByLensID(ctx, 31); len(unlocks) != 0 {
		t.Fatalf("expected no unlock, got %+v", unlocks)
	}
}

func TestNewStoreRequiresDatabase(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing database")
	}
}
