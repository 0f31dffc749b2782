package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lensmirror/backend/internal/lens"
)

type fakeRecorder struct {
	lensMarks   []int64
	unlockMarks []int64
}

func (f *fakeRecorder) MarkLensMirrored(_ context.Context, id int64) {
	f.lensMarks = append(f.lensMarks, id)
}

func (f *fakeRecorder) MarkUnlockMirrored(_ context.Context, id int64) {
	f.unlockMarks = append(f.unlockMarks, id)
}

func TestDownloadLensAssetsWritesFilesAndMarksMirrored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	t.Cleanup(server.Close)

	recorder := &fakeRecorder{}
	root := t.TempDir()
	downloader, err := New(Config{StorageRoot: root, Recorder: recorder})
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}

	downloader.DownloadLensAssets(context.Background(), lens.Lens{
		ID:          42,
		SnapcodeURL: server.URL + "/snapcode.png",
		IconURL:     server.URL + "/icon.png",
	})

	for _, name := range []string{"snapcode.png", "icon.png"} {
		if _, err := os.Stat(filepath.Join(root, "lenses", "42", name)); err != nil {
			t.Fatalf("expected %s on disk: %v", name, err)
		}
	}
	if len(recorder.lensMarks) != 1 || recorder.lensMarks[0] != 42 {
		t.Fatalf("expected lens marked mirrored, got %v", recorder.lensMarks)
	}
}

func TestDownloadLensAssetsDoesNotMarkOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	recorder := &fakeRecorder{}
	downloader, err := New(Config{StorageRoot: t.TempDir(), Recorder: recorder})
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}

	downloader.DownloadLensAssets(context.Background(), lens.Lens{
		ID:          43,
		SnapcodeURL: server.URL + "/snapcode.png",
	})

	if len(recorder.lensMarks) != 0 {
		t.Fatalf("failed download must not mark mirrored, got %v", recorder.lensMarks)
	}
}

func TestDownloadUnlockAssets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bundle"))
	}))
	t.Cleanup(server.Close)

	recorder := &fakeRecorder{}
	root := t.TempDir()
	downloader, err := New(Config{StorageRoot: root, Recorder: recorder})
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}

	downloader.DownloadUnlockAssets(context.Background(), 42, server.URL+"/42.lns")

	if _, err := os.Stat(filepath.Join(root, "unlocks", "42.lns")); err != nil {
		t.Fatalf("expected unlock bundle on disk: %v", err)
	}
	if len(recorder.unlockMarks) != 1 || recorder.unlockMarks[0] != 42 {
		t.Fatalf("expected unlock marked mirrored, got %v", recorder.unlockMarks)
	}

	// empty URL is a no-op
	downloader.DownloadUnlockAssets(context.Background(), 43, "")
	if len(recorder.unlockMarks) != 1 {
		t.Fatalf("empty url must not mark mirrored")
	}
}

func TestDownloadSkipsExistingFiles(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("payload"))
	}))
	t.Cleanup(server.Close)

	downloader, err := New(Config{StorageRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}

	record := lens.Lens{ID: 44, IconURL: server.URL + "/icon.png"}
	downloader.DownloadLensAssets(context.Background(), record)
	downloader.DownloadLensAssets(context.Background(), record)

	if requests != 1 {
		t.Fatalf("expected already-mirrored file to be skipped, got %d requests", requests)
	}
}

func TestNewRequiresStorageRoot(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing storage root")
	}
}
