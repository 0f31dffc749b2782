// Package assets mirrors a record's binary media into a local storage tree.
// The downloader is a best-effort sink: every failure is logged here and
// nothing is reported back to the store.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lensmirror/backend/internal/lens"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

var errMissingStorageRoot = errors.New("assets: storage root is required")

// MirrorRecorder marks a record once its assets finished downloading.
type MirrorRecorder interface {
	MarkLensMirrored(ctx context.Context, id int64)
	MarkUnlockMirrored(ctx context.Context, id int64)
}

// Config describes the downloader dependencies.
type Config struct {
	StorageRoot string
	Recorder    MirrorRecorder
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Downloader fetches lens media and unlock bundles into local storage.
type Downloader struct {
	root       string
	recorder   MirrorRecorder
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs the downloader.
func New(cfg Config) (*Downloader, error) {
	if cfg.StorageRoot == "" {
		return nil, errMissingStorageRoot
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		root:       cfg.StorageRoot,
		recorder:   cfg.Recorder,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// SetRecorder installs the mirror-status recorder. The store and the
// downloader reference each other, so the recorder is wired after both are
// constructed and before any request is served.
func (d *Downloader) SetRecorder(recorder MirrorRecorder) {
	d.recorder = recorder
}

// DownloadLensAssets fetches every media URL the record carries. The row is
// marked mirrored only when all present assets landed on disk.
func (d *Downloader) DownloadLensAssets(ctx context.Context, record lens.Lens) {
	targets := map[string]string{
		"snapcode.png":         record.SnapcodeURL,
		"icon.png":             record.IconURL,
		"thumbnail.webp":       record.ThumbnailMediaURL,
		"thumbnail_poster.jpg": record.ThumbnailMediaPosterURL,
		"standard.mp4":         record.StandardMediaURL,
		"standard_poster.jpg":  record.StandardMediaPosterURL,
	}
	for frame, sequenceURL := range record.ImageSequence {
		targets["sequence_"+frame+path.Ext(stripQuery(sequenceURL))] = sequenceURL
	}

	dir := filepath.Join(d.root, "lenses", strconv.FormatInt(record.ID, 10))
	complete := true
	for name, assetURL := range targets {
		if assetURL == "" {
			continue
		}
		if err := d.fetchToFile(ctx, assetURL, filepath.Join(dir, name)); err != nil {
			d.logger.Warn("lens asset download failed",
				zap.Int64("id", record.ID),
				zap.String("url", assetURL),
				zap.Error(err))
			complete = false
		}
	}

	if complete && d.recorder != nil {
		d.recorder.MarkLensMirrored(ctx, record.ID)
	}
}

// DownloadUnlockAssets fetches the activation bundle for a lens.
func (d *Downloader) DownloadUnlockAssets(ctx context.Context, lensID int64, lensURL string) {
	if lensURL == "" {
		return
	}
	target := filepath.Join(d.root, "unlocks", strconv.FormatInt(lensID, 10)+".lns")
	if err := d.fetchToFile(ctx, lensURL, target); err != nil {
		d.logger.Warn("unlock asset download failed",
			zap.Int64("lens_id", lensID),
			zap.String("url", lensURL),
			zap.Error(err))
		return
	}
	if d.recorder != nil {
		d.recorder.MarkUnlockMirrored(ctx, lensID)
	}
}

// fetchToFile streams a URL to disk, writing through a temp file so a
// partial download never shadows a complete one.
func (d *Downloader) fetchToFile(ctx context.Context, assetURL, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(target); err == nil {
		// already mirrored
		return nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return err
	}
	response, err := d.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("assets: unexpected status %d", response.StatusCode)
	}

	tmp := target + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, response.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

func stripQuery(assetURL string) string {
	parsed, err := url.Parse(assetURL)
	if err != nil {
		return assetURL
	}
	return parsed.Path
}
