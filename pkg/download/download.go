// Package download streams media files to disk with content-addressed skip
// of already-downloaded files, atomic writes, and timestamp normalization.
package download

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tnychn/instascrape/pkg/config"
	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/logger"
)

// extensions maps the supported media content types to file extensions. Any
// other content type fails the download.
var extensions = map[string]string{
	"video/mp4":  ".mp4",
	"image/jpeg": ".jpg",
}

// Result reports the outcome of a single media download.
type Result struct {
	// Path is the final file path. Empty when the download was skipped.
	Path string
	// Skipped is true when an identical file already existed.
	Skipped bool
}

// Downloader fetches media URLs to disk.
type Downloader struct {
	httpClient *http.Client
	logger     logger.Logger

	// verify selects checksum comparison over byte-size comparison when
	// deciding whether an existing file is the same content.
	verify bool
}

// New creates a downloader from the download and HTTP configuration.
func New(cfg *config.Config, log logger.Logger) *Downloader {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: cfg.HTTP.Timeout},
		logger:     log,
		verify:     cfg.Download.Verify,
	}
}

// Fetch downloads a media URL into destDir under baseName plus the extension
// derived from the response content type. An existing identical file is
// skipped. The file is written to a partial path and renamed into place only
// after the full body is written, so a partially-written file is never
// visible under the final name.
func (d *Downloader) Fetch(srcURL, destDir, baseName string) (Result, error) {
	result, err := d.fetch(srcURL, destDir, baseName)
	if err != nil {
		return Result{}, &errs.DownloadError{URL: srcURL, Err: err}
	}
	return result, nil
}

func (d *Downloader) fetch(srcURL, destDir, baseName string) (Result, error) {
	d.logger.DebugWithFields("downloading file", map[string]interface{}{
		"url":  srcURL,
		"dest": destDir,
	})

	resp, err := d.httpClient.Get(srcURL)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	ext, ok := extensions[contentType]
	if !ok {
		return Result{}, fmt.Errorf("unsupported content type %q", contentType)
	}

	finalPath := filepath.Join(destDir, baseName+ext)
	existing, err := os.Stat(finalPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return Result{}, err
	}

	// without verification an existing file of the declared size is
	// already enough to skip, before reading the body at all
	if exists && !d.verify {
		declared, perr := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
		if perr == nil && existing.Size() == declared {
			d.logger.DebugWithFields("file already downloaded, skipping", map[string]interface{}{
				"path": finalPath,
			})
			return Result{Skipped: true}, nil
		}
	}

	partPath := finalPath + ".part"
	part, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, err
	}

	hash := md5.New()
	var src io.Reader = resp.Body
	if d.verify {
		src = io.TeeReader(resp.Body, hash)
	}
	written, err := io.Copy(part, src)
	if cerr := part.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partPath)
		return Result{}, err
	}

	if exists {
		same, err := d.sameAsExisting(finalPath, hex.EncodeToString(hash.Sum(nil)), written)
		if err != nil {
			os.Remove(partPath)
			return Result{}, err
		}
		if same {
			os.Remove(partPath)
			d.logger.DebugWithFields("file already downloaded, skipping", map[string]interface{}{
				"path": finalPath,
			})
			return Result{Skipped: true}, nil
		}
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return Result{}, err
	}

	d.logger.DebugWithFields("downloaded file", map[string]interface{}{
		"path": finalPath,
		"type": contentType,
		"kB":   written / 1024,
	})
	return Result{Path: finalPath}, nil
}

// sameAsExisting reports whether finalPath already holds the downloaded
// content: by checksum when verification is on, by byte size otherwise.
func (d *Downloader) sameAsExisting(finalPath, downloadedSum string, written int64) (bool, error) {
	info, err := os.Stat(finalPath)
	if err != nil {
		return false, err
	}
	if !d.verify {
		return info.Size() == written, nil
	}
	existingSum, err := fileChecksum(finalPath)
	if err != nil {
		return false, err
	}
	return existingSum == downloadedSum, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// SetModTime sets a file's modification time, typically to the owning
// entity's creation timestamp so directory listings reflect content
// chronology.
func SetModTime(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}
