package models

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tnychn/instascrape/pkg/download"
)

// Download fetches every media item of this post into dest. Multi-media
// posts get a subdirectory named after the shortcode with items numbered by
// position; single-media posts are written directly under dest with the
// shortcode as the base name. Each written file's modification time is set
// to the post's creation timestamp. A failure on one item is reported
// through the hooks and does not interrupt the remaining items.
func (p *Post) Download(d *download.Downloader, dest string, hooks *DownloadHooks) error {
	if dest == "" {
		dest = "."
	}
	items, err := p.MediaItems()
	if err != nil {
		return err
	}
	created, err := p.CreatedTime()
	if err != nil {
		return err
	}

	multi := len(items) > 1
	dir := dest
	if multi {
		dir = filepath.Join(dest, p.shortcode)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	p.session.Logger().DebugWithFields("downloading post", map[string]interface{}{
		"post":  p.Label(),
		"media": len(items),
		"dest":  dir,
	})
	for i, item := range items {
		hooks.itemStart(p, i, item)

		baseName := p.shortcode
		if multi {
			baseName = strconv.Itoa(i)
		}
		result, err := item.Download(d, dir, baseName)
		if err != nil {
			p.session.Logger().ErrorWithFields("failed to download media item", map[string]interface{}{
				"post":  p.Label(),
				"index": i,
				"error": err.Error(),
			})
			hooks.itemError(p, i, item, err)
			continue
		}
		if result.Path != "" {
			if err := download.SetModTime(result.Path, time.Unix(created, 0)); err != nil {
				return err
			}
		}
		hooks.itemFinish(p, i, item, result.Path)
	}
	return nil
}
