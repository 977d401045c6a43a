package models

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnychn/instascrape/pkg/download"
	"github.com/tnychn/instascrape/pkg/logger"
)

// mediaServer serves fake image bytes under any path.
func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "jpeg-bytes-", r.URL.Path)
	}))
	t.Cleanup(server.Close)
	return server
}

func testDownloader(t *testing.T) *download.Downloader {
	t.Helper()
	return download.New(testConfig("http://unused.invalid"), logger.NewTestLogger())
}

func TestPostDownloadSingleMedia(t *testing.T) {
	media := mediaServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/p/B000000/", jsonHandler(fmt.Sprintf(`{"graphql": {"shortcode_media": {
		"__typename": "GraphImage",
		"shortcode": "B000000",
		"taken_at_timestamp": 1500000000,
		"display_resources": [{"src": "%s/p.jpg", "config_width": 1080, "config_height": 1080}]
	}}}`, media.URL)))
	server := newServer(t, mux)

	p, err := PostByShortcode(anonSession(t, server.URL), "B000000")
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, p.Download(testDownloader(t), dest, nil))

	path := filepath.Join(dest, "B000000.jpg")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1500000000), info.ModTime().Unix())
}

func TestPostDownloadSidecarUsesSubdirectory(t *testing.T) {
	media := mediaServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/p/B000001/", jsonHandler(fmt.Sprintf(`{"graphql": {"shortcode_media": {
		"__typename": "GraphSidecar",
		"shortcode": "B000001",
		"taken_at_timestamp": 1500000000,
		"edge_sidecar_to_children": {"edges": [
			{"node": {"__typename": "GraphImage", "display_resources": [{"src": "%s/a.jpg", "config_width": 1080, "config_height": 1080}]}},
			{"node": {"__typename": "GraphImage", "display_resources": [{"src": "%s/b.jpg", "config_width": 1080, "config_height": 1080}]}}
		]}
	}}}`, media.URL, media.URL)))
	server := newServer(t, mux)

	p, err := PostByShortcode(anonSession(t, server.URL), "B000001")
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, p.Download(testDownloader(t), dest, nil))

	assert.FileExists(t, filepath.Join(dest, "B000001", "0.jpg"))
	assert.FileExists(t, filepath.Join(dest, "B000001", "1.jpg"))
}

func TestPostDownloadReportsItemErrors(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(broken.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/p/B000002/", jsonHandler(fmt.Sprintf(`{"graphql": {"shortcode_media": {
		"__typename": "GraphImage",
		"shortcode": "B000002",
		"taken_at_timestamp": 1500000000,
		"display_resources": [{"src": "%s/p.jpg", "config_width": 1080, "config_height": 1080}]
	}}}`, broken.URL)))
	server := newServer(t, mux)

	p, err := PostByShortcode(anonSession(t, server.URL), "B000002")
	require.NoError(t, err)

	var failed []error
	hooks := &DownloadHooks{
		OnItemError: func(_ *Post, _ int, _ MediaItem, err error) {
			failed = append(failed, err)
		},
	}
	dest := t.TempDir()
	require.NoError(t, p.Download(testDownloader(t), dest, hooks))
	require.Len(t, failed, 1)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadAllContinuesAfterBrokenPost(t *testing.T) {
	media := mediaServer(t)
	mux := http.NewServeMux()
	// the first post's payload carries a typename media composition rejects
	mux.HandleFunc("/p/BAD/", jsonHandler(`{"graphql": {"shortcode_media": {
		"__typename": "GraphThing",
		"shortcode": "BAD",
		"taken_at_timestamp": 1500000000
	}}}`))
	mux.HandleFunc("/p/GOOD/", jsonHandler(fmt.Sprintf(`{"graphql": {"shortcode_media": {
		"__typename": "GraphImage",
		"shortcode": "GOOD",
		"taken_at_timestamp": 1500000000,
		"display_resources": [{"src": "%s/g.jpg", "config_width": 1080, "config_height": 1080}]
	}}}`, media.URL)))
	mux.HandleFunc("/johndoe/", jsonHandler(`{"graphql": {"user": {
		"id": "42",
		"username": "johndoe",
		"edge_owner_to_timeline_media": {
			"count": 2,
			"page_info": {"has_next_page": false, "end_cursor": ""},
			"edges": [
				{"node": {"shortcode": "BAD"}},
				{"node": {"shortcode": "GOOD"}}
			]
		}
	}}}`))
	server := newServer(t, mux)

	p, err := ProfileByUsername(anonSession(t, server.URL), "johndoe")
	require.NoError(t, err)

	timeline, err := p.TimelinePosts()
	require.NoError(t, err)

	var broke []*Post
	hooks := &DownloadHooks{
		OnPostError: func(p *Post, _ error) { broke = append(broke, p) },
	}
	dest := t.TempDir()
	require.NoError(t, timeline.DownloadAll(testDownloader(t), dest, hooks))

	require.Len(t, broke, 1)
	assert.Equal(t, "BAD", broke[0].Shortcode())
	assert.FileExists(t, filepath.Join(dest, "GOOD.jpg"))
}
