package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
)

func TestComposeMediaItemsImagePicksLargestResource(t *testing.T) {
	data := gjson.Parse(`{
		"__typename": "GraphImage",
		"display_resources": [
			{"src": "https://cdn/s.jpg", "config_width": 640, "config_height": 640},
			{"src": "https://cdn/l.jpg", "config_width": 1080, "config_height": 1080},
			{"src": "https://cdn/m.jpg", "config_width": 750, "config_height": 750}
		]
	}`)

	items, err := ComposeMediaItems(data)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn/l.jpg", items[0].Src)
	assert.Equal(t, int64(1080), items[0].Width)
	assert.False(t, items[0].IsVideo())
}

func TestComposeMediaItemsVideo(t *testing.T) {
	data := gjson.Parse(`{"__typename": "GraphVideo", "video_url": "https://cdn/v.mp4"}`)

	items, err := ComposeMediaItems(data)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn/v.mp4", items[0].Src)
	assert.True(t, items[0].IsVideo())
}

func TestComposeMediaItemsSidecarKeepsOrder(t *testing.T) {
	data := gjson.Parse(`{
		"__typename": "GraphSidecar",
		"edge_sidecar_to_children": {"edges": [
			{"node": {"__typename": "GraphImage", "display_resources": [{"src": "https://cdn/1.jpg", "config_width": 1080, "config_height": 1080}]}},
			{"node": {"__typename": "GraphVideo", "video_url": "https://cdn/2.mp4"}},
			{"node": {"__typename": "GraphImage", "display_resources": [{"src": "https://cdn/3.jpg", "config_width": 1080, "config_height": 1080}]}}
		]}
	}`)

	items, err := ComposeMediaItems(data)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "https://cdn/1.jpg", items[0].Src)
	assert.Equal(t, "https://cdn/2.mp4", items[1].Src)
	assert.Equal(t, "https://cdn/3.jpg", items[2].Src)
}

func TestComposeMediaItemsUnknownTypename(t *testing.T) {
	data := gjson.Parse(`{"__typename": "GraphThing"}`)

	_, err := ComposeMediaItems(data)
	assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
}

func TestReelItemVideoUsesVideoResources(t *testing.T) {
	data := gjson.Parse(`{"items": [{
		"__typename": "GraphStoryVideo",
		"id": "777",
		"taken_at_timestamp": 1500000000,
		"expiring_at_timestamp": 1500086400,
		"story_cta_url": "https://example.com/promo",
		"owner": {"id": "42", "username": "johndoe", "profile_pic_url": "https://cdn/pp.jpg"},
		"video_resources": [
			{"src": "https://cdn/v-small.mp4", "config_width": 480, "config_height": 854},
			{"src": "https://cdn/v-big.mp4", "config_width": 720, "config_height": 1280}
		],
		"display_resources": [{"src": "https://cdn/poster.jpg", "config_width": 1080, "config_height": 1920}]
	}]}`)

	items := ComposeReelItems(data)
	require.Len(t, items, 1)

	item := items[0]
	assert.True(t, item.IsVideo())
	assert.Equal(t, "https://cdn/v-big.mp4", item.Src)
	assert.Equal(t, "777", item.ID())
	assert.Equal(t, "johndoe", item.OwnerUsername())
	assert.Equal(t, int64(1500000000), item.CreatedTime())
	assert.Equal(t, int64(1500086400), item.ExpireTime())
	assert.Equal(t, "https://example.com/promo", item.CTAURL())

	fields := item.Fields()
	assert.Equal(t, true, fields["is_video"])
	assert.Equal(t, "42", fields["owner_id"])
}

func TestReelItemImageUsesDisplayResources(t *testing.T) {
	data := gjson.Parse(`{"items": [{
		"__typename": "GraphStoryImage",
		"display_resources": [{"src": "https://cdn/s.jpg", "config_width": 1080, "config_height": 1920}]
	}]}`)

	items := ComposeReelItems(data)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsVideo())
	assert.Equal(t, "https://cdn/s.jpg", items[0].Src)
}

func TestMediaItemFields(t *testing.T) {
	m := MediaItem{Typename: "GraphVideo", Src: "https://cdn/v.mp4", Width: 720, Height: 1280}

	fields := m.Fields()
	assert.Equal(t, "GraphVideo", fields["typename"])
	assert.Equal(t, true, fields["is_video"])
	assert.Equal(t, int64(720), fields["width"])
}
