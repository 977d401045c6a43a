// Package models holds the domain entities (profiles, posts, hashtags,
// stories and their media items). Entities are constructed from the minimal
// data a query edge carries and hydrate their full payload lazily, at most
// once; they hold a non-owning session reference used only to issue fetches.
package models

import (
	"sort"

	"github.com/tidwall/gjson"

	"github.com/tnychn/instascrape/pkg/download"
	errs "github.com/tnychn/instascrape/pkg/errors"
)

// MediaItemFields is the informational field whitelist of a MediaItem.
var MediaItemFields = []string{"typename", "src", "width", "height", "is_video"}

// MediaItem is a single image or video of a post.
type MediaItem struct {
	Typename string
	Src      string
	Width    int64
	Height   int64
}

// IsVideo reports whether this media item is a video.
func (m MediaItem) IsVideo() bool {
	return m.Typename == "GraphVideo"
}

// Fields returns the whitelisted informational fields.
func (m MediaItem) Fields() map[string]interface{} {
	return map[string]interface{}{
		"typename": m.Typename,
		"src":      m.Src,
		"width":    m.Width,
		"height":   m.Height,
		"is_video": m.IsVideo(),
	}
}

// Download fetches this media item into destDir under baseName.
func (m MediaItem) Download(d *download.Downloader, destDir, baseName string) (download.Result, error) {
	return d.Fetch(m.Src, destDir, baseName)
}

// biggestResource picks the largest entry of a display/video resource list
// by pixel dimensions.
func biggestResource(resources []gjson.Result) gjson.Result {
	if len(resources) == 0 {
		return gjson.Result{}
	}
	sorted := make([]gjson.Result, len(resources))
	copy(sorted, resources)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := sorted[i].Get("config_width").Int() * sorted[i].Get("config_height").Int()
		b := sorted[j].Get("config_width").Int() * sorted[j].Get("config_height").Int()
		return a > b
	})
	return sorted[0]
}

func mediaItemFromNode(node gjson.Result) (MediaItem, error) {
	typename := node.Get("__typename").String()
	switch typename {
	case "GraphImage":
		item := biggestResource(node.Get("display_resources").Array())
		return MediaItem{
			Typename: typename,
			Src:      item.Get("src").String(),
			Width:    item.Get("config_width").Int(),
			Height:   item.Get("config_height").Int(),
		}, nil
	case "GraphVideo":
		return MediaItem{
			Typename: typename,
			Src:      node.Get("video_url").String(),
		}, nil
	default:
		return MediaItem{}, &errs.ExtractionError{Message: "unrecognized media typename: " + typename}
	}
}

// ComposeMediaItems extracts the media items of a post node. A sidecar post
// yields one item per child; single-media posts yield one.
func ComposeMediaItems(data gjson.Result) ([]MediaItem, error) {
	typename := data.Get("__typename").String()
	switch typename {
	case "GraphImage", "GraphVideo":
		item, err := mediaItemFromNode(data)
		if err != nil {
			return nil, err
		}
		return []MediaItem{item}, nil
	case "GraphSidecar":
		edges := data.Get("edge_sidecar_to_children.edges").Array()
		items := make([]MediaItem, 0, len(edges))
		for _, edge := range edges {
			item, err := mediaItemFromNode(edge.Get("node"))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, &errs.ExtractionError{Message: "unrecognized media typename: " + typename}
	}
}

// ReelItemFields is the informational field whitelist of a ReelItem.
var ReelItemFields = []string{
	"typename", "src", "width", "height", "is_video",
	"id", "owner_username", "owner_id", "owner_profile_picture_url",
	"created_time", "expire_time", "cta_url",
}

// ReelItem is a single image or video of a story reel.
type ReelItem struct {
	MediaItem
	data gjson.Result
}

// IsVideo reports whether this reel item is a video.
func (r ReelItem) IsVideo() bool {
	return r.Typename == "GraphStoryVideo"
}

// ID returns the reel item's id.
func (r ReelItem) ID() string {
	return r.data.Get("id").String()
}

// OwnerUsername returns the owning account's username.
func (r ReelItem) OwnerUsername() string {
	return r.data.Get("owner.username").String()
}

// OwnerID returns the owning account's id.
func (r ReelItem) OwnerID() string {
	return r.data.Get("owner.id").String()
}

// OwnerProfilePictureURL returns the URL of the owner's profile picture.
func (r ReelItem) OwnerProfilePictureURL() string {
	return r.data.Get("owner.profile_pic_url").String()
}

// OwnerProfilePicture returns the owner's profile picture as a media item.
func (r ReelItem) OwnerProfilePicture() MediaItem {
	return MediaItem{Typename: "GraphImage", Src: r.OwnerProfilePictureURL(), Width: 150, Height: 150}
}

// CreatedTime returns the creation timestamp of this reel item.
func (r ReelItem) CreatedTime() int64 {
	return r.data.Get("taken_at_timestamp").Int()
}

// ExpireTime returns the expiry timestamp of this reel item.
func (r ReelItem) ExpireTime() int64 {
	return r.data.Get("expiring_at_timestamp").Int()
}

// CTAURL returns the "swipe up for more" URL, empty when absent.
func (r ReelItem) CTAURL() string {
	return r.data.Get("story_cta_url").String()
}

// Fields returns the whitelisted informational fields.
func (r ReelItem) Fields() map[string]interface{} {
	return map[string]interface{}{
		"typename":                  r.Typename,
		"src":                       r.Src,
		"width":                     r.Width,
		"height":                    r.Height,
		"is_video":                  r.IsVideo(),
		"id":                        r.ID(),
		"owner_username":            r.OwnerUsername(),
		"owner_id":                  r.OwnerID(),
		"owner_profile_picture_url": r.OwnerProfilePictureURL(),
		"created_time":              r.CreatedTime(),
		"expire_time":               r.ExpireTime(),
		"cta_url":                   r.CTAURL(),
	}
}

func reelItemFromNode(node gjson.Result) ReelItem {
	typename := node.Get("__typename").String()
	var resource gjson.Result
	if typename == "GraphStoryVideo" {
		resource = biggestResource(node.Get("video_resources").Array())
	} else {
		resource = biggestResource(node.Get("display_resources").Array())
	}
	return ReelItem{
		MediaItem: MediaItem{
			Typename: typename,
			Src:      resource.Get("src").String(),
			Width:    resource.Get("config_width").Int(),
			Height:   resource.Get("config_height").Int(),
		},
		data: node,
	}
}

// ComposeReelItems extracts the reel items of a story reel node.
func ComposeReelItems(data gjson.Result) []ReelItem {
	nodes := data.Get("items").Array()
	items := make([]ReelItem, 0, len(nodes))
	for _, node := range nodes {
		items = append(items, reelItemFromNode(node))
	}
	return items
}
