package models

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/tnychn/instascrape/pkg/download"
	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/instagram"
)

// StoryFields is the informational field whitelist of a plain Story.
var StoryFields = []string{"typename", "id", "reel_count"}

// Story is a reel of ephemeral media items. Stories are constructed from a
// complete reel payload; they never hydrate lazily.
type Story struct {
	data gjson.Result
}

// Typename returns the reel's typename.
func (s *Story) Typename() string {
	return s.data.Get("__typename").String()
}

// ID returns the reel's id.
func (s *Story) ID() string {
	return s.data.Get("id").String()
}

// ReelItems returns the reel's media items.
func (s *Story) ReelItems() []ReelItem {
	return ComposeReelItems(s.data)
}

// ReelCount returns the number of media items in the reel.
func (s *Story) ReelCount() int {
	return len(s.ReelItems())
}

// Fields exports the whitelisted informational fields.
func (s *Story) Fields() (map[string]interface{}, error) {
	return map[string]interface{}{
		"typename":   s.Typename(),
		"id":         s.ID(),
		"reel_count": s.ReelCount(),
	}, nil
}

// Download fetches every reel item of this story into dest. Files are named
// after each item's creation time and have their modification time set to
// it. A failure on one item is reported through the hooks and does not
// interrupt the remaining items.
func (s *Story) Download(d *download.Downloader, dest string, hooks *ReelDownloadHooks) error {
	if dest == "" {
		dest = "."
	}
	items := s.ReelItems()
	for i, item := range items {
		hooks.start(i, item)

		created := time.Unix(item.CreatedTime(), 0)
		result, err := item.Download(d, dest, created.Format("2006-01-02-150405"))
		if err != nil {
			hooks.fail(i, item, err)
			continue
		}
		if result.Path != "" {
			if err := download.SetModTime(result.Path, created); err != nil {
				return err
			}
		}
		hooks.finish(i, item, result.Path)
	}
	return nil
}

// ReelDownloadHooks observe a story download. Every hook is optional.
type ReelDownloadHooks struct {
	OnItemStart  func(int, ReelItem)
	OnItemFinish func(int, ReelItem, string)
	OnItemError  func(int, ReelItem, error)
}

func (h *ReelDownloadHooks) start(i int, item ReelItem) {
	if h != nil && h.OnItemStart != nil {
		h.OnItemStart(i, item)
	}
}

func (h *ReelDownloadHooks) finish(i int, item ReelItem, path string) {
	if h != nil && h.OnItemFinish != nil {
		h.OnItemFinish(i, item, path)
	}
}

func (h *ReelDownloadHooks) fail(i int, item ReelItem, err error) {
	if h != nil && h.OnItemError != nil {
		h.OnItemError(i, item, err)
	}
}

// UserStoryFields is the informational field whitelist of a UserStory.
var UserStoryFields = []string{
	"typename", "id", "latest_reel_media", "reel_count",
	"owner_username", "owner_id", "owner_profile_picture_url", "seen_time",
}

// UserStory is the story reel of a profile.
type UserStory struct {
	Story
}

// NewUserStory wraps a profile's reel payload.
func NewUserStory(data gjson.Result) *UserStory {
	return &UserStory{Story{data: data}}
}

// LatestReelMedia returns the creation timestamp of the newest reel item.
func (s *UserStory) LatestReelMedia() int64 {
	return s.data.Get("latest_reel_media").Int()
}

// OwnerUsername returns the owning account's username.
func (s *UserStory) OwnerUsername() string {
	return s.data.Get("owner.username").String()
}

// OwnerID returns the owning account's id.
func (s *UserStory) OwnerID() string {
	return s.data.Get("owner.id").String()
}

// OwnerProfilePictureURL returns the URL of the owner's profile picture.
func (s *UserStory) OwnerProfilePictureURL() string {
	return s.data.Get("owner.profile_pic_url").String()
}

// OwnerProfilePicture returns the owner's profile picture as a media item.
func (s *UserStory) OwnerProfilePicture() MediaItem {
	return MediaItem{Typename: "GraphImage", Src: s.OwnerProfilePictureURL(), Width: 150, Height: 150}
}

// SeenTime returns when the viewer last saw this story, zero when unseen.
func (s *UserStory) SeenTime() int64 {
	return s.data.Get("seen").Int()
}

// Fields exports the whitelisted informational fields.
func (s *UserStory) Fields() (map[string]interface{}, error) {
	return map[string]interface{}{
		"typename":                  s.Typename(),
		"id":                        s.ID(),
		"latest_reel_media":         s.LatestReelMedia(),
		"reel_count":                s.ReelCount(),
		"owner_username":            s.OwnerUsername(),
		"owner_id":                  s.OwnerID(),
		"owner_profile_picture_url": s.OwnerProfilePictureURL(),
		"seen_time":                 s.SeenTime(),
	}, nil
}

// HashtagStoryFields is the informational field whitelist of a HashtagStory.
var HashtagStoryFields = []string{"typename", "id", "latest_reel_media", "reel_count", "tagname"}

// HashtagStory is the story reel of a hashtag.
type HashtagStory struct {
	Story
}

// NewHashtagStory wraps a hashtag's reel payload.
func NewHashtagStory(data gjson.Result) *HashtagStory {
	return &HashtagStory{Story{data: data}}
}

// LatestReelMedia returns the creation timestamp of the newest reel item.
func (s *HashtagStory) LatestReelMedia() int64 {
	return s.data.Get("latest_reel_media").Int()
}

// Tagname returns the owning hashtag's tag name.
func (s *HashtagStory) Tagname() string {
	return s.data.Get("owner.name").String()
}

// Fields exports the whitelisted informational fields.
func (s *HashtagStory) Fields() (map[string]interface{}, error) {
	return map[string]interface{}{
		"typename":          s.Typename(),
		"id":                s.ID(),
		"latest_reel_media": s.LatestReelMedia(),
		"reel_count":        s.ReelCount(),
		"tagname":           s.Tagname(),
	}, nil
}

// HighlightFields is the informational field whitelist of a Highlight.
var HighlightFields = []string{
	"typename", "id", "title", "cover_media_thumbnail",
	"owner_username", "owner_id", "owner_profile_picture_url", "reel_count",
}

// Highlight is a permanent story reel pinned on a profile. It merges the
// reel payload with the highlight metadata node (title, cover, owner).
type Highlight struct {
	Story
	meta gjson.Result
}

// NewHighlight wraps a highlight's reel payload and its metadata node.
func NewHighlight(reel, meta gjson.Result) *Highlight {
	return &Highlight{Story: Story{data: reel}, meta: meta}
}

// get prefers the metadata node over the reel payload.
func (h *Highlight) get(path string) gjson.Result {
	if v := h.meta.Get(path); v.Exists() {
		return v
	}
	return h.data.Get(path)
}

// Title returns the highlight's title.
func (h *Highlight) Title() string {
	return h.get("title").String()
}

// CoverMediaThumbnail returns the URL of the cover thumbnail.
func (h *Highlight) CoverMediaThumbnail() string {
	return h.get("cover_media.thumbnail_src").String()
}

// OwnerUsername returns the owning account's username.
func (h *Highlight) OwnerUsername() string {
	return h.get("owner.username").String()
}

// OwnerID returns the owning account's id.
func (h *Highlight) OwnerID() string {
	return h.get("owner.id").String()
}

// OwnerProfilePictureURL returns the URL of the owner's profile picture.
func (h *Highlight) OwnerProfilePictureURL() string {
	return h.get("owner.profile_pic_url").String()
}

// OwnerProfilePicture returns the owner's profile picture as a media item.
func (h *Highlight) OwnerProfilePicture() MediaItem {
	return MediaItem{Typename: "GraphImage", Src: h.OwnerProfilePictureURL(), Width: 150, Height: 150}
}

// Fields exports the whitelisted informational fields.
func (h *Highlight) Fields() (map[string]interface{}, error) {
	return map[string]interface{}{
		"typename":                  h.Typename(),
		"id":                        h.ID(),
		"title":                     h.Title(),
		"cover_media_thumbnail":     h.CoverMediaThumbnail(),
		"owner_username":            h.OwnerUsername(),
		"owner_id":                  h.OwnerID(),
		"owner_profile_picture_url": h.OwnerProfilePictureURL(),
		"reel_count":                h.ReelCount(),
	}, nil
}

// Story retrieves the currently visible story of this profile, or nil when
// none is visible. Requires an authenticated session.
func (p *Profile) Story() (*UserStory, error) {
	if !p.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving story", map[string]interface{}{
		"username": p.username,
	})
	data, err := p.session.GraphQL(instagram.QueryHashReelItems, map[string]interface{}{
		"reel_ids":               []string{id},
		"precomposed_overlay":    false,
		"show_story_viewer_list": false,
	})
	if err != nil {
		return nil, err
	}
	reels := data.Get("reels_media").Array()
	if len(reels) == 0 {
		p.session.Logger().Warn("no story is visible for this profile")
		return nil, nil
	}
	return NewUserStory(reels[0]), nil
}

// Highlights retrieves this profile's story highlights. Requires an
// authenticated session.
func (p *Profile) Highlights() ([]*Highlight, error) {
	if !p.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving story highlights", map[string]interface{}{
		"username": p.username,
	})

	data, err := p.session.GraphQL(instagram.QueryHashHighlights, map[string]interface{}{
		"user_id":                   id,
		"include_chaining":          false,
		"include_reel":              false,
		"include_suggested_users":   false,
		"include_logged_out_extras": false,
		"include_highlight_reels":   true,
	})
	if err != nil {
		return nil, err
	}
	edges := data.Get("user.edge_highlight_reels.edges").Array()
	if len(edges) == 0 {
		p.session.Logger().Warn("no visible highlight is found for this profile")
		return nil, nil
	}

	metaByID := make(map[string]gjson.Result, len(edges))
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		node := edge.Get("node")
		id := node.Get("id").String()
		metaByID[id] = node
		ids = append(ids, id)
	}

	data, err = p.session.GraphQL(instagram.QueryHashReelItems, map[string]interface{}{
		"highlight_reel_ids":     ids,
		"precomposed_overlay":    false,
		"show_story_viewer_list": false,
	})
	if err != nil {
		return nil, err
	}

	var highlights []*Highlight
	for _, reel := range data.Get("reels_media").Array() {
		meta, ok := metaByID[reel.Get("id").String()]
		if !ok {
			continue
		}
		highlights = append(highlights, NewHighlight(reel, meta))
	}
	return highlights, nil
}
