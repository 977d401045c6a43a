package models

import (
	"fmt"

	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/instagram"
)

// HashtagFields is the informational field whitelist of a Hashtag.
var HashtagFields = []string{"tagname", "id", "profile_picture_url"}

// Hashtag is a tag page, identified by its tag name.
type Hashtag struct {
	session *instagram.Session
	tagname string

	initData gjson.Result
	fullData gjson.Result
	loaded   bool
}

// NewHashtag wraps a hashtag node.
func NewHashtag(session *instagram.Session, node gjson.Result) *Hashtag {
	return &Hashtag{
		session:  session,
		tagname:  node.Get("name").String(),
		initData: node,
	}
}

// HashtagByName fetches a hashtag's full data by tag name.
func HashtagByName(session *instagram.Session, tagname string) (*Hashtag, error) {
	h := &Hashtag{session: session, tagname: tagname}
	if err := h.EnsureLoaded(); err != nil {
		return nil, err
	}
	return h, nil
}

// Label identifies this hashtag in logs and error buckets.
func (h *Hashtag) Label() string {
	return "Hashtag(#" + h.tagname + ")"
}

// EnsureLoaded fetches the hashtag's full payload if it has not been fetched
// yet. The payload is fetched at most once.
func (h *Hashtag) EnsureLoaded() error {
	if h.loaded {
		return nil
	}
	h.session.Logger().DebugWithFields("fetching full data of hashtag", map[string]interface{}{
		"tagname": h.tagname,
	})
	data, err := h.session.FetchHashtag(h.tagname)
	if err != nil {
		return err
	}
	h.fullData = data
	h.loaded = true
	return nil
}

// Reload discards the memoized payload and fetches it again.
func (h *Hashtag) Reload() error {
	h.loaded = false
	return h.EnsureLoaded()
}

func (h *Hashtag) find(path string) (gjson.Result, error) {
	if v := h.initData.Get(path); v.Exists() {
		return v, nil
	}
	if !h.loaded {
		if err := h.EnsureLoaded(); err != nil {
			return gjson.Result{}, err
		}
	}
	if v := h.fullData.Get(path); v.Exists() {
		return v, nil
	}
	return gjson.Result{}, &errs.ExtractionError{Message: fmt.Sprintf("hashtag %s has no field %q", h.tagname, path)}
}

// Tagname returns the hashtag's tag name.
func (h *Hashtag) Tagname() string {
	return h.tagname
}

// ID returns the hashtag's id.
func (h *Hashtag) ID() (string, error) {
	v, err := h.find("id")
	return v.String(), err
}

// ProfilePictureURL returns the URL of the hashtag's cover picture.
func (h *Hashtag) ProfilePictureURL() (string, error) {
	v, err := h.find("profile_pic_url")
	return v.String(), err
}

// ProfilePicture returns the hashtag's cover picture as a media item.
func (h *Hashtag) ProfilePicture() (MediaItem, error) {
	src, err := h.ProfilePictureURL()
	if err != nil {
		return MediaItem{}, err
	}
	return MediaItem{Typename: "GraphImage", Src: src, Width: 320, Height: 320}, nil
}

// Fields exports the whitelisted informational fields, hydrating on demand.
func (h *Hashtag) Fields() (map[string]interface{}, error) {
	id, err := h.ID()
	if err != nil {
		return nil, err
	}
	picture, err := h.ProfilePictureURL()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"tagname":             h.tagname,
		"id":                  id,
		"profile_picture_url": picture,
	}, nil
}

// TopPosts retrieves the hashtag's top posts section. The section is a
// fixed-size view served with the hashtag's full payload; it never
// paginates.
func (h *Hashtag) TopPosts() (*PostGroup, error) {
	if err := h.EnsureLoaded(); err != nil {
		return nil, err
	}
	h.session.Logger().InfoWithFields("retrieving top posts", map[string]interface{}{
		"tagname": h.tagname,
	})
	edges, err := h.session.QueryEdges(instagram.EdgeQuery{
		ConnectionPath: "hashtag.edge_hashtag_to_top_posts",
		Seed:           h.fullData.Get("edge_hashtag_to_top_posts"),
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(h.session, edges, func(node gjson.Result) groupItem {
		return NewPost(h.session, node)
	}), nil
}

// RecentPosts retrieves the hashtag's most recent posts.
func (h *Hashtag) RecentPosts() (*PostGroup, error) {
	h.session.Logger().InfoWithFields("retrieving recent posts", map[string]interface{}{
		"tagname": h.tagname,
	})
	edges, err := h.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashHashtag,
		Variables:      map[string]interface{}{"tag_name": h.tagname},
		ConnectionPath: "hashtag.edge_hashtag_to_media",
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(h.session, edges, func(node gjson.Result) groupItem {
		return NewPost(h.session, node)
	}), nil
}

// Story retrieves the currently visible story of this hashtag, or nil when
// none is visible. Requires an authenticated session.
func (h *Hashtag) Story() (*HashtagStory, error) {
	if !h.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	h.session.Logger().InfoWithFields("retrieving story", map[string]interface{}{
		"tagname": h.tagname,
	})
	data, err := h.session.GraphQL(instagram.QueryHashReelItems, map[string]interface{}{
		"tag_names":              []string{h.tagname},
		"precomposed_overlay":    false,
		"show_story_viewer_list": false,
	})
	if err != nil {
		return nil, err
	}
	reels := data.Get("reels_media").Array()
	if len(reels) == 0 {
		h.session.Logger().Warn("no story is visible for this hashtag")
		return nil, nil
	}
	return NewHashtagStory(reels[0]), nil
}
